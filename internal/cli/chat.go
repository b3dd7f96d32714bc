package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/harun/sqlpilot/internal/observability"
	"github.com/harun/sqlpilot/pkg/agent"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const chatPrompt = "sqlpilot> "

var metricsAddr string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question-and-answer session",
	Long: `Start an interactive session with the agent. Questions and tool results are
kept in the session history, so follow-up questions can refer to earlier ones.
Type .help for commands.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.newRunner(providerFactory)
	if err != nil {
		return err
	}

	key, err := conversationKey("chat")
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		stop, err := serveMetrics(metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          chatPrompt,
		HistoryFile:     filepath.Join(a.cfg.DataDir, "chat_history"),
		AutoComplete:    newChatCompleter(a.catalog.Names()),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "sqlpilot chat (session: %s)\n", key)
	_, _ = fmt.Fprintln(out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(out)

	// At the prompt readline turns Ctrl-C into ErrInterrupt; during a run it
	// arrives as SIGINT and aborts that run only.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	ctx = context.WithoutCancel(ctx)

	s := &chatSession{app: a, runner: runner, key: key, out: out, interrupts: interrupts}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if quit := s.handleDotCommand(ctx, line); quit {
				break
			}
			continue
		}

		s.ask(ctx, line)
	}

	return nil
}

type chatSession struct {
	app        *app
	runner     *agent.Runner
	key        string
	out        io.Writer
	interrupts <-chan os.Signal
}

// ask runs one question. An interrupt while it runs aborts the run, not the REPL.
func (s *chatSession) ask(ctx context.Context, question string) {
	for len(s.interrupts) > 0 {
		<-s.interrupts
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.interrupts:
			_ = s.runner.Abort(s.key)
		case <-done:
		}
	}()

	result, err := s.runner.Run(ctx, s.app.runParams(s.key, question))
	if err != nil {
		_, _ = fmt.Fprintf(s.out, "Error: %v\n\n", err)
		return
	}
	if result.Aborted {
		_, _ = fmt.Fprintln(s.out, "(aborted)")
		return
	}
	_, _ = fmt.Fprintf(s.out, "%s\n\n", result.Response)
}

// handleDotCommand runs a REPL command and reports whether the REPL should exit.
func (s *chatSession) handleDotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		printChatHelp(s.out)

	case ".databases":
		sess, err := s.app.sessions.Session(s.key)
		if err != nil {
			_, _ = fmt.Fprintf(s.out, "Error: %v\n", err)
			break
		}
		renderDatabases(s.out, s.app.catalog.Names(), s.app.catalog.Path, s.app.selectedDatabase(ctx, sess))

	case ".sessions":
		keys, err := s.app.history.ListSessions()
		if err != nil {
			_, _ = fmt.Fprintf(s.out, "Error: %v\n", err)
			break
		}
		for _, key := range keys {
			marker := " "
			if key == s.key {
				marker = "*"
			}
			_, _ = fmt.Fprintf(s.out, "%s %s\n", marker, key)
		}
		if len(keys) == 0 {
			_, _ = fmt.Fprintln(s.out, "(no saved conversations)")
		}

	case ".schema":
		sess, err := s.app.sessions.Session(s.key)
		if err != nil {
			_, _ = fmt.Fprintf(s.out, "Error: %v\n", err)
			break
		}
		_, _ = fmt.Fprintln(s.out, s.app.tools.DatabaseInfo(ctx, sess, ""))

	case ".session":
		_, _ = fmt.Fprintln(s.out, s.key)

	case ".reset":
		if err := s.app.history.DeleteSession(s.key); err != nil {
			_, _ = fmt.Fprintf(s.out, "Error: %v\n", err)
			break
		}
		_, _ = fmt.Fprintln(s.out, "Conversation history cleared.")

	default:
		_, _ = fmt.Fprintf(s.out, "Unknown command: %s (type .help)\n", parts[0])
	}

	_, _ = fmt.Fprintln(s.out)
	return false
}

func printChatHelp(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Commands:")
	_, _ = fmt.Fprintln(w, "  .databases  list databases; * marks the selected one")
	_, _ = fmt.Fprintln(w, "  .schema     show the selected database's tables")
	_, _ = fmt.Fprintln(w, "  .session    print the session key")
	_, _ = fmt.Fprintln(w, "  .sessions   list saved conversations; * marks this one")
	_, _ = fmt.Fprintln(w, "  .reset      clear the conversation history")
	_, _ = fmt.Fprintln(w, "  .quit       exit")
	_, _ = fmt.Fprintln(w, "Anything else is sent to the agent as a question.")
}

func newChatCompleter(databases []string) *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem(".help"),
		readline.PcItem(".databases"),
		readline.PcItem(".schema"),
		readline.PcItem(".session"),
		readline.PcItem(".sessions"),
		readline.PcItem(".reset"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	}
	for _, name := range databases {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// serveMetrics exposes /metrics on addr until the returned stop func is called.
func serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
