package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/sqlpilot/internal/config"
	"github.com/harun/sqlpilot/internal/logger"
	"github.com/harun/sqlpilot/internal/observability"
	"github.com/harun/sqlpilot/pkg/agent"
	"github.com/harun/sqlpilot/pkg/catalog"
	"github.com/harun/sqlpilot/pkg/dbtools"
	"github.com/harun/sqlpilot/pkg/session"
	"github.com/harun/sqlpilot/pkg/sqlite"
	"github.com/harun/sqlpilot/pkg/toolexecutor"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	catalog  *catalog.Catalog
	toolkit  *dbtools.Toolkit
	sessions *dbtools.SessionRegistry
	history  *session.SessionManager
	tools    *dbtools.ToolSet
	executor *toolexecutor.ToolExecutor
}

// loadApp reads configuration and wires the database tools.
func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:          cfg.Logging.Level,
		File:           cfg.Logging.File,
		Console:        true,
		Pretty:         cfg.Logging.Pretty,
		Redaction:      cfg.Logging.Redaction,
		RedactPatterns: cfg.Logging.RedactPatterns,
		MaxSize:        cfg.Logging.MaxSize,
		MaxAge:         cfg.Logging.MaxAge,
		Compress:       cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
		lg.Close()
		return nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}

	history, err := session.New(cfg.SessionsDir())
	if err != nil {
		lg.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	var sessions *dbtools.SessionRegistry
	if ephemeral {
		sessions = dbtools.NewMemorySessionRegistry()
	} else {
		sessions = dbtools.NewSessionRegistry(cfg.SelectionsDir())
	}

	cat := catalog.New(cfg.Databases.Dir)
	toolkit := dbtools.NewToolkit(cat, sqlite.NewClient(nil))
	tools := dbtools.NewToolSet(toolkit, history)

	executor := toolexecutor.New()
	if err := dbtools.Register(executor, tools, sessions); err != nil {
		history.Close()
		lg.Close()
		return nil, err
	}

	log.Debug().
		Str("database_dir", cat.Dir()).
		Str("data_dir", cfg.DataDir).
		Msg("sqlpilot initialized")

	return &app{
		cfg:      cfg,
		log:      lg,
		catalog:  cat,
		toolkit:  toolkit,
		sessions: sessions,
		history:  history,
		tools:    tools,
		executor: executor,
	}, nil
}

// Close releases files held by the app.
func (a *app) Close() {
	if err := a.history.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close session store")
	}
	if audit := observability.GetAuditLogger(); audit != nil {
		_ = audit.Close()
	}
	_ = a.log.Close()
}

// session returns the Session named by --session, or the default one.
func (a *app) session() (*dbtools.Session, error) {
	return a.sessions.Session(sessionKey)
}

// selectedDatabase returns the session's selection for display. Read failures
// are logged and shown as no selection.
func (a *app) selectedDatabase(ctx context.Context, sess *dbtools.Session) string {
	name, err := a.toolkit.Selected(ctx, sess)
	if err != nil {
		log.Warn().Err(err).Str("session_key", sess.Key).Msg("Failed to read selection")
		return ""
	}
	return name
}

// conversationKey returns --session when given, otherwise a fresh key with prefix.
func conversationKey(prefix string) (string, error) {
	if sessionKey != "" {
		return sessionKey, nil
	}
	id, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 10)
	if err != nil {
		return "", fmt.Errorf("failed to generate session key: %w", err)
	}
	return prefix + "-" + id, nil
}

// newRunner builds the agent runner from the configured AI profiles.
func (a *app) newRunner(factory agent.ProviderCreator) (*agent.Runner, error) {
	if err := a.cfg.RequireAI(); err != nil {
		return nil, err
	}

	profiles := make([]agent.AuthProfile, 0, len(a.cfg.AI.Profiles))
	for _, p := range a.cfg.AI.Profiles {
		profiles = append(profiles, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Priority: p.Priority,
		})
	}

	return agent.NewRunner(agent.Config{
		SessionManager:  a.history,
		ToolExecutor:    a.executor,
		Logger:          log.Logger,
		AuthProfiles:    profiles,
		ProviderFactory: factory,
		ToolTimeout:     time.Duration(a.cfg.Tools.TimeoutSeconds) * time.Second,
	})
}

// runParams builds agent parameters for one question.
func (a *app) runParams(key, prompt string) agent.AgentRunParams {
	cfg := agent.DefaultConfig()
	cfg.Model = a.cfg.Agent.Model
	cfg.Temperature = a.cfg.Agent.Temperature
	cfg.MaxTokens = a.cfg.Agent.MaxTokens
	cfg.MaxRetries = a.cfg.Agent.MaxRetries
	cfg.SystemPrompt = a.cfg.Agent.SystemPrompt
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = agent.SystemPrompt(a.catalog.Names())
	}

	allow := a.cfg.Tools.Policy.Allow
	if len(allow) == 0 {
		allow = []string{"*"}
	}

	return agent.AgentRunParams{
		Prompt:     prompt,
		SessionKey: key,
		Config:     cfg,
		ToolPolicy: &toolexecutor.ToolPolicy{
			Allow: allow,
			Deny:  a.cfg.Tools.Policy.Deny,
		},
	}
}

// providerFactory is replaced in tests.
var providerFactory agent.ProviderCreator = &agent.ProviderFactory{}
