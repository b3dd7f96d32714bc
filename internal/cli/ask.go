package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question with the agent",
	Long: `Ask a single question. The agent selects a database, reads its schema,
runs the SQL it writes and answers in plain text.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.newRunner(providerFactory)
	if err != nil {
		return err
	}

	key, err := conversationKey("ask")
	if err != nil {
		return err
	}

	result, err := runner.Run(cmd.Context(), a.runParams(key, strings.Join(args, " ")))
	if err != nil {
		return err
	}
	if result.Aborted {
		return fmt.Errorf("aborted")
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Response)
	return nil
}
