package cli

import (
	"fmt"

	"github.com/harun/sqlpilot/pkg/dbtools"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Select a database for the session",
	Long: `Select one of the allow-listed databases for the session. The name is
matched case-insensitively and the .db suffix is optional.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session()
	if err != nil {
		return err
	}

	reply := a.tools.DatabasePath(cmd.Context(), sess, args[0])
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	if reply == dbtools.MsgFileNotFound {
		return fmt.Errorf("%q is not one of: %v", args[0], a.catalog.Names())
	}
	return nil
}
