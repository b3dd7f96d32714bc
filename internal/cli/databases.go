package cli

import (
	"github.com/spf13/cobra"
)

var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "List the databases that can be queried",
	Long: `List the allow-listed database files, where each is expected on disk and
whether it is present. The database selected for the session is starred.`,
	Args: cobra.NoArgs,
	RunE: runDatabases,
}

func init() {
	rootCmd.AddCommand(databasesCmd)
}

func runDatabases(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session()
	if err != nil {
		return err
	}
	renderDatabases(cmd.OutOrStdout(), a.catalog.Names(), a.catalog.Path, a.selectedDatabase(cmd.Context(), sess))
	return nil
}
