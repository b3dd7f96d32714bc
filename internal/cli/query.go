package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harun/sqlpilot/pkg/dbtools"
	"github.com/spf13/cobra"
)

var queryFormat string

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run SQL against the selected database",
	Long: `Run a SQL statement verbatim against the database selected with
"sqlpilot resolve". Results are printed as a table, or as the tuple list the
agent sees with --format tuples.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", "table", "output format (table, tuples)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session()
	if err != nil {
		return err
	}

	result, err := a.toolkit.Execute(cmd.Context(), sess, strings.Join(args, " "))
	if err != nil {
		var queryErr *dbtools.QueryError
		switch {
		case errors.Is(err, dbtools.ErrNoSelection):
			return errors.New(dbtools.MsgPathNotAvailable)
		case errors.As(err, &queryErr):
			return fmt.Errorf("query failed: %w", queryErr.Err)
		default:
			return err
		}
	}

	return renderResult(cmd.OutOrStdout(), result, queryFormat)
}
