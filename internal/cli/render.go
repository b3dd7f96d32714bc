package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harun/sqlpilot/pkg/sqlite"
	"github.com/jedib0t/go-pretty/v6/table"
)

func renderResult(w io.Writer, result *sqlite.Result, format string) error {
	switch format {
	case "tuples":
		_, err := fmt.Fprintln(w, result.String())
		return err
	case "table", "":
		return renderTable(w, result)
	default:
		return fmt.Errorf("unknown format %q (must be table or tuples)", format)
	}
}

func renderTable(w io.Writer, result *sqlite.Result) error {
	if len(result.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, values := range result.Rows {
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = displayValue(v)
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(result.Rows))
	return nil
}

func displayValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case time.Time:
		return sqlite.FormatTime(val)
	default:
		return sqlite.FormatValue(v)
	}
}

func renderDatabases(w io.Writer, names []string, path func(string) string, selected string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "Database", "Path", "Available"})

	for _, name := range names {
		marker := ""
		if name == selected {
			marker = "*"
		}
		available := "yes"
		if _, err := os.Stat(path(name)); err != nil {
			available = "no"
		}
		t.AppendRow(table.Row{marker, name, path(name), available})
	}

	t.Render()
}
