package agent

import (
	"fmt"
	"strings"

	"github.com/harun/sqlpilot/pkg/dbtools"
)

// SystemPrompt builds the instructions given to the model for the listed databases.
func SystemPrompt(databases []string) string {
	var b strings.Builder

	b.WriteString("You are a helpful assistant that answers questions using SQLite databases.\n\n")
	b.WriteString("Available databases: ")
	b.WriteString(strings.Join(databases, ", "))
	b.WriteString("\n\nWork in this order:\n")
	fmt.Fprintf(&b, "1. Call %s with the database name the user mentions.\n", dbtools.ToolDatabasePath)
	fmt.Fprintf(&b, "2. Call %s to learn its tables and columns.\n", dbtools.ToolDatabaseInfo)
	fmt.Fprintf(&b, "3. Write a SQLite query and run it with %s.\n", dbtools.ToolQueryData)
	b.WriteString("\nIf a tool reports that the file was not found, tell the user which databases are available. ")
	b.WriteString("Answer with the data returned by the query, not with the SQL itself.")

	return b.String()
}
