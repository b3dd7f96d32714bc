// Package dbtools implements the three database operations the agent can call:
// resolve a database name, describe its schema, and run a query against it.
//
// Invariants:
// - Operations share state only through the Session passed by the caller.
// - A failed resolution never changes the session's selection.
// - Introspection always reads the selection; it never trusts a filename argument.
// - Tool handlers turn every failure into a fixed message and never return a Go error
//   for a domain failure.
//
// Usage:
//
//	toolkit := dbtools.NewToolkit(catalog.New("./data"), sqlite.NewClient(nil))
//	sess := dbtools.NewSession("default", selection.NewMemoryStore())
//	name, _ := toolkit.Resolve(ctx, sess, "Sakila")
//	schema, _ := toolkit.Introspect(ctx, sess)
//	rows, _ := toolkit.Execute(ctx, sess, "SELECT COUNT(*) FROM film")
//	_, _, _ = name, schema, rows
package dbtools
