// Package sqlite inspects and queries local SQLite database files.
//
// Invariants:
// - Every call opens its own handle and closes it before returning.
// - Missing files are reported, never created.
// - SQL passed to Execute runs verbatim; nothing is validated or rewritten.
//
// Usage:
//
//	client := sqlite.NewClient(nil)
//	schema, _ := client.Introspect(ctx, "sakila.db")
//	fmt.Println(schema.String())
//	result, _ := client.Execute(ctx, "sakila.db", "SELECT COUNT(*) FROM film")
//	fmt.Println(result.String())
package sqlite
