// Package selection persists the currently selected database filename.
//
// Invariants:
// - At most one filename is selected at a time; there is no history.
// - Every Save overwrites the previous value wholesale (last write wins).
// - A store that was never written loads as the empty selection.
//
// Usage:
//
//	store := selection.NewFileStore("/tmp/sqlpilot/selections/default.json")
//	_ = store.Save(ctx, "sakila.db")
//	name, _ := store.Load(ctx)
//	_ = name
package selection
