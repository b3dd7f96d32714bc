// Package session keeps conversation history for the agent as JSONL files.
//
// Invariants:
// - Session keys are validated and path-safe.
// - Writes for the same session are serialized.
// - Corrupted lines are skipped on load rather than failing the whole session.
//
// Usage:
//
//	mgr, _ := session.New("/tmp/sqlpilot/sessions")
//	_ = mgr.AppendMessage("default", session.Message{Role: "user", Content: "sakila.db"})
//	entries, _ := mgr.LoadSession("default")
//	_ = entries
package session
