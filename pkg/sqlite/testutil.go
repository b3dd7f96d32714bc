package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

// SampleStatements builds a small two-table database used across tests.
var SampleStatements = []string{
	`CREATE TABLE film (film_id INTEGER PRIMARY KEY, title TEXT NOT NULL, rental_rate REAL)`,
	`CREATE TABLE actor (actor_id INTEGER PRIMARY KEY, first_name TEXT, last_name TEXT)`,
	`INSERT INTO film (film_id, title, rental_rate) VALUES (1, 'ACADEMY DINOSAUR', 0.99), (2, 'ACE GOLDFINGER', NULL)`,
	`INSERT INTO actor (actor_id, first_name, last_name) VALUES (1, 'PENELOPE', 'GUINESS')`,
}

// CreateTestDatabase creates a SQLite file at path and runs statements against it.
func CreateTestDatabase(t testing.TB, path string, statements ...string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to open test database %s: %v", path, err)
	}
	defer db.Close()

	// Force the file into existence even when no statements are given.
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to create test database %s: %v", path, err)
	}
	if _, err := db.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatalf("Failed to initialize test database %s: %v", path, err)
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to run %q: %v", stmt, err)
		}
	}
}
