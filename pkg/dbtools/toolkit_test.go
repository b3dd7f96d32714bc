package dbtools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/sqlpilot/pkg/catalog"
	"github.com/harun/sqlpilot/pkg/selection"
	"github.com/harun/sqlpilot/pkg/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupToolkit(t *testing.T) (*Toolkit, string) {
	t.Helper()

	dir := t.TempDir()
	sqlite.CreateTestDatabase(t, filepath.Join(dir, "sakila.db"), sqlite.SampleStatements...)
	sqlite.CreateTestDatabase(t, filepath.Join(dir, "chinook.db"),
		`CREATE TABLE artist (ArtistId INTEGER PRIMARY KEY, Name TEXT)`,
		`INSERT INTO artist VALUES (1, 'AC/DC'), (2, 'Accept')`,
	)
	sqlite.CreateTestDatabase(t, filepath.Join(dir, "sample.db"))

	return NewToolkit(catalog.New(dir), sqlite.NewClient(nil)), dir
}

func newSession() *Session {
	return NewSession("test", selection.NewMemoryStore())
}

func TestToolkit_Resolve(t *testing.T) {
	tk, _ := setupToolkit(t)
	ctx := context.Background()

	t.Run("should normalize names with and without suffix to the same value", func(t *testing.T) {
		sess := newSession()

		a, err := tk.Resolve(ctx, sess, "Sakila")
		require.NoError(t, err)
		b, err := tk.Resolve(ctx, sess, "sakila.db")
		require.NoError(t, err)

		assert.Equal(t, "sakila.db", a)
		assert.Equal(t, a, b)
	})

	t.Run("should persist the match", func(t *testing.T) {
		sess := newSession()

		_, err := tk.Resolve(ctx, sess, "chinook")
		require.NoError(t, err)

		name, err := sess.Selection.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "chinook.db", name)
	})

	t.Run("should not mutate the selection on a miss", func(t *testing.T) {
		sess := newSession()
		_, err := tk.Resolve(ctx, sess, "sakila")
		require.NoError(t, err)

		_, err = tk.Resolve(ctx, sess, "elite")
		assert.ErrorIs(t, err, ErrNotFound)

		name, err := sess.Selection.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "sakila.db", name)
	})

	t.Run("should accept allow-listed names whose file is absent", func(t *testing.T) {
		sess := newSession()
		name, err := tk.Resolve(ctx, sess, "titanic")
		require.NoError(t, err)
		assert.Equal(t, "titanic.db", name)
	})
}

func TestToolkit_Introspect(t *testing.T) {
	tk, _ := setupToolkit(t)
	ctx := context.Background()

	t.Run("should report not found before any resolve", func(t *testing.T) {
		_, err := tk.Introspect(ctx, newSession())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should reflect only the last resolved database", func(t *testing.T) {
		sess := newSession()
		_, err := tk.Resolve(ctx, sess, "sakila")
		require.NoError(t, err)
		_, err = tk.Resolve(ctx, sess, "chinook")
		require.NoError(t, err)

		schema, err := tk.Introspect(ctx, sess)
		require.NoError(t, err)
		require.Len(t, schema.Tables, 1)
		assert.Equal(t, "artist", schema.Tables[0].Name)
		assert.Equal(t, "Table: artist\nColumns: ArtistId, Name", schema.String())
	})

	t.Run("should report missing schema for absent files", func(t *testing.T) {
		sess := newSession()
		_, err := tk.Resolve(ctx, sess, "titanic")
		require.NoError(t, err)

		_, err = tk.Introspect(ctx, sess)
		assert.ErrorIs(t, err, ErrNoSchema)
	})

	t.Run("should report missing schema for databases without tables", func(t *testing.T) {
		sess := newSession()
		_, err := tk.Resolve(ctx, sess, "sample")
		require.NoError(t, err)

		_, err = tk.Introspect(ctx, sess)
		assert.ErrorIs(t, err, ErrNoSchema)
	})

	t.Run("should ignore selections outside the allow-list", func(t *testing.T) {
		sess := newSession()
		require.NoError(t, sess.Selection.Save(ctx, "/etc/passwd"))

		_, err := tk.Introspect(ctx, sess)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should treat a corrupt selection file as no selection", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sel.json")
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
		sess := NewSession("corrupt", selection.NewFileStore(path))

		_, err := tk.Introspect(ctx, sess)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestToolkit_Execute(t *testing.T) {
	tk, _ := setupToolkit(t)
	ctx := context.Background()

	t.Run("should require a selection", func(t *testing.T) {
		_, err := tk.Execute(ctx, newSession(), "SELECT 1")
		assert.ErrorIs(t, err, ErrNoSelection)
	})

	t.Run("should run the query against the selected database", func(t *testing.T) {
		sess := newSession()
		_, err := tk.Resolve(ctx, sess, "sakila")
		require.NoError(t, err)

		result, err := tk.Execute(ctx, sess, "SELECT COUNT(*) FROM film")
		require.NoError(t, err)
		assert.Equal(t, "[(2,)]", result.String())
	})

	t.Run("should return a query error for invalid SQL", func(t *testing.T) {
		sess := newSession()
		_, err := tk.Resolve(ctx, sess, "sakila")
		require.NoError(t, err)

		_, err = tk.Execute(ctx, sess, "SELEC * FORM film")
		var queryErr *QueryError
		require.ErrorAs(t, err, &queryErr)
		assert.Equal(t, "sakila.db", queryErr.Database)
		assert.Equal(t, "SELEC * FORM film", queryErr.Query)
	})
}
