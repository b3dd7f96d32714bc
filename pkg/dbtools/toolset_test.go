package dbtools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/sqlpilot/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolSet(t *testing.T) {
	tk, _ := setupToolkit(t)
	ctx := context.Background()

	t.Run("should return the fixed not-found reply", func(t *testing.T) {
		tools := NewToolSet(tk, nil)
		sess := newSession()

		assert.Equal(t, MsgFileNotFound, tools.DatabasePath(ctx, sess, "elite"))
		assert.Equal(t, MsgDatabaseNotFound, tools.DatabaseInfo(ctx, sess, "elite.db"))
		assert.Equal(t, MsgPathNotAvailable, tools.QueryData(ctx, sess, "SELECT 1"))
	})

	t.Run("should walk resolve, introspect and query", func(t *testing.T) {
		tools := NewToolSet(tk, nil)
		sess := newSession()

		assert.Equal(t, "sakila.db", tools.DatabasePath(ctx, sess, "SAKILA"))
		assert.Equal(t,
			"Table: film\nColumns: film_id, title, rental_rate\nTable: actor\nColumns: actor_id, first_name, last_name",
			tools.DatabaseInfo(ctx, sess, "ignored"))
		assert.Equal(t, "[(1, 'PENELOPE')]", tools.QueryData(ctx, sess, "SELECT actor_id, first_name FROM actor"))
	})

	t.Run("should ignore the introspection argument", func(t *testing.T) {
		tools := NewToolSet(tk, nil)
		sess := newSession()

		tools.DatabasePath(ctx, sess, "chinook")
		assert.Equal(t, "Table: artist\nColumns: ArtistId, Name", tools.DatabaseInfo(ctx, sess, "sakila.db"))
	})

	t.Run("should return an error string for invalid SQL", func(t *testing.T) {
		tools := NewToolSet(tk, nil)
		sess := newSession()
		tools.DatabasePath(ctx, sess, "sakila")

		reply := tools.QueryData(ctx, sess, "this is not sql")
		assert.True(t, strings.HasPrefix(reply, "Query failed with error: "), reply)
	})

	t.Run("should report missing schema", func(t *testing.T) {
		tools := NewToolSet(tk, nil)
		sess := newSession()
		tools.DatabasePath(ctx, sess, "titanic")

		assert.Equal(t, MsgNoSchema, tools.DatabaseInfo(ctx, sess, ""))
	})

	t.Run("should record tool output in history", func(t *testing.T) {
		history, err := session.New(filepath.Join(t.TempDir(), "sessions"))
		require.NoError(t, err)
		defer history.Close()

		tools := NewToolSet(tk, history)
		sess := newSession()

		tools.DatabasePath(ctx, sess, "nope")
		tools.DatabasePath(ctx, sess, "chinook")
		tools.DatabaseInfo(ctx, sess, "")

		entries, err := history.LoadSession(sess.Key)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "assistant", entries[0].Message.Role)
		assert.Equal(t, MsgFileNotFound, entries[0].Message.Content)
		assert.Equal(t, "user", entries[1].Message.Role)
		assert.Equal(t, "chinook.db", entries[1].Message.Content)
		assert.Equal(t, "Table: artist\nColumns: ArtistId, Name", entries[2].Message.Content)
	})
}
