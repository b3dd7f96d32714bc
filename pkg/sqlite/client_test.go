package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntrospect(t *testing.T) {
	ctx := context.Background()
	client := NewClient(nil)

	t.Run("should list tables and columns in order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sakila.db")
		CreateTestDatabase(t, path, SampleStatements...)

		schema, err := client.Introspect(ctx, path)
		require.NoError(t, err)
		require.Len(t, schema.Tables, 2)

		assert.Equal(t, "film", schema.Tables[0].Name)
		assert.Equal(t, []string{"film_id", "title", "rental_rate"}, schema.Tables[0].Columns)
		assert.Equal(t, "actor", schema.Tables[1].Name)
		assert.Equal(t, []string{"actor_id", "first_name", "last_name"}, schema.Tables[1].Columns)

		assert.Equal(t,
			"Table: film\nColumns: film_id, title, rental_rate\nTable: actor\nColumns: actor_id, first_name, last_name",
			schema.String())
	})

	t.Run("should return empty schema for a database without tables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sample.db")
		CreateTestDatabase(t, path)

		schema, err := client.Introspect(ctx, path)
		require.NoError(t, err)
		assert.True(t, schema.Empty())
		assert.Equal(t, "", schema.String())
	})

	t.Run("should not create missing files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.db")

		_, err := client.Introspect(ctx, path)
		assert.ErrorIs(t, err, ErrDatabaseMissing)

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	client := NewClient(nil)
	path := filepath.Join(t.TempDir(), "sakila.db")
	CreateTestDatabase(t, path, SampleStatements...)

	t.Run("should return all rows", func(t *testing.T) {
		result, err := client.Execute(ctx, path, "SELECT film_id, title, rental_rate FROM film ORDER BY film_id")
		require.NoError(t, err)

		assert.Equal(t, []string{"film_id", "title", "rental_rate"}, result.Columns)
		assert.Len(t, result.Rows, 2)
		assert.Equal(t, "[(1, 'ACADEMY DINOSAUR', 0.99), (2, 'ACE GOLDFINGER', None)]", result.String())
	})

	t.Run("should render single-column rows as one-element tuples", func(t *testing.T) {
		result, err := client.Execute(ctx, path, "SELECT COUNT(*) FROM film")
		require.NoError(t, err)
		assert.Equal(t, "[(2,)]", result.String())
	})

	t.Run("should return an error for invalid SQL", func(t *testing.T) {
		_, err := client.Execute(ctx, path, "SELEC nonsense FROM")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "syntax error")
	})

	t.Run("should run statements that return no rows", func(t *testing.T) {
		result, err := client.Execute(ctx, path, "UPDATE film SET rental_rate = 1.5 WHERE film_id = 2")
		require.NoError(t, err)
		assert.Equal(t, "[]", result.String())

		result, err = client.Execute(ctx, path, "SELECT rental_rate FROM film WHERE film_id = 2")
		require.NoError(t, err)
		assert.Equal(t, "[(1.5,)]", result.String())
	})

	t.Run("should return no rows for SQL without a statement", func(t *testing.T) {
		for _, query := range []string{"", "   ", "-- c", "/* nothing */"} {
			result, err := client.Execute(ctx, path, query)
			require.NoError(t, err, "query %q", query)
			assert.Empty(t, result.Columns, "query %q", query)
			assert.Equal(t, "[]", result.String(), "query %q", query)
		}
	})

	t.Run("should keep dates and blobs recognisable", func(t *testing.T) {
		typed := filepath.Join(t.TempDir(), "typed.db")
		CreateTestDatabase(t, typed,
			`CREATE TABLE rental (rental_date DATE, return_date TIMESTAMP, receipt BLOB)`,
			`INSERT INTO rental VALUES ('2005-05-24', '2009-01-01T10:11:12.5+02:00', x'0001ff')`,
		)

		result, err := client.Execute(ctx, typed, "SELECT rental_date, return_date, receipt FROM rental")
		require.NoError(t, err)
		assert.Equal(t, `[('2005-05-24', '2009-01-01 10:11:12.5+02:00', b'\x00\x01\xff')]`, result.String())
	})

	t.Run("should report missing databases", func(t *testing.T) {
		_, err := client.Execute(ctx, filepath.Join(t.TempDir(), "nope.db"), "SELECT 1")
		assert.ErrorIs(t, err, ErrDatabaseMissing)
	})
}

func mockOpener(t *testing.T) (Opener, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return func(ctx context.Context, path string) (*sql.DB, error) {
		return db, nil
	}, mock
}

func TestClientDriverErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("should wrap table listing failures", func(t *testing.T) {
		open, mock := mockOpener(t)
		mock.ExpectQuery(listTablesQuery).WillReturnError(assert.AnError)
		mock.ExpectClose()

		_, err := NewClient(open).Introspect(ctx, "sakila.db")
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "failed to list tables")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should wrap column listing failures", func(t *testing.T) {
		open, mock := mockOpener(t)
		mock.ExpectQuery(listTablesQuery).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("film"))
		mock.ExpectQuery(listColumnsQuery).WithArgs("film").WillReturnError(assert.AnError)
		mock.ExpectClose()

		_, err := NewClient(open).Introspect(ctx, "sakila.db")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list columns of film")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should surface row iteration errors", func(t *testing.T) {
		open, mock := mockOpener(t)
		rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)).RowError(1, assert.AnError)
		mock.ExpectQuery("SELECT id FROM t").WillReturnRows(rows)
		mock.ExpectClose()

		_, err := NewClient(open).Execute(ctx, "sakila.db", "SELECT id FROM t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read rows")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should propagate opener failures", func(t *testing.T) {
		open := func(ctx context.Context, path string) (*sql.DB, error) {
			return nil, assert.AnError
		}
		_, err := NewClient(open).Execute(ctx, "sakila.db", "SELECT 1")
		assert.ErrorIs(t, err, assert.AnError)
	})
}
