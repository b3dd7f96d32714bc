package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harun/sqlpilot/internal/observability"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// ErrDatabaseMissing is returned when the database file does not exist.
var ErrDatabaseMissing = errors.New("database file does not exist")

const (
	listTablesQuery  = "SELECT name FROM sqlite_master WHERE type='table'"
	listColumnsQuery = "SELECT name FROM pragma_table_info(?) ORDER BY cid"
)

// Opener opens a database handle for the file at path.
type Opener func(ctx context.Context, path string) (*sql.DB, error)

// DefaultOpener opens path with the sqlite3 driver in read-write mode. It fails
// with ErrDatabaseMissing instead of creating an empty database.
func DefaultOpener(ctx context.Context, path string) (*sql.DB, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseMissing, path)
		}
		return nil, fmt.Errorf("failed to stat database file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("database path is a directory: %s", path)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=rw")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Client runs introspection and queries against database files.
type Client struct {
	open Opener
}

// NewClient creates a Client. A nil opener uses DefaultOpener.
func NewClient(open Opener) *Client {
	if open == nil {
		open = DefaultOpener
	}
	return &Client{open: open}
}

// Introspect lists every table in the database with its columns.
func (c *Client) Introspect(ctx context.Context, path string) (schema Schema, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseOperation("introspect", time.Since(start), err == nil)
	}()

	db, err := c.open(ctx, path)
	if err != nil {
		return Schema{}, err
	}
	defer db.Close()

	tables, err := listTables(ctx, db)
	if err != nil {
		return Schema{}, err
	}

	schema.Tables = make([]Table, 0, len(tables))
	for _, name := range tables {
		columns, err := listColumns(ctx, db, name)
		if err != nil {
			return Schema{}, err
		}
		schema.Tables = append(schema.Tables, Table{Name: name, Columns: columns})
	}

	log.Debug().
		Str("path", path).
		Int("tables", len(schema.Tables)).
		Dur("duration", time.Since(start)).
		Msg("Database introspected")

	return schema, nil
}

// Execute runs query verbatim and returns the full result set.
func (c *Client) Execute(ctx context.Context, path, query string) (result *Result, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseOperation("execute", time.Since(start), err == nil)
	}()

	db, err := c.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result = &Result{Columns: columns, Rows: [][]any{}}
	// Blank and comment-only SQL yields no columns, and go-sqlite3 then reports
	// rows forever.
	if len(columns) == 0 {
		return result, nil
	}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	log.Debug().
		Str("path", path).
		Int("rows", len(result.Rows)).
		Dur("duration", time.Since(start)).
		Msg("Query executed")

	return result, nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, listTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return names, nil
}

func listColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, listColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	defer rows.Close()

	columns := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	return columns, nil
}
