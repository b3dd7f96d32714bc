package dbtools

import (
	"errors"
	"fmt"

	"github.com/harun/sqlpilot/pkg/catalog"
)

var (
	// ErrNotFound means the name, or the current selection, is not on the allow-list.
	ErrNotFound = catalog.ErrNotFound

	// ErrNoSelection means no database has been resolved for the session yet.
	ErrNoSelection = errors.New("database file path is not available")

	// ErrNoSchema means the selected database has no tables or no file on disk.
	ErrNoSchema = errors.New("no database schema information available")
)

// QueryError wraps a failure while running a query.
type QueryError struct {
	Database string
	Query    string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query against %s failed: %v", e.Database, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
