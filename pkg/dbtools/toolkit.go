package dbtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/sqlpilot/internal/observability"
	"github.com/harun/sqlpilot/internal/tracing"
	"github.com/harun/sqlpilot/pkg/catalog"
	"github.com/harun/sqlpilot/pkg/selection"
	"github.com/harun/sqlpilot/pkg/sqlite"
	"github.com/rs/zerolog/log"
)

// Operations is the pipeline behind the agent's three tools.
type Operations interface {
	// Resolve normalizes name, checks it against the allow-list and selects it.
	Resolve(ctx context.Context, sess *Session, name string) (string, error)

	// Introspect describes the tables of the selected database.
	Introspect(ctx context.Context, sess *Session) (sqlite.Schema, error)

	// Execute runs query verbatim against the selected database.
	Execute(ctx context.Context, sess *Session, query string) (*sqlite.Result, error)
}

// Toolkit implements Operations over a catalog and a SQLite client.
type Toolkit struct {
	catalog *catalog.Catalog
	client  *sqlite.Client
}

var _ Operations = (*Toolkit)(nil)

// NewToolkit creates a Toolkit.
func NewToolkit(cat *catalog.Catalog, client *sqlite.Client) *Toolkit {
	if client == nil {
		client = sqlite.NewClient(nil)
	}
	return &Toolkit{catalog: cat, client: client}
}

// Catalog returns the allow-list the toolkit resolves against.
func (t *Toolkit) Catalog() *catalog.Catalog {
	return t.catalog
}

// Resolve selects the database named by name for sess.
func (t *Toolkit) Resolve(ctx context.Context, sess *Session, name string) (string, error) {
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", sess.Key).Logger()

	resolved, err := t.catalog.Resolve(name)
	if err != nil {
		observability.RecordSelection("not_found")
		observability.RecordSelectionAudit(ctx, sess.Key, catalog.Normalize(name), "failure")
		logger.Debug().Str("input", name).Msg("Database name not on allow-list")
		return "", fmt.Errorf("%w: %s", err, catalog.Normalize(name))
	}

	if err := sess.Selection.Save(ctx, resolved); err != nil {
		return "", fmt.Errorf("failed to save selection: %w", err)
	}

	observability.RecordSelection("selected")
	observability.RecordSelectionAudit(ctx, sess.Key, resolved, "success")
	logger.Info().Str("database", resolved).Msg("Database selected")

	return resolved, nil
}

// Selected reads the session's current selection. A corrupt store is logged
// and treated as empty.
func (t *Toolkit) Selected(ctx context.Context, sess *Session) (string, error) {
	name, err := sess.Selection.Load(ctx)
	if err != nil {
		if errors.Is(err, selection.ErrCorrupt) {
			log.Warn().Err(err).Str("session_key", sess.Key).Msg("Ignoring corrupt selection")
			return "", nil
		}
		return "", fmt.Errorf("failed to load selection: %w", err)
	}
	return name, nil
}

// Introspect lists tables and columns of the selected database.
func (t *Toolkit) Introspect(ctx context.Context, sess *Session) (sqlite.Schema, error) {
	name, err := t.Selected(ctx, sess)
	if err != nil {
		return sqlite.Schema{}, err
	}
	if !t.catalog.Contains(name) {
		return sqlite.Schema{}, ErrNotFound
	}

	schema, err := t.client.Introspect(ctx, t.catalog.Path(name))
	if err != nil {
		if errors.Is(err, sqlite.ErrDatabaseMissing) {
			return sqlite.Schema{}, fmt.Errorf("%w: %v", ErrNoSchema, err)
		}
		return sqlite.Schema{}, fmt.Errorf("failed to introspect %s: %w", name, err)
	}
	if schema.Empty() {
		return sqlite.Schema{}, ErrNoSchema
	}

	return schema, nil
}

// Execute runs query against the selected database.
func (t *Toolkit) Execute(ctx context.Context, sess *Session, query string) (*sqlite.Result, error) {
	name, err := t.Selected(ctx, sess)
	if err != nil {
		return nil, err
	}
	if name == "" || !t.catalog.Contains(name) {
		return nil, ErrNoSelection
	}

	result, err := t.client.Execute(ctx, t.catalog.Path(name), query)
	if err != nil {
		observability.RecordQueryAudit(ctx, sess.Key, name, query, "failure", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, &QueryError{Database: name, Query: query, Err: err}
	}

	observability.RecordQueryAudit(ctx, sess.Key, name, query, "success", map[string]interface{}{
		"rows": len(result.Rows),
	})

	return result, nil
}
