package dbtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/sqlpilot/pkg/session"
	"github.com/rs/zerolog/log"
)

// Fixed replies returned to the agent.
const (
	MsgFileNotFound       = "File not found."
	MsgDatabaseNotFound   = "Database file not found."
	MsgNoSchema           = "No database schema information available."
	MsgPathNotAvailable   = "Database file path is not available."
	msgQueryFailed        = "Query failed with error: %v"
	msgResolveFailed      = "Error occurred while retrieving database path: %v"
	msgIntrospectFailed   = "Error occurred while retrieving database information: %v"
	msgUnexpectedQueryErr = "Error occurred while querying data: %v"
)

// History receives conversation entries produced by tool calls.
type History interface {
	AppendMessageWithContext(ctx context.Context, sessionKey string, message session.Message) error
}

// ToolSet exposes the operations with the string-in, string-out contract the
// agent sees. Every outcome, including failures, is a reply string.
type ToolSet struct {
	ops     Operations
	history History
}

// NewToolSet wraps ops. history may be nil.
func NewToolSet(ops Operations, history History) *ToolSet {
	return &ToolSet{ops: ops, history: history}
}

// DatabasePath resolves name and returns the normalized filename or MsgFileNotFound.
func (s *ToolSet) DatabasePath(ctx context.Context, sess *Session, name string) string {
	resolved, err := s.ops.Resolve(ctx, sess, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.remember(ctx, sess, "assistant", MsgFileNotFound)
			return MsgFileNotFound
		}
		return fmt.Sprintf(msgResolveFailed, err)
	}

	s.remember(ctx, sess, "user", resolved)
	return resolved
}

// DatabaseInfo describes the selected database. The argument is ignored; the
// selection made by DatabasePath is used instead.
func (s *ToolSet) DatabaseInfo(ctx context.Context, sess *Session, _ string) string {
	schema, err := s.ops.Introspect(ctx, sess)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return MsgDatabaseNotFound
	case errors.Is(err, ErrNoSchema):
		return MsgNoSchema
	default:
		return fmt.Sprintf(msgIntrospectFailed, err)
	}

	summary := schema.String()
	s.remember(ctx, sess, "assistant", summary)
	return summary
}

// QueryData runs query against the selected database and returns the rows as text.
func (s *ToolSet) QueryData(ctx context.Context, sess *Session, query string) string {
	result, err := s.ops.Execute(ctx, sess, query)
	if err != nil {
		var queryErr *QueryError
		switch {
		case errors.Is(err, ErrNoSelection):
			return MsgPathNotAvailable
		case errors.As(err, &queryErr):
			return fmt.Sprintf(msgQueryFailed, queryErr.Err)
		default:
			return fmt.Sprintf(msgUnexpectedQueryErr, err)
		}
	}
	return result.String()
}

func (s *ToolSet) remember(ctx context.Context, sess *Session, role, content string) {
	if s.history == nil {
		return
	}
	if err := s.history.AppendMessageWithContext(ctx, sess.Key, session.Message{
		Role:    role,
		Content: content,
		Metadata: map[string]interface{}{
			"source": "tool",
		},
	}); err != nil {
		log.Warn().Err(err).Str("session_key", sess.Key).Msg("Failed to record tool output in history")
	}
}
