package dbtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/sqlpilot/pkg/toolexecutor"
)

// Tool names as offered to the model.
const (
	ToolDatabasePath = "database_path"
	ToolDatabaseInfo = "database_info"
	ToolQueryData    = "query_data"
)

// ToolNames lists the registered tools in the order they are offered.
var ToolNames = []string{ToolDatabasePath, ToolDatabaseInfo, ToolQueryData}

// Register adds the three database tools to executor. Each call is bound to the
// Session named by the execution context's session key.
func Register(executor *toolexecutor.ToolExecutor, tools *ToolSet, sessions SessionResolver) error {
	if executor == nil {
		return errors.New("tool executor is required")
	}
	if tools == nil {
		return errors.New("tool set is required")
	}
	if sessions == nil {
		return errors.New("session resolver is required")
	}

	defs := []toolexecutor.ToolDefinition{
		{
			Name: ToolDatabasePath,
			Description: "This function is useful to retrieve the file name of a SQLITE database. " +
				"Usually has a file extension of '.db' and is a single word.",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "filename", Type: "string", Description: "SQLITE3 file name", Required: true},
			},
			Handler: bind(sessions, func(ctx context.Context, sess *Session, params map[string]interface{}) string {
				filename, _ := params["filename"].(string)
				return tools.DatabasePath(ctx, sess, filename)
			}),
		},
		{
			Name: ToolDatabaseInfo,
			Description: "This function is useful to retrieve the database structure of an SQLITE3 database, " +
				"such as table names and columns. Call database_path first.",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "database_path", Type: "string", Description: "SQLITE3 file name", Required: false},
			},
			// The argument is ignored, so arguments under any other name are too.
			AllowExtraParams: true,
			Handler: bind(sessions, func(ctx context.Context, sess *Session, params map[string]interface{}) string {
				path, _ := params["database_path"].(string)
				return tools.DatabaseInfo(ctx, sess, path)
			}),
		},
		{
			Name: ToolQueryData,
			Description: "This function is useful to query data from the database. " +
				"Generate a SQLITE3 query to answer the user's question.",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "query", Type: "string", Description: "SQLite3 query (sql)", Required: true},
			},
			Handler: bind(sessions, func(ctx context.Context, sess *Session, params map[string]interface{}) string {
				query, _ := params["query"].(string)
				return tools.QueryData(ctx, sess, query)
			}),
		},
	}

	for _, def := range defs {
		if err := executor.RegisterTool(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

type sessionHandler func(ctx context.Context, sess *Session, params map[string]interface{}) string

func bind(sessions SessionResolver, fn sessionHandler) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		sess, err := sessions.Session(toolexecutor.SessionKeyFrom(ctx))
		if err != nil {
			return nil, err
		}
		return fn(ctx, sess, params), nil
	}
}
