// Package toolexecutor registers and executes structured tools for the agent.
//
// Invariants:
// - Tool names are unique; registering a name again replaces the previous tool.
// - Parameters are schema-validated before execution.
// - Handlers receive the ExecutionContext through their context.Context.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
package toolexecutor
