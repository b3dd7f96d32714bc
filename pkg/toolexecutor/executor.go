package toolexecutor

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/harun/sqlpilot/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultTimeout bounds a single tool call when the caller sets none.
const DefaultTimeout = 30 * time.Second

// ToolPolicy defines which tools an agent can use
type ToolPolicy struct {
	Allow []string `json:"allow" mapstructure:"allow"` // List of allowed tools (* for all)
	Deny  []string `json:"deny" mapstructure:"deny"`   // List of denied tools (overrides allow)
}

// IsToolAllowed reports whether toolName passes the policy. A nil policy allows everything.
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	if tp == nil {
		return true
	}
	if slices.Contains(tp.Deny, "*") || slices.Contains(tp.Deny, toolName) {
		return false
	}
	return slices.Contains(tp.Allow, "*") || slices.Contains(tp.Allow, toolName)
}

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	// AllowExtraParams lets callers pass arguments the tool does not declare.
	AllowExtraParams bool        `json:"-"`
	Handler          ToolHandler `json:"-"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ExecutionContext carries per-call settings. A nil *ExecutionContext means
// no session, the default timeout and no policy.
type ExecutionContext struct {
	SessionKey string
	Timeout    time.Duration
	ToolPolicy *ToolPolicy
}

func (ec *ExecutionContext) sessionKey() string {
	if ec == nil {
		return ""
	}
	return ec.SessionKey
}

func (ec *ExecutionContext) timeout() time.Duration {
	if ec == nil || ec.Timeout <= 0 {
		return DefaultTimeout
	}
	return ec.Timeout
}

func (ec *ExecutionContext) policy() *ToolPolicy {
	if ec == nil {
		return nil
	}
	return ec.ToolPolicy
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Success  bool                   `json:"success"`
	Output   interface{}            `json:"output,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type registeredTool struct {
	def    ToolDefinition
	schema *gojsonschema.Schema
}

// ToolExecutor manages and executes tools
type ToolExecutor struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// New creates a new ToolExecutor
func New() *ToolExecutor {
	observability.EnsureRegistered()
	return &ToolExecutor{tools: make(map[string]registeredTool)}
}

// RegisterTool validates def, compiles its parameter schema and registers it,
// replacing any tool with the same name.
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := checkDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schemaMap := InputSchema(def)
	schemaMap["additionalProperties"] = def.AllowExtraParams
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	te.mu.Lock()
	te.tools[def.Name] = registeredTool{def: def, schema: schema}
	te.mu.Unlock()

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// GetTool returns a tool definition by name, or nil.
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	tool, ok := te.tools[name]
	if !ok {
		return nil
	}
	def := tool.def
	return &def
}

// ListTools returns all registered tool names in sorted order
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	names := make([]string, 0, len(te.tools))
	for name := range te.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs toolName with params. Failures are reported in the result,
// never as a Go error, so the agent can hand them back to the model.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]interface{}, execCtx *ExecutionContext) ToolResult {
	start := time.Now()
	logger := log.With().Str("tool", toolName).Str("session_key", execCtx.sessionKey()).Logger()

	if !execCtx.policy().IsToolAllowed(toolName) {
		logger.Warn().Msg("Tool execution blocked by policy")
		return ToolResult{
			Error:    fmt.Sprintf("tool '%s' is not allowed by agent policy", toolName),
			Metadata: map[string]interface{}{"policy_violation": true},
		}
	}

	te.mu.RLock()
	tool, ok := te.tools[toolName]
	te.mu.RUnlock()
	if !ok {
		logger.Error().Msg("Tool not found")
		return ToolResult{Error: fmt.Sprintf("tool not found: %s", toolName)}
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	var output interface{}
	err := validateParams(tool.schema, params)
	if err != nil {
		err = fmt.Errorf("parameter validation failed: %w", err)
	} else {
		output, err = runHandler(ctx, tool.def.Handler, params, execCtx)
	}

	duration := time.Since(start)
	observability.RecordToolExecution(toolName, duration, err == nil)
	metadata := map[string]interface{}{"duration": duration.Milliseconds()}

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("Tool execution failed")
		return ToolResult{Error: err.Error(), Metadata: metadata}
	}

	logger.Debug().Dur("duration", duration).Msg("Tool execution completed")
	return ToolResult{Success: true, Output: output, Metadata: metadata}
}

// runHandler calls handler under the call's timeout. A handler that ignores
// cancellation is abandoned when the timeout fires.
func runHandler(ctx context.Context, handler ToolHandler, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
	timeout := execCtx.timeout()
	callCtx, cancel := context.WithTimeout(WithExecutionContext(ctx, execCtx), timeout)
	defer cancel()

	type outcome struct {
		output interface{}
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		output, err := handler(callCtx, params)
		done <- outcome{output: output, err: err}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("tool execution timeout after %v", timeout)
	}
}

var paramTypes = map[string]bool{
	"string": true, "number": true, "integer": true,
	"boolean": true, "object": true, "array": true,
}

func checkDefinition(def ToolDefinition) error {
	switch {
	case def.Name == "":
		return fmt.Errorf("tool name cannot be empty")
	case def.Description == "":
		return fmt.Errorf("tool description cannot be empty")
	case def.Handler == nil:
		return fmt.Errorf("tool handler cannot be nil")
	}

	for _, param := range def.Parameters {
		switch {
		case param.Name == "":
			return fmt.Errorf("parameter name cannot be empty")
		case param.Type == "":
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		case param.Description == "":
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		case !paramTypes[param.Type]:
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

// InputSchema returns the JSON Schema object describing def's parameters.
func InputSchema(def ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		prop := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("validation errors: %v", problems)
}
