package toolexecutor

import "context"

type execContextKey struct{}

// WithExecutionContext returns ctx carrying execCtx for tool handlers.
func WithExecutionContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecutionContextFrom returns the ExecutionContext of the tool call running
// under ctx, or nil outside a tool call.
func ExecutionContextFrom(ctx context.Context) *ExecutionContext {
	execCtx, _ := ctx.Value(execContextKey{}).(*ExecutionContext)
	return execCtx
}

// SessionKeyFrom returns the session key of the tool call running under ctx.
func SessionKeyFrom(ctx context.Context) string {
	return ExecutionContextFrom(ctx).sessionKey()
}
