package agent

import (
	"errors"
	"strings"

	"github.com/harun/sqlpilot/pkg/dbtools"
	"github.com/harun/sqlpilot/pkg/toolexecutor"
)

// MaxTurns bounds the number of model calls in one run.
const MaxTurns = 10

// AgentRunParams contains input parameters for agent execution
type AgentRunParams struct {
	Prompt     string                   `json:"prompt"`
	SessionKey string                   `json:"session_key"`
	Config     AgentConfig              `json:"config"`
	ToolPolicy *toolexecutor.ToolPolicy `json:"tool_policy,omitempty"`
}

// AgentConfig configures agent behavior
type AgentConfig struct {
	Model        string   `json:"model" mapstructure:"model"`
	Temperature  float64  `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens    int      `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	SystemPrompt string   `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
	Tools        []string `json:"tools,omitempty" mapstructure:"tools"`
	MaxRetries   int      `json:"max_retries,omitempty" mapstructure:"max_retries"`
}

// AgentResult contains output from agent execution
type AgentResult struct {
	Response   string      `json:"response"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	Usage      *TokenUsage `json:"usage,omitempty"`
	SessionKey string      `json:"session_key"`
	Aborted    bool        `json:"aborted,omitempty"`
}

// ToolCall represents a tool invocation
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// AuthProfile represents authentication credentials for LLM providers
type AuthProfile struct {
	ID            string `json:"id" mapstructure:"id"`
	Provider      string `json:"provider" mapstructure:"provider"` // "openai" or "anthropic"
	APIKey        string `json:"api_key" mapstructure:"api_key"`
	BaseURL       string `json:"base_url,omitempty" mapstructure:"base_url"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty" mapstructure:"-"`
	FailureCount  int    `json:"failure_count" mapstructure:"-"`
	Priority      int    `json:"priority" mapstructure:"priority"`
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	ToolCalls  []ToolCall             `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DefaultConfig returns default agent configuration
func DefaultConfig() AgentConfig {
	return AgentConfig{
		Model:       "gpt-3.5-turbo-0125",
		Temperature: 0.7,
		MaxTokens:   4096,
		MaxRetries:  3,
		Tools:       append([]string(nil), dbtools.ToolNames...),
	}
}

// ErrMaxTurns is returned when the model keeps calling tools past MaxTurns.
var ErrMaxTurns = errors.New("maximum tool execution turns exceeded")

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	for _, marker := range []string{
		"econnreset", "etimedout", "connection reset",
		"429", "rate limit",
		"500", "502", "503", "504", "overloaded",
	} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}

	return false
}

// EstimateTokens provides a rough token count estimation
func EstimateTokens(messages []AgentMessage) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Content)
	}
	// 1 token is roughly 4 characters
	return (totalChars + 3) / 4
}
