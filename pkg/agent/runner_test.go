package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/sqlpilot/pkg/catalog"
	"github.com/harun/sqlpilot/pkg/dbtools"
	"github.com/harun/sqlpilot/pkg/session"
	"github.com/harun/sqlpilot/pkg/sqlite"
	"github.com/harun/sqlpilot/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays a fixed list of responses and records every request.
type scriptedProvider struct {
	name      string
	mu        sync.Mutex
	responses []scriptedStep
	requests  []LLMRequest
}

type scriptedStep struct {
	response *LLMResponse
	err      error
}

func (p *scriptedProvider) Provider() string { return p.name }

func (p *scriptedProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, request)
	if len(p.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	step := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return step.response, step.err
}

type fakeFactory struct {
	providers map[string]LLMProvider
}

func (f *fakeFactory) NewProvider(profile AuthProfile) (LLMProvider, error) {
	p, ok := f.providers[profile.ID]
	if !ok {
		return nil, fmt.Errorf("no provider for %s", profile.ID)
	}
	return p, nil
}

func toolCall(id, name string, params map[string]interface{}) *LLMResponse {
	return &LLMResponse{
		ToolCalls: []ToolCall{{ID: id, Name: name, Parameters: params}},
		Usage:     &TokenUsage{InputTokens: 10, OutputTokens: 2},
	}
}

func answer(text string) *LLMResponse {
	return &LLMResponse{Content: text, Usage: &TokenUsage{InputTokens: 20, OutputTokens: 5}}
}

func setupTestRunner(t *testing.T, profiles []AuthProfile, providers map[string]LLMProvider) (*Runner, *session.SessionManager) {
	t.Helper()

	dir := t.TempDir()
	sqlite.CreateTestDatabase(t, filepath.Join(dir, "dbs", "sakila.db"), sqlite.SampleStatements...)

	sm, err := session.New(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })

	te := toolexecutor.New()
	toolkit := dbtools.NewToolkit(catalog.New(filepath.Join(dir, "dbs")), sqlite.NewClient(nil))
	require.NoError(t, dbtools.Register(te, dbtools.NewToolSet(toolkit, sm), dbtools.NewMemorySessionRegistry()))

	if profiles == nil {
		profiles = []AuthProfile{{ID: "primary", Provider: "openai", APIKey: "test-key", Priority: 1}}
	}

	runner, err := NewRunner(Config{
		SessionManager:  sm,
		ToolExecutor:    te,
		Logger:          zerolog.New(os.Stdout).Level(zerolog.ErrorLevel),
		AuthProfiles:    profiles,
		ProviderFactory: &fakeFactory{providers: providers},
		RetryBaseDelay:  time.Millisecond,
	})
	require.NoError(t, err)

	return runner, sm
}

func testParams(prompt string) AgentRunParams {
	cfg := DefaultConfig()
	cfg.SystemPrompt = SystemPrompt(catalog.New("").Names())
	return AgentRunParams{Prompt: prompt, SessionKey: "test-session", Config: cfg}
}

func TestNewRunner(t *testing.T) {
	t.Run("should create runner with valid config", func(t *testing.T) {
		runner, _ := setupTestRunner(t, nil, nil)
		assert.NotNil(t, runner.sessionManager)
		assert.NotNil(t, runner.toolExecutor)
	})

	t.Run("should fail without session manager", func(t *testing.T) {
		_, err := NewRunner(Config{
			ToolExecutor: toolexecutor.New(),
			AuthProfiles: []AuthProfile{{ID: "test", Provider: "openai", APIKey: "key", Priority: 1}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session manager")
	})

	t.Run("should fail without auth profiles", func(t *testing.T) {
		sm, err := session.New(t.TempDir())
		require.NoError(t, err)
		defer sm.Close()

		_, err = NewRunner(Config{
			SessionManager: sm,
			ToolExecutor:   toolexecutor.New(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth profile")
	})
}

func TestRun(t *testing.T) {
	t.Run("should resolve, query and answer", func(t *testing.T) {
		provider := &scriptedProvider{name: "openai", responses: []scriptedStep{
			{response: toolCall("call-1", dbtools.ToolDatabasePath, map[string]interface{}{"filename": "Sakila"})},
			{response: toolCall("call-2", dbtools.ToolDatabaseInfo, map[string]interface{}{})},
			{response: toolCall("call-3", dbtools.ToolQueryData, map[string]interface{}{"query": "SELECT COUNT(*) FROM film"})},
			{response: answer("There are 2 films.")},
		}}
		runner, sm := setupTestRunner(t, nil, map[string]LLMProvider{"primary": provider})

		result, err := runner.Run(context.Background(), testParams("How many films are in sakila?"))
		require.NoError(t, err)

		assert.Equal(t, "There are 2 films.", result.Response)
		assert.Equal(t, "test-session", result.SessionKey)
		assert.Len(t, result.ToolCalls, 3)
		assert.Equal(t, 50, result.Usage.InputTokens)

		last := provider.requests[len(provider.requests)-1].Messages
		var toolOutputs []string
		for _, msg := range last {
			if msg.Role == "tool" {
				toolOutputs = append(toolOutputs, msg.Content)
			}
		}
		require.Len(t, toolOutputs, 3)
		assert.Equal(t, "sakila.db", toolOutputs[0])
		assert.Contains(t, toolOutputs[1], "Table: film")
		assert.Equal(t, "[(2,)]", toolOutputs[2])

		entries, err := sm.LoadSession("test-session")
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Equal(t, "How many films are in sakila?", entries[0].Message.Content)
		assert.Equal(t, "There are 2 films.", entries[len(entries)-1].Message.Content)
	})

	t.Run("should offer only the database tools", func(t *testing.T) {
		provider := &scriptedProvider{name: "openai", responses: []scriptedStep{{response: answer("hi")}}}
		runner, _ := setupTestRunner(t, nil, map[string]LLMProvider{"primary": provider})

		_, err := runner.Run(context.Background(), testParams("hello"))
		require.NoError(t, err)

		require.Len(t, provider.requests, 1)
		names := []string{}
		for _, tool := range provider.requests[0].Tools {
			name, _, _, err := toolSpec(tool)
			require.NoError(t, err)
			names = append(names, name)
		}
		assert.Equal(t, dbtools.ToolNames, names)
		assert.Contains(t, provider.requests[0].SystemPrompt, "sakila.db")
	})

	t.Run("should pass tool failures back to the model", func(t *testing.T) {
		provider := &scriptedProvider{name: "openai", responses: []scriptedStep{
			{response: toolCall("call-1", dbtools.ToolQueryData, map[string]interface{}{"query": "SELECT 1"})},
			{response: answer("Pick a database first.")},
		}}
		runner, _ := setupTestRunner(t, nil, map[string]LLMProvider{"primary": provider})

		_, err := runner.Run(context.Background(), testParams("run it"))
		require.NoError(t, err)

		msgs := provider.requests[1].Messages
		assert.Equal(t, dbtools.MsgPathNotAvailable, msgs[len(msgs)-1].Content)
	})

	t.Run("should stop after the turn limit", func(t *testing.T) {
		provider := &scriptedProvider{name: "openai", responses: []scriptedStep{
			{response: toolCall("loop", dbtools.ToolDatabaseInfo, map[string]interface{}{})},
		}}
		runner, _ := setupTestRunner(t, nil, map[string]LLMProvider{"primary": provider})

		_, err := runner.Run(context.Background(), testParams("loop"))
		assert.ErrorIs(t, err, ErrMaxTurns)
		assert.Len(t, provider.requests, MaxTurns)
	})

	t.Run("should reject unsafe session keys", func(t *testing.T) {
		runner, _ := setupTestRunner(t, nil, nil)
		params := testParams("hi")
		params.SessionKey = "../x"

		_, err := runner.Run(context.Background(), params)
		assert.Error(t, err)
	})
}

func TestRetryAndFailover(t *testing.T) {
	t.Run("should retry retryable errors", func(t *testing.T) {
		provider := &scriptedProvider{name: "openai", responses: []scriptedStep{
			{err: errors.New("503 service unavailable")},
			{response: answer("ok")},
		}}
		runner, _ := setupTestRunner(t, nil, map[string]LLMProvider{"primary": provider})

		result, err := runner.Run(context.Background(), testParams("hi"))
		require.NoError(t, err)
		assert.Equal(t, "ok", result.Response)
		assert.Len(t, provider.requests, 2)
	})

	t.Run("should not retry permanent errors", func(t *testing.T) {
		provider := &scriptedProvider{name: "openai", responses: []scriptedStep{
			{err: errors.New("invalid api key")},
		}}
		runner, _ := setupTestRunner(t, nil, map[string]LLMProvider{"primary": provider})

		_, err := runner.Run(context.Background(), testParams("hi"))
		require.Error(t, err)
		assert.Len(t, provider.requests, 1)
	})

	t.Run("should fail over to the next profile", func(t *testing.T) {
		limited := &scriptedProvider{name: "openai", responses: []scriptedStep{{err: errors.New("429 rate limit")}}}
		backup := &scriptedProvider{name: "anthropic", responses: []scriptedStep{{response: answer("from backup")}}}

		runner, _ := setupTestRunner(t, []AuthProfile{
			{ID: "backup", Provider: "anthropic", APIKey: "b", Priority: 2},
			{ID: "primary", Provider: "openai", APIKey: "a", Priority: 1},
		}, map[string]LLMProvider{"primary": limited, "backup": backup})

		result, err := runner.Run(context.Background(), testParams("hi"))
		require.NoError(t, err)
		assert.Equal(t, "from backup", result.Response)
		assert.Len(t, limited.requests, 3)

		runner.authMu.RLock()
		defer runner.authMu.RUnlock()
		for _, p := range runner.authProfiles {
			if p.ID == "primary" {
				assert.Equal(t, 1, p.FailureCount)
				assert.NotNil(t, p.CooldownUntil)
			}
		}
	})
}

func TestValidateConfig(t *testing.T) {
	runner, _ := setupTestRunner(t, nil, nil)

	assert.NoError(t, runner.validateConfig(DefaultConfig()))

	err := runner.validateConfig(AgentConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")

	err = runner.validateConfig(AgentConfig{Model: "gpt-4o", Temperature: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")

	err = runner.validateConfig(AgentConfig{Model: "gpt-4o", MaxTokens: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max tokens")
}

func TestBuildMessages(t *testing.T) {
	runner, _ := setupTestRunner(t, nil, nil)

	t.Run("should use default system prompt", func(t *testing.T) {
		messages := runner.buildMessages(nil, AgentRunParams{Prompt: "Test", Config: AgentConfig{Model: "m"}})
		require.Len(t, messages, 2)
		assert.Contains(t, messages[0].Content, "helpful assistant")
		assert.Equal(t, "Test", messages[1].Content)
	})

	t.Run("should include conversation history", func(t *testing.T) {
		history := []session.SessionEntry{
			{SessionKey: "test", Message: session.Message{Role: "user", Content: "sakila.db"}},
		}
		messages := runner.buildMessages(history, AgentRunParams{Prompt: "New", Config: AgentConfig{Model: "m"}})
		require.Len(t, messages, 3)
		assert.Equal(t, "sakila.db", messages[1].Content)
	})
}

func TestCompactIfNeeded(t *testing.T) {
	runner, _ := setupTestRunner(t, nil, nil)

	messages := []AgentMessage{{Role: "system", Content: "System"}}
	for i := 0; i < 30; i++ {
		messages = append(messages, AgentMessage{Role: "user", Content: "Message with some content to increase token count"})
	}

	assert.Len(t, runner.compactIfNeeded(messages[:2], 1000), 2)

	result := runner.compactIfNeeded(messages, 100)
	assert.Len(t, result, 22)
	assert.Equal(t, "system", result[0].Role)
	assert.Contains(t, result[1].Content, "10 messages")
}

func TestBuildTools(t *testing.T) {
	runner, _ := setupTestRunner(t, nil, nil)

	tools, err := runner.buildTools(nil)
	assert.NoError(t, err)
	assert.Nil(t, tools)

	tools, err = runner.buildTools(dbtools.ToolNames)
	require.NoError(t, err)
	require.Len(t, tools, 3)
	_, _, schema, err := toolSpec(tools[2])
	require.NoError(t, err)
	assert.Equal(t, []string{"query"}, requiredFields(schema))

	_, err = runner.buildTools([]string{"unknown_tool"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool not found")
}

func TestAbort(t *testing.T) {
	runner, _ := setupTestRunner(t, nil, nil)

	assert.NoError(t, runner.Abort("non-existent"))

	called := false
	runner.runsMu.Lock()
	runner.activeRuns["test-abort"] = func() { called = true }
	runner.runsMu.Unlock()

	assert.NoError(t, runner.Abort("test-abort"))
	assert.True(t, called)

	runner.runsMu.Lock()
	_, running := runner.activeRuns["test-abort"]
	runner.runsMu.Unlock()
	assert.False(t, running)
}

// blockingProvider waits for its context to end, announcing each call on started.
type blockingProvider struct {
	started chan struct{}
}

func (p *blockingProvider) Provider() string { return "openai" }

func (p *blockingProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.started <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAbortDuringProviderCall(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{}, 1)}
	runner, sm := setupTestRunner(t, nil, map[string]LLMProvider{"primary": provider})

	type outcome struct {
		result AgentResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := runner.Run(context.Background(), testParams("count films"))
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("provider was never called")
	}
	require.NoError(t, runner.Abort("test-session"))

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.True(t, out.result.Aborted)
		assert.Empty(t, out.result.Response)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after Abort")
	}

	entries, err := sm.LoadSession("test-session")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "user", entries[0].Message.Role)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("ECONNRESET")))
	assert.True(t, IsRetryableError(fmt.Errorf("429 Rate Limit")))
	assert.True(t, IsRetryableError(fmt.Errorf("502 bad gateway")))
	assert.False(t, IsRetryableError(fmt.Errorf("invalid API key")))
	assert.False(t, IsRetryableError(nil))
}

func TestSortProfilesByPriority(t *testing.T) {
	profiles := []AuthProfile{
		{ID: "low", Priority: 3},
		{ID: "high", Priority: 1},
		{ID: "medium", Priority: 2},
	}

	sortProfilesByPriority(profiles)

	assert.Equal(t, "high", profiles[0].ID)
	assert.Equal(t, "medium", profiles[1].ID)
	assert.Equal(t, "low", profiles[2].ID)
}

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt([]string{"chinook.db", "sakila.db"})
	assert.Contains(t, prompt, "chinook.db, sakila.db")
	for _, name := range dbtools.ToolNames {
		assert.Contains(t, prompt, name)
	}
}
