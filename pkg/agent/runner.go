package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/sqlpilot/internal/observability"
	"github.com/harun/sqlpilot/internal/tracing"
	"github.com/harun/sqlpilot/pkg/session"
	"github.com/harun/sqlpilot/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

// Runner orchestrates AI agent execution
type Runner struct {
	sessionManager  *session.SessionManager
	toolExecutor    *toolexecutor.ToolExecutor
	logger          zerolog.Logger
	providerFactory ProviderCreator
	retryBaseDelay  time.Duration
	toolTimeout     time.Duration

	// Auth profiles
	authProfiles []AuthProfile
	authMu       sync.RWMutex

	// One lock per session key
	lanes   map[string]*sync.Mutex
	lanesMu sync.Mutex

	// Cancel funcs of running sessions, for Abort
	activeRuns map[string]context.CancelFunc
	runsMu     sync.Mutex
}

// Config holds runner configuration
type Config struct {
	SessionManager  *session.SessionManager
	ToolExecutor    *toolexecutor.ToolExecutor
	Logger          zerolog.Logger
	AuthProfiles    []AuthProfile
	ProviderFactory ProviderCreator
	// RetryBaseDelay is the first backoff delay; it doubles on every retry.
	RetryBaseDelay time.Duration
	// ToolTimeout bounds each tool call; zero uses toolexecutor.DefaultTimeout.
	ToolTimeout time.Duration
}

// ProviderCreator creates LLM providers from auth profiles.
type ProviderCreator interface {
	NewProvider(profile AuthProfile) (LLMProvider, error)
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.ToolExecutor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if len(cfg.AuthProfiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	providerFactory := cfg.ProviderFactory
	if providerFactory == nil {
		providerFactory = &ProviderFactory{}
	}

	retryBaseDelay := cfg.RetryBaseDelay
	if retryBaseDelay <= 0 {
		retryBaseDelay = time.Second
	}

	toolTimeout := cfg.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = toolexecutor.DefaultTimeout
	}

	profiles := make([]AuthProfile, len(cfg.AuthProfiles))
	copy(profiles, cfg.AuthProfiles)

	return &Runner{
		sessionManager:  cfg.SessionManager,
		toolExecutor:    cfg.ToolExecutor,
		logger:          cfg.Logger,
		providerFactory: providerFactory,
		retryBaseDelay:  retryBaseDelay,
		toolTimeout:     toolTimeout,
		authProfiles:    profiles,
		lanes:           make(map[string]*sync.Mutex),
		activeRuns:      make(map[string]context.CancelFunc),
	}, nil
}

// Run executes an agent with the given parameters
func (r *Runner) Run(ctx context.Context, params AgentRunParams) (AgentResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.NewRunContext(ctx)
	ctx = tracing.WithSessionKey(ctx, params.SessionKey)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	if err := session.ValidateKey(params.SessionKey); err != nil {
		return AgentResult{}, fmt.Errorf("invalid session key: %w", err)
	}
	if err := r.validateConfig(params.Config); err != nil {
		return AgentResult{}, fmt.Errorf("invalid configuration: %w", err)
	}

	lane := r.lane(params.SessionKey)
	lane.Lock()
	defer lane.Unlock()

	result, err := r.executeAgent(ctx, params)
	if err != nil {
		logger.Error().Err(err).Msg("Agent run failed")
		return AgentResult{}, err
	}
	return result, nil
}

func (r *Runner) lane(sessionKey string) *sync.Mutex {
	r.lanesMu.Lock()
	defer r.lanesMu.Unlock()

	mu, ok := r.lanes[sessionKey]
	if !ok {
		mu = &sync.Mutex{}
		r.lanes[sessionKey] = mu
	}
	return mu
}

// Abort cancels the run in progress for sessionKey, if any. The run returns
// an AgentResult with Aborted set.
func (r *Runner) Abort(sessionKey string) error {
	r.runsMu.Lock()
	defer r.runsMu.Unlock()

	cancel, exists := r.activeRuns[sessionKey]
	if !exists {
		r.logger.Debug().Str("session_key", sessionKey).Msg("No active run to abort")
		return nil
	}

	r.logger.Info().Str("session_key", sessionKey).Msg("Aborting agent execution")
	cancel()
	delete(r.activeRuns, sessionKey)

	return nil
}

// executeAgent performs the actual agent execution
func (r *Runner) executeAgent(ctx context.Context, params AgentRunParams) (AgentResult, error) {
	logger := tracing.LoggerFromContext(ctx, r.logger)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.runsMu.Lock()
	r.activeRuns[params.SessionKey] = cancel
	r.runsMu.Unlock()

	defer func() {
		r.runsMu.Lock()
		delete(r.activeRuns, params.SessionKey)
		r.runsMu.Unlock()
	}()

	history, err := r.loadSessionHistory(execCtx, params.SessionKey)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load session history")
		return AgentResult{}, fmt.Errorf("failed to load session history: %w", err)
	}

	messages := r.buildMessages(history, params)

	tools, err := r.buildTools(params.Config.Tools)
	if err != nil {
		return AgentResult{}, fmt.Errorf("failed to build tools: %w", err)
	}

	if err := r.sessionManager.AppendMessageWithContext(execCtx, params.SessionKey, session.Message{
		Role:    "user",
		Content: params.Prompt,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to persist user message")
		return AgentResult{}, fmt.Errorf("failed to save user message: %w", err)
	}

	result, err := r.executeWithFailover(execCtx, messages, tools, params)
	if err != nil {
		return AgentResult{}, err
	}
	result.SessionKey = params.SessionKey
	if result.Aborted {
		logger.Info().Msg("Agent run aborted")
		return result, nil
	}

	if result.Response != "" {
		if err := r.sessionManager.AppendMessageWithContext(execCtx, params.SessionKey, session.Message{
			Role:    "assistant",
			Content: result.Response,
			Metadata: map[string]interface{}{
				"model": params.Config.Model,
				"usage": result.Usage,
			},
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to persist assistant message")
			return AgentResult{}, fmt.Errorf("failed to save assistant message: %w", err)
		}
	}

	return result, nil
}

// validateConfig validates agent configuration
func (r *Runner) validateConfig(config AgentConfig) error {
	if config.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// loadSessionHistory loads session history, dropping entries the providers cannot replay.
func (r *Runner) loadSessionHistory(ctx context.Context, sessionKey string) ([]session.SessionEntry, error) {
	entries, err := r.sessionManager.LoadSessionWithContext(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	valid := entries[:0]
	for _, entry := range entries {
		if entry.Message.Role == "" || entry.Message.Content == "" {
			continue
		}
		valid = append(valid, entry)
	}
	return valid, nil
}

// buildMessages constructs the message array for LLM
func (r *Runner) buildMessages(history []session.SessionEntry, params AgentRunParams) []AgentMessage {
	systemPrompt := params.Config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "You are a helpful assistant."
	}

	messages := []AgentMessage{{
		Role:    "system",
		Content: systemPrompt,
	}}

	for _, entry := range history {
		messages = append(messages, AgentMessage{
			Role:    entry.Message.Role,
			Content: entry.Message.Content,
		})
	}

	messages = append(messages, AgentMessage{
		Role:    "user",
		Content: params.Prompt,
	})

	return r.compactIfNeeded(messages, params.Config.MaxTokens)
}

// compactIfNeeded compacts messages if they exceed token limit
func (r *Runner) compactIfNeeded(messages []AgentMessage, maxTokens int) []AgentMessage {
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	tokenCount := EstimateTokens(messages)
	if tokenCount <= maxTokens {
		return messages
	}

	systemMessages := []AgentMessage{}
	conversationMessages := []AgentMessage{}

	for _, msg := range messages {
		if msg.Role == "system" {
			systemMessages = append(systemMessages, msg)
		} else {
			conversationMessages = append(conversationMessages, msg)
		}
	}

	recentCount := 20
	if len(conversationMessages) <= recentCount {
		return messages
	}

	r.logger.Info().
		Int("token_count", tokenCount).
		Int("max_tokens", maxTokens).
		Msg("Compacting context")

	recentMessages := conversationMessages[len(conversationMessages)-recentCount:]
	olderCount := len(conversationMessages) - recentCount

	summary := AgentMessage{
		Role:    "system",
		Content: fmt.Sprintf("[Previous conversation summary: %d messages exchanged]", olderCount),
	}

	result := append(systemMessages, summary)
	result = append(result, recentMessages...)

	return result
}

// buildTools converts tool names to provider-neutral tool definitions
func (r *Runner) buildTools(toolNames []string) ([]interface{}, error) {
	if len(toolNames) == 0 {
		return nil, nil
	}

	tools := []interface{}{}
	for _, name := range toolNames {
		toolDef := r.toolExecutor.GetTool(name)
		if toolDef == nil {
			return nil, fmt.Errorf("tool not found: %s", name)
		}

		tools = append(tools, map[string]interface{}{
			"name":         toolDef.Name,
			"description":  toolDef.Description,
			"input_schema": toolexecutor.InputSchema(*toolDef),
		})
	}

	return tools, nil
}

// executeWithFailover executes with auth profile failover
func (r *Runner) executeWithFailover(ctx context.Context, messages []AgentMessage, tools []interface{}, params AgentRunParams) (AgentResult, error) {
	r.authMu.RLock()
	profiles := make([]AuthProfile, len(r.authProfiles))
	copy(profiles, r.authProfiles)
	r.authMu.RUnlock()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	sortProfilesByPriority(profiles)

	var lastErr error

	for _, profile := range profiles {
		profileStart := time.Now()
		if profile.CooldownUntil != nil && time.Now().UnixMilli() < *profile.CooldownUntil {
			observability.SetProviderCooldown(profile.Provider, true)
			logger.Debug().Str("profile_id", profile.ID).Msg("Skipping profile in cooldown")
			continue
		}

		observability.SetProviderCooldown(profile.Provider, false)
		logger.Debug().Str("profile_id", profile.ID).Msg("Trying auth profile")

		provider, err := r.providerFactory.NewProvider(profile)
		if err != nil {
			lastErr = err
			observability.RecordAgentRun(profile.Provider, time.Since(profileStart), false)
			logger.Warn().Str("profile_id", profile.ID).Err(err).Msg("Failed to create provider")
			continue
		}

		result, err := r.executeWithTools(ctx, provider, messages, tools, params)
		if err == nil {
			r.updateProfileSuccess(profile.ID)
			observability.RecordAgentRun(profile.Provider, time.Since(profileStart), true)
			return result, nil
		}

		lastErr = err
		observability.RecordAgentRun(profile.Provider, time.Since(profileStart), false)
		logger.Warn().Str("profile_id", profile.ID).Err(err).Msg("Auth profile failed")

		if !IsRetryableError(err) {
			return AgentResult{}, err
		}
		r.updateProfileFailure(profile.ID)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no auth profile available")
	}
	logger.Error().Err(lastErr).Msg("All auth profiles failed")
	return AgentResult{}, fmt.Errorf("all auth profiles failed: %w", lastErr)
}

// executeWithTools handles the tool execution loop
func (r *Runner) executeWithTools(ctx context.Context, provider LLMProvider, messages []AgentMessage, tools []interface{}, params AgentRunParams) (AgentResult, error) {
	currentMessages := append([]AgentMessage(nil), messages...)
	allToolCalls := []ToolCall{}
	usage := &TokenUsage{}

	systemPrompt := ""
	for _, msg := range messages {
		if msg.Role == "system" {
			systemPrompt = msg.Content
			break
		}
	}

	for turn := 0; turn < MaxTurns; turn++ {
		select {
		case <-ctx.Done():
			return AgentResult{ToolCalls: allToolCalls, Usage: usage, Aborted: true}, nil
		default:
		}

		response, err := r.callLLMWithRetry(ctx, provider, currentMessages, tools, systemPrompt, params)
		if err != nil {
			if ctx.Err() != nil {
				return AgentResult{ToolCalls: allToolCalls, Usage: usage, Aborted: true}, nil
			}
			return AgentResult{}, err
		}
		usage.Add(response.Usage)

		if len(response.ToolCalls) == 0 {
			return AgentResult{
				Response:  response.Content,
				ToolCalls: allToolCalls,
				Usage:     usage,
			}, nil
		}

		currentMessages = append(currentMessages, AgentMessage{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, toolCall := range response.ToolCalls {
			result := r.toolExecutor.Execute(
				ctx,
				toolCall.Name,
				toolCall.Parameters,
				&toolexecutor.ExecutionContext{
					SessionKey: params.SessionKey,
					Timeout:    r.toolTimeout,
					ToolPolicy: params.ToolPolicy,
				},
			)

			content := ""
			if result.Output != nil {
				content = fmt.Sprintf("%v", result.Output)
			}
			if result.Error != "" {
				content = result.Error
			}

			r.logger.Debug().
				Str("tool", toolCall.Name).
				Bool("success", result.Success).
				Msg("Tool call finished")

			currentMessages = append(currentMessages, AgentMessage{
				Role:       "tool",
				Content:    content,
				ToolCallID: toolCall.ID,
			})
		}

		allToolCalls = append(allToolCalls, response.ToolCalls...)
	}

	return AgentResult{}, ErrMaxTurns
}

// callLLMWithRetry calls LLM with exponential backoff retry
func (r *Runner) callLLMWithRetry(ctx context.Context, provider LLMProvider, messages []AgentMessage, tools []interface{}, systemPrompt string, params AgentRunParams) (*LLMResponse, error) {
	maxRetries := params.Config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		response, err := provider.Call(ctx, LLMRequest{
			Model:        params.Config.Model,
			Messages:     messages,
			Tools:        tools,
			Temperature:  params.Config.Temperature,
			MaxTokens:    params.Config.MaxTokens,
			SystemPrompt: systemPrompt,
		})
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		if attempt == maxRetries-1 {
			break
		}

		delay := r.retryBaseDelay * time.Duration(1<<attempt)
		r.logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// updateProfileSuccess resets failure count for a profile
func (r *Runner) updateProfileSuccess(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount = 0
			r.authProfiles[i].CooldownUntil = nil
			observability.SetProviderCooldown(r.authProfiles[i].Provider, false)
			break
		}
	}
}

// updateProfileFailure puts a profile into a cooldown that grows with each failure
func (r *Runner) updateProfileFailure(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount++
			cooldownMs := time.Now().UnixMilli() + int64(60000*r.authProfiles[i].FailureCount)
			r.authProfiles[i].CooldownUntil = &cooldownMs
			observability.SetProviderCooldown(r.authProfiles[i].Provider, true)
			break
		}
	}
}

// sortProfilesByPriority sorts profiles by priority (lower = higher priority)
func sortProfilesByPriority(profiles []AuthProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
}
