package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider talks to the Chat Completions API, or any endpoint that
// speaks it when a base URL is set.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL may be empty.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(clientOptions(apiKey, baseURL)...)}
}

func clientOptions(apiKey, baseURL string) []option.RequestOption {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return opts
}

// Provider returns the provider name
func (p *OpenAIProvider) Provider() string {
	return "openai"
}

// Call sends one chat completion request.
func (p *OpenAIProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	messages, err := openAIMessages(request)
	if err != nil {
		return nil, err
	}
	tools, err := openAITools(request.Tools)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
		Tools:    tools,
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return openAIResult(completion)
}

func openAIMessages(request LLMRequest) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		out = append(out, openai.SystemMessage(request.SystemPrompt))
	}

	for _, msg := range request.Messages {
		switch {
		case msg.Role == "user":
			out = append(out, openai.UserMessage(msg.Content))
		case msg.Role == "tool":
			out = append(out, openai.ToolMessage(msg.ToolCallID, msg.Content))
		case msg.Role == "assistant" && len(msg.ToolCalls) == 0:
			out = append(out, openai.AssistantMessage(msg.Content))
		case msg.Role == "assistant":
			calls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Parameters)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool parameters: %w", err)
				}
				calls = append(calls, openai.ChatCompletionMessageToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: openai.ChatCompletionMessageToolCallFunction{Name: tc.Name, Arguments: string(args)},
				})
			}
			turn := openai.ChatCompletionMessage{Role: "assistant", Content: msg.Content, ToolCalls: calls}
			out = append(out, turn.ToParam())
		}
	}
	return out, nil
}

func openAITools(tools []interface{}) ([]openai.ChatCompletionToolParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		name, description, schema, err := toolSpec(tool)
		if err != nil {
			return nil, err
		}
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        name,
				Description: openai.String(description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}
	return out, nil
}

// openAIResult reads the first choice. Empty tool arguments decode as an empty
// parameter map.
func openAIResult(completion *openai.ChatCompletion) (*LLMResponse, error) {
	if len(completion.Choices) == 0 {
		return nil, errors.New("no response choices returned")
	}
	message := completion.Choices[0].Message

	calls := make([]ToolCall, 0, len(message.ToolCalls))
	for _, tc := range message.ToolCalls {
		params := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
			}
		}
		calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Parameters: params})
	}

	return &LLMResponse{
		Content:   message.Content,
		ToolCalls: calls,
		Usage: &TokenUsage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}
