// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tombee/lumipilot/pkg/llm"
)

const (
	// AnthropicName is the registry name of the Anthropic provider.
	AnthropicName = "anthropic"

	// DefaultAnthropicModel is used when no model is configured.
	DefaultAnthropicModel = "claude-3-5-haiku-latest"

	// defaultAnthropicMaxTokens is required by the Messages API.
	defaultAnthropicMaxTokens = 1024
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates an Anthropic provider. SDK-level retries are
// disabled; wrap the provider with llm.NewRetryableProvider instead.
func NewAnthropicProvider(cfg llm.ProviderConfig) (*AnthropicProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: model}, nil
}

// NewAnthropicFromConfig adapts NewAnthropicProvider to llm.ProviderFactory.
func NewAnthropicFromConfig(cfg llm.ProviderConfig) (llm.Provider, error) {
	return NewAnthropicProvider(cfg)
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return AnthropicName
}

// Complete sends a Messages API request.
func (p *AnthropicProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages, system, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, llm.NewCompletionError(AnthropicName, 0, err.Error(), err)
	}

	maxTokens := int64(defaultAnthropicMaxTokens)
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = int64(*req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	result, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	out := &llm.CompletionResponse{
		FinishReason: mapAnthropicStopReason(string(result.StopReason)),
		Model:        string(result.Model),
		RequestID:    result.ID,
		Created:      time.Now(),
		Usage: llm.TokenUsage{
			InputTokens:  int(result.Usage.InputTokens),
			OutputTokens: int(result.Usage.OutputTokens),
			TotalTokens:  int(result.Usage.InputTokens + result.Usage.OutputTokens),
		},
	}

	var text []string
	for _, block := range result.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, b.Text)
		case anthropic.ToolUseBlock:
			args, err := json.Marshal(b.Input)
			if err != nil {
				return nil, llm.NewCompletionError(AnthropicName, 0, "failed to encode tool arguments", err)
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: b.ID, Name: b.Name, Arguments: string(args)})
		}
	}
	out.Content = strings.Join(text, "\n")
	return out, nil
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.NewCompletionError(AnthropicName, apiErr.StatusCode, "", err)
	}
	return llm.NewCompletionError(AnthropicName, 0, "", err)
}

// toAnthropicMessages converts a conversation. System messages are lifted
// into the separate system prompt, and consecutive tool results are merged
// into one user turn as the Messages API requires.
func toAnthropicMessages(messages []llm.Message) ([]anthropic.MessageParam, string, error) {
	var (
		out     []anthropic.MessageParam
		system  []string
		results []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range messages {
		if m.Role != llm.MessageRoleTool {
			flush()
		}
		switch m.Role {
		case llm.MessageRoleSystem:
			system = append(system, m.Content)
		case llm.MessageRoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case llm.MessageRoleTool:
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, strings.HasPrefix(m.Content, "Error: ")))
		case llm.MessageRoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if !json.Valid(input) {
					return nil, "", errors.New("tool call " + tc.ID + " has invalid JSON arguments")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	flush()
	return out, strings.Join(system, "\n"), nil
}

func toAnthropicTools(tools []llm.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: "object"}
		if props, ok := t.InputSchema["properties"].(map[string]any); ok {
			schema.Properties = props
		}
		switch req := t.InputSchema["required"].(type) {
		case []string:
			schema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		}
	}
	return out
}

func mapAnthropicStopReason(reason string) llm.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	case "refusal":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReason(reason)
	}
}
