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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/lumipilot/pkg/llm"
)

const toolCallCompletion = `{
  "id": "chatcmpl-123",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "builtin__calculate", "arguments": "{\"expression\":\"2+2\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
}`

const textCompletion = `{
  "id": "chatcmpl-456",
  "object": "chat.completion",
  "created": 1700000001,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "The answer is 4."}
  }],
  "usage": {"prompt_tokens": 30, "completion_tokens": 5, "total_tokens": 35}
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider(llm.ProviderConfig{
		Name:    OpenAIName,
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_ToolCalls(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallCompletion)
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			llm.SystemMessage("be helpful"),
			llm.UserMessage("what is 2+2?"),
		},
		Tools: []llm.Tool{{
			Name:        "builtin__calculate",
			Description: "Evaluate an arithmetic expression",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"expression": map[string]any{"type": "string"}},
				"required":   []any{"expression"},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, llm.FinishReasonToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "builtin__calculate", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"expression":"2+2"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, llm.TokenUsage{InputTokens: 12, OutputTokens: 7, TotalTokens: 19}, resp.Usage)
	assert.Equal(t, "chatcmpl-123", resp.RequestID)

	assert.Equal(t, DefaultOpenAIModel, body["model"])
	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAIProvider_ToolResultsRoundTrip(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, textCompletion)
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Model: "gpt-4o",
		Messages: []llm.Message{
			llm.UserMessage("what is 2+2?"),
			llm.AssistantMessage("", llm.ToolCall{ID: "call_1", Name: "builtin__calculate", Arguments: `{"expression":"2+2"}`}),
			llm.ToolMessage("call_1", "builtin__calculate", "4"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", resp.Content)
	assert.Equal(t, llm.FinishReasonStop, resp.FinishReason)
	assert.Empty(t, resp.ToolCalls)

	assert.Equal(t, "gpt-4o", body["model"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 3)
	tool := messages[2].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
	assistant := messages[1].(map[string]any)
	assert.Len(t, assistant["tool_calls"], 1)
}

func TestOpenAIProvider_APIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})

	var ce *llm.CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.False(t, ce.Retryable)
	assert.Equal(t, OpenAIName, ce.Provider)
}

func TestOpenAIProvider_ServerErrorIsRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})

	var ce *llm.CompletionError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Retryable)
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider(llm.ProviderConfig{Name: OpenAIName})
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func TestObjectSchema(t *testing.T) {
	assert.Equal(t, "object", objectSchema(nil)["type"])
	s := objectSchema(map[string]any{"properties": map[string]any{}})
	assert.Equal(t, "object", s["type"])
}

func TestRegisteredFactories(t *testing.T) {
	assert.True(t, llm.HasFactory(OpenAIName))
	assert.True(t, llm.HasFactory(AnthropicName))
}
