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

package llm

import (
	"context"
	"time"
)

// Provider is a chat-completion backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// Complete sends the conversation and blocks until the model replies.
	// Failures are returned as *CompletionError.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest contains all parameters for one completion.
type CompletionRequest struct {
	// Messages is the conversation so far, oldest first.
	Messages []Message

	// Model overrides the provider's configured model.
	Model string

	// Temperature controls randomness. If nil, the provider default applies.
	Temperature *float64

	// MaxTokens limits the response length. If nil, the provider default applies.
	MaxTokens *int

	// Tools are the functions the model may call this round.
	Tools []Tool

	// Metadata carries request tracking information (request IDs and the like).
	Metadata map[string]string
}

// Message is one entry in a conversation.
type Message struct {
	Role    MessageRole
	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string

	// Name is the tool that produced a tool message.
	Name string
}

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content}
}

// AssistantMessage builds an assistant message, optionally carrying tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: MessageRoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage builds the reply to one tool call.
func ToolMessage(callID, name, content string) Message {
	return Message{Role: MessageRoleTool, ToolCallID: callID, Name: name, Content: content}
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its result message.
	ID string

	// Name is the function name as the model saw it.
	Name string

	// Arguments is the JSON-encoded argument object, exactly as the model produced it.
	Arguments string
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string

	// InputSchema is a JSON Schema object describing the arguments.
	InputSchema map[string]any
}

// CompletionResponse is the model's reply to one request.
type CompletionResponse struct {
	// Content is the generated text. It may be empty when ToolCalls is set.
	Content string

	// ToolCalls is non-empty when the model wants tools run before answering.
	ToolCalls []ToolCall

	FinishReason FinishReason
	Usage        TokenUsage

	// Model is the model that actually served the request.
	Model string

	// RequestID is the provider's identifier for the request.
	RequestID string

	Created time.Time
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonError         FinishReason = "error"
)

// TokenUsage tracks token consumption for one request.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// HealthCheckable is an optional interface for providers that can verify
// their credentials and reachability.
type HealthCheckable interface {
	HealthCheck(ctx context.Context) error
}
