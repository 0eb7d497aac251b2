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

// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/tombee/lumipilot/pkg/llm"
)

// Step produces one completion.
type Step func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

// ErrScriptExhausted is returned once every step has been used and no
// fallback is set.
var ErrScriptExhausted = errors.New("scripted provider has no more steps")

// ScriptedProvider replays steps in order and records every request.
type ScriptedProvider struct {
	mu       sync.Mutex
	name     string
	steps    []Step
	fallback Step
	requests []llm.CompletionRequest
}

// NewScriptedProvider creates a provider that answers with steps in order.
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{name: "scripted", steps: steps}
}

// WithFallback sets the step used after the script runs out.
func (p *ScriptedProvider) WithFallback(step Step) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = step
	return p
}

// Name returns "scripted".
func (p *ScriptedProvider) Name() string {
	return p.name
}

// Complete records req and runs the next step.
func (p *ScriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	req.Messages = append([]llm.Message(nil), req.Messages...)
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	var step Step
	switch {
	case idx < len(p.steps):
		step = p.steps[idx]
	case p.fallback != nil:
		step = p.fallback
	}
	p.mu.Unlock()

	if step == nil {
		return nil, llm.NewCompletionError(p.name, 0, ErrScriptExhausted.Error(), ErrScriptExhausted)
	}
	return step(ctx, req)
}

// Requests returns a copy of every request received.
func (p *ScriptedProvider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}

// Calls returns the number of completions requested.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Reply answers with final text.
func Reply(content string) Step {
	return func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			Content:      content,
			FinishReason: llm.FinishReasonStop,
			Model:        req.Model,
			Usage:        llm.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}, nil
	}
}

// CallTools answers with tool calls and no text.
func CallTools(calls ...llm.ToolCall) Step {
	return func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			ToolCalls:    calls,
			FinishReason: llm.FinishReasonToolCalls,
			Model:        req.Model,
			Usage:        llm.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}, nil
	}
}

// Fail returns err.
func Fail(err error) Step {
	return func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, err
	}
}

// Block waits until ctx ends and reports it as a completion failure.
func Block() Step {
	return func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, llm.NewCompletionError("scripted", 0, "", ctx.Err())
	}
}
