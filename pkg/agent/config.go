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

package agent

import (
	"time"
)

// Config controls one Orchestrator. It is fixed at construction.
type Config struct {
	// MaxRounds bounds completion calls per user message.
	MaxRounds int

	// ToolTimeout bounds each tool invocation. A timed-out call becomes a
	// failed tool result and the loop continues.
	ToolTimeout time.Duration

	// ConversationTimeout bounds the whole Run. Exceeding it aborts the
	// conversation with a ConversationTimeoutError.
	ConversationTimeout time.Duration

	// Model overrides the provider's default model when set.
	Model string

	// Temperature and MaxTokens are passed through to the provider when set.
	Temperature *float64
	MaxTokens   *int

	// SequentialTools runs the tool calls of one round one at a time. By
	// default they are dispatched concurrently. Results are always
	// appended in request order.
	SequentialTools bool

	// TokenLimit is the estimated transcript budget before older rounds
	// are pruned. Zero disables pruning.
	TokenLimit int
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxRounds:           8,
		ToolTimeout:         30 * time.Second,
		ConversationTimeout: 120 * time.Second,
		TokenLimit:          100000,
	}
}

// WithDefaults fills in missing config values with defaults.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	result := c
	if result.MaxRounds <= 0 {
		result.MaxRounds = d.MaxRounds
	}
	if result.ToolTimeout <= 0 {
		result.ToolTimeout = d.ToolTimeout
	}
	if result.ConversationTimeout <= 0 {
		result.ConversationTimeout = d.ConversationTimeout
	}
	return result
}
