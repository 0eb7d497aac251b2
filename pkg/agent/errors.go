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
	"fmt"
	"time"
)

// ExhaustedAnswer is the answer given when the round budget runs out.
const ExhaustedAnswer = "I could not complete this request within the allowed number of tool rounds."

// LoopExhaustedError records that a conversation used every round without
// producing a final answer. It is a soft outcome: Run still returns a
// Result whose Answer is ExhaustedAnswer, and Result.Err exposes this error.
type LoopExhaustedError struct {
	MaxRounds int
	ToolCalls int
}

// Error implements the error interface.
func (e *LoopExhaustedError) Error() string {
	return fmt.Sprintf("tool loop exhausted after %d rounds (%d tool calls)", e.MaxRounds, e.ToolCalls)
}

// ErrorType implements pkg/errors.ErrorClassifier.
func (e *LoopExhaustedError) ErrorType() string { return "loop_exhausted" }

// IsRetryable implements pkg/errors.ErrorClassifier.
func (e *LoopExhaustedError) IsRetryable() bool { return false }

// ConversationTimeoutError reports that a conversation exceeded its total
// time budget. It aborts the request.
type ConversationTimeoutError struct {
	Timeout time.Duration
	Rounds  int
	Cause   error
}

// Error implements the error interface.
func (e *ConversationTimeoutError) Error() string {
	return fmt.Sprintf("conversation exceeded %s after %d rounds", e.Timeout, e.Rounds)
}

// Unwrap returns the underlying error.
func (e *ConversationTimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType implements pkg/errors.ErrorClassifier.
func (e *ConversationTimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements pkg/errors.ErrorClassifier.
func (e *ConversationTimeoutError) IsRetryable() bool { return true }

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *ConversationTimeoutError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *ConversationTimeoutError) UserMessage() string {
	return "The request took too long to answer"
}

// Suggestion implements pkg/errors.UserVisibleError.
func (e *ConversationTimeoutError) Suggestion() string {
	return "raise agent.conversation_timeout or simplify the request"
}
