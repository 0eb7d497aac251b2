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

package mcp

import (
	"fmt"
	"strings"
)

// ConnectionError reports that a tool server could not be opened or has
// dropped. It is never fatal to the process: the manager carries on without
// the connection's tools.
type ConnectionError struct {
	// ConnectionID names the failing connection.
	ConnectionID string
	// Op is the operation that failed (open, handshake, list_tools, reconnect, close).
	Op string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("tool server %q: %s failed", e.ConnectionID, e.Op)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *ConnectionError) IsUserVisible() bool {
	return true
}

// UserMessage implements pkg/errors.UserVisibleError.
func (e *ConnectionError) UserMessage() string {
	return fmt.Sprintf("Tool server %q is unavailable (%s failed)", e.ConnectionID, e.Op)
}

// Suggestion implements pkg/errors.UserVisibleError.
func (e *ConnectionError) Suggestion() string {
	if len(e.Suggestions) == 0 {
		return ""
	}
	return strings.Join(e.Suggestions, "; ")
}

// WithSuggestions adds suggestions to the error.
func (e *ConnectionError) WithSuggestions(suggestions ...string) *ConnectionError {
	e.Suggestions = suggestions
	return e
}

// InvocationKind classifies why a tool call failed.
type InvocationKind string

const (
	// InvocationRemote means the tool ran and reported an error.
	InvocationRemote InvocationKind = "remote"
	// InvocationTimeout means the call exceeded its per-call timeout.
	InvocationTimeout InvocationKind = "timeout"
	// InvocationTransport means the connection failed underneath the call.
	InvocationTransport InvocationKind = "transport"
	// InvocationInvalidArguments means the arguments did not match the tool's input schema.
	InvocationInvalidArguments InvocationKind = "invalid_arguments"
	// InvocationUnavailable means the owning connection was not ready.
	InvocationUnavailable InvocationKind = "unavailable"
)

// InvocationError reports a failed tool call. It travels inside a
// ToolCallResult and is shown to the model, not raised to the caller.
type InvocationError struct {
	Tool    string
	Kind    InvocationKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s failed (%s): %s", e.Tool, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// ErrorType implements pkg/errors.ErrorClassifier.
func (e *InvocationError) ErrorType() string { return "invocation" }

// IsRetryable implements pkg/errors.ErrorClassifier.
func (e *InvocationError) IsRetryable() bool {
	return e.Kind == InvocationTimeout || e.Kind == InvocationTransport
}

// ResolutionError reports a tool name that does not map to a ready connection.
// Like InvocationError it is surfaced to the model so it can self-correct.
type ResolutionError struct {
	Name   string
	Reason string
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve tool %q: %s", e.Name, e.Reason)
}

// ErrorType implements pkg/errors.ErrorClassifier.
func (e *ResolutionError) ErrorType() string { return "resolution" }

// IsRetryable implements pkg/errors.ErrorClassifier.
func (e *ResolutionError) IsRetryable() bool { return false }

// failedResult builds a failure ToolCallResult carrying err.
func failedResult(tool string, err error) ToolCallResult {
	return ToolCallResult{
		Tool:    tool,
		Success: false,
		Error:   err.Error(),
		Err:     err,
	}
}
