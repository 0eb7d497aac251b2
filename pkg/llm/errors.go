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
	"errors"
	"fmt"
	"net"
	"net/http"
)

// CompletionError reports a failed completion request. Retryable marks
// failures worth retrying: rate limits, server errors and network faults.
type CompletionError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *CompletionError) Error() string {
	msg := e.Provider + " completion failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CompletionError) Unwrap() error {
	return e.Cause
}

// ErrorType implements pkg/errors.ErrorClassifier.
func (e *CompletionError) ErrorType() string { return "completion" }

// IsRetryable implements pkg/errors.ErrorClassifier.
func (e *CompletionError) IsRetryable() bool { return e.Retryable }

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *CompletionError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *CompletionError) UserMessage() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "The language model rejected the configured credentials"
	case e.StatusCode == http.StatusTooManyRequests:
		return "The language model is rate limiting requests"
	default:
		return "The language model request failed"
	}
}

// Suggestion implements pkg/errors.UserVisibleError.
func (e *CompletionError) Suggestion() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "check LUMI_API_KEY or llm.api_key in the config file"
	case e.StatusCode == http.StatusTooManyRequests:
		return "wait and retry, or lower the request rate"
	case e.StatusCode == http.StatusNotFound:
		return "check llm.model and llm.base_url"
	default:
		return ""
	}
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// NewCompletionError classifies err from provider. Context cancellation is
// never retryable; network errors are.
func NewCompletionError(provider string, statusCode int, message string, cause error) *CompletionError {
	ce := &CompletionError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
	switch {
	case statusCode != 0:
		ce.Retryable = RetryableStatus(statusCode)
	case errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded):
		ce.Retryable = false
	default:
		var netErr net.Error
		ce.Retryable = errors.As(cause, &netErr)
	}
	return ce
}
