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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/tombee/lumipilot/pkg/errors"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitFailed        = 1
	ExitConfigError   = 2
	ExitUnhealthy     = 3
	ExitProviderError = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for failed requests
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitFailed, Message: msg, Cause: cause}
}

// NewConfigError creates an error for unusable configuration
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewUnhealthyError reports a failed health check
func NewUnhealthyError(msg string) *ExitError {
	return &ExitError{Code: ExitUnhealthy, Message: msg}
}

// NewProviderError creates an error for completion provider failures
func NewProviderError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitProviderError, Message: msg, Cause: cause}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// HandleExitError prints err with any suggestion and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// PrintError writes err and, if the chain holds a user-visible error, its
// suggestion.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())

	for e := err; e != nil; e = errors.Unwrap(e) {
		if userErr, ok := e.(pkgerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				if s := userErr.Suggestion(); s != "" {
					fmt.Fprintf(w, "\nSuggestion: %s\n", s)
				}
			}
			return
		}
	}
}
