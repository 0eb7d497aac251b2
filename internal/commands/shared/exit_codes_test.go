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
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/lumipilot/pkg/llm"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailed},
		{"config", NewConfigError("bad config", nil), ExitConfigError},
		{"unhealthy", NewUnhealthyError("down"), ExitUnhealthy},
		{"provider", NewProviderError("failed", errors.New("x")), ExitProviderError},
		{"wrapped", fmt.Errorf("outer: %w", NewConfigError("bad", nil)), ExitConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	err := NewExecutionError("request failed", errors.New("timeout"))
	assert.Equal(t, "request failed: timeout", err.Error())
	assert.Equal(t, "down", NewUnhealthyError("down").Error())
}

func TestPrintError_Suggestion(t *testing.T) {
	cause := llm.NewCompletionError("openai", http.StatusUnauthorized, "invalid api key", nil)
	var buf bytes.Buffer
	PrintError(&buf, NewProviderError("chat failed", cause))

	out := buf.String()
	assert.Contains(t, out, "Error: chat failed")
	assert.Contains(t, out, "Suggestion: check LUMI_API_KEY")
}

func TestPrintError_NoSuggestion(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, errors.New("plain"))
	assert.Equal(t, "Error: plain\n", buf.String())
}
