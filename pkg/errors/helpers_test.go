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

package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lperrors "github.com/tombee/lumipilot/pkg/errors"
)

func TestWrap(t *testing.T) {
	t.Run("wraps error with context", func(t *testing.T) {
		original := errors.New("original error")
		wrapped := lperrors.Wrap(original, "additional context")

		require.Error(t, wrapped)
		assert.Equal(t, "additional context: original error", wrapped.Error())
	})

	t.Run("returns nil for nil error", func(t *testing.T) {
		assert.NoError(t, lperrors.Wrap(nil, "context"))
	})

	t.Run("preserves error chain", func(t *testing.T) {
		original := errors.New("root cause")
		wrapped := lperrors.Wrap(original, "context")

		assert.True(t, errors.Is(wrapped, original))
	})

	t.Run("records a stack trace", func(t *testing.T) {
		wrapped := lperrors.Wrap(errors.New("boom"), "opening")
		assert.Contains(t, lperrors.StackTrace(wrapped), "helpers_test.go")
	})
}

func TestWrapf(t *testing.T) {
	original := errors.New("connection failed")
	wrapped := lperrors.Wrapf(original, "connecting to %s:%d", "localhost", 8080)

	assert.Equal(t, "connecting to localhost:8080: connection failed", wrapped.Error())
	assert.True(t, errors.Is(wrapped, original))
	assert.NoError(t, lperrors.Wrapf(nil, "connecting to %s", "x"))
}

func TestAs(t *testing.T) {
	target := &lperrors.NotFoundError{Resource: "service", ID: "chat"}
	wrapped := lperrors.Wrap(target, "executing")

	var nf *lperrors.NotFoundError
	require.True(t, lperrors.As(wrapped, &nf))
	assert.Equal(t, "chat", nf.ID)
}

func TestJoin(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")

	joined := lperrors.Join(a, nil, b)
	require.Error(t, joined)
	assert.True(t, errors.Is(joined, a))
	assert.True(t, errors.Is(joined, b))
	assert.NoError(t, lperrors.Join(nil, nil))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", &lperrors.TimeoutError{Operation: "tool call"}, true},
		{"wrapped timeout", lperrors.Wrap(&lperrors.TimeoutError{}, "ctx"), true},
		{"validation", &lperrors.ValidationError{Message: "bad"}, false},
		{"plain", errors.New("plain"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lperrors.IsRetryable(tt.err))
		})
	}
}
