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

package httpclient

import (
	"log/slog"
	"time"

	lperrors "github.com/tombee/lumipilot/pkg/errors"
)

// Config configures the client.
type Config struct {
	// Timeout bounds a whole exchange including the body. Zero means the
	// caller's context is the only limit, which suits long completions.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first try.
	RetryAttempts int

	// RetryBackoff is the first retry delay; MaxBackoff caps later ones.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	// UserAgent is sent when the request has none.
	UserAgent string

	// Logger receives request logs when the request context carries none.
	Logger *slog.Logger
}

// DefaultConfig returns defaults suitable for API calls.
func DefaultConfig() Config {
	return Config{
		Timeout:       0,
		RetryAttempts: 2,
		RetryBackoff:  200 * time.Millisecond,
		MaxBackoff:    5 * time.Second,
		UserAgent:     "lumipilot/dev",
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs lperrors.ConfigErrors
	if c.Timeout < 0 {
		errs = append(errs, &lperrors.ConfigError{Key: "timeout", Reason: "must not be negative"})
	}
	if c.RetryAttempts < 0 {
		errs = append(errs, &lperrors.ConfigError{Key: "retry_attempts", Reason: "must not be negative"})
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			errs = append(errs, &lperrors.ConfigError{Key: "retry_backoff", Reason: "must be positive when retries are enabled"})
		}
		if c.MaxBackoff < c.RetryBackoff {
			errs = append(errs, &lperrors.ConfigError{Key: "max_backoff", Reason: "must be at least retry_backoff"})
		}
	}
	if c.UserAgent == "" {
		errs = append(errs, &lperrors.ConfigError{Key: "user_agent", Reason: "is required"})
	}
	return errs.OrNil()
}
