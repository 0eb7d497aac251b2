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
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (typically 2.0 for exponential).
	Multiplier float64

	// Jitter adds randomness to prevent thundering herd (0.0-1.0).
	Jitter float64

	// RetryableErrors decides whether an error should be retried.
	// If nil, CompletionError.Retryable decides.
	RetryableErrors func(error) bool

	// Logger receives a warning for every retried failure.
	Logger *slog.Logger
}

// DefaultRetryConfig returns sensible default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// RetryableProviderWrapper wraps a provider with retry logic.
type RetryableProviderWrapper struct {
	provider Provider
	config   RetryConfig
}

// NewRetryableProvider wraps a provider with retry logic.
func NewRetryableProvider(provider Provider, config RetryConfig) *RetryableProviderWrapper {
	if config.RetryableErrors == nil {
		config.RetryableErrors = isRetryableError
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RetryableProviderWrapper{
		provider: provider,
		config:   config,
	}
}

// Name returns the wrapped provider's name.
func (r *RetryableProviderWrapper) Name() string {
	return r.provider.Name()
}

// Complete executes a completion request, retrying transient failures.
func (r *RetryableProviderWrapper) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	op := func() (*CompletionResponse, error) {
		resp, err := r.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !r.config.RetryableErrors(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.config.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.config.Logger.Warn("retrying completion",
				"provider", r.provider.Name(),
				"error", err,
				"retry_in", next,
			)
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return nil, err
	}
	return resp, nil
}

// HealthCheck forwards to the wrapped provider when it supports health checks.
func (r *RetryableProviderWrapper) HealthCheck(ctx context.Context) error {
	if hc, ok := r.provider.(HealthCheckable); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (r *RetryableProviderWrapper) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.config.InitialDelay > 0 {
		b.InitialInterval = r.config.InitialDelay
	}
	if r.config.MaxDelay > 0 {
		b.MaxInterval = r.config.MaxDelay
	}
	b.Multiplier = r.config.Multiplier
	b.RandomizationFactor = r.config.Jitter
	return b
}

// isRetryableError determines if an error should trigger a retry.
// Only completion errors the provider marked retryable qualify; context
// cancellation and unknown errors never do.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}
