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
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type retryTransport struct {
	base        http.RoundTripper
	maxAttempts int
	initial     time.Duration
	max         time.Duration
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	return &retryTransport{
		base:        base,
		maxAttempts: cfg.RetryAttempts + 1,
		initial:     cfg.RetryBackoff,
		max:         cfg.MaxBackoff,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !isIdempotent(req.Method) {
		return t.base.RoundTrip(req)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initial
	b.MaxInterval = t.max
	b.RandomizationFactor = 0.2

	var (
		resp *http.Response
		err  error
	)
	for attempt := 1; ; attempt++ {
		resp, err = t.base.RoundTrip(req)
		if attempt >= t.maxAttempts || !shouldRetry(resp, err) {
			return resp, err
		}

		delay := b.NextBackOff()
		if resp != nil {
			if ra := retryAfter(resp); ra > 0 && ra < t.max {
				delay = ra
			}
			resp.Body.Close()
		}

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return isTransient(err)
	}
	switch {
	case resp.StatusCode >= 500:
		return true
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// retryAfter parses Retry-After as seconds or an HTTP date.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		return time.Until(at)
	}
	return 0
}
