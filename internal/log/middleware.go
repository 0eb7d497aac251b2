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

package log

import (
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware logs each request when it completes.
// The request ID is read from the X-Request-ID header, which the gateway
// sets before this middleware runs.
func HTTPMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			reqLogger := logger
			if id := r.Header.Get("X-Request-ID"); id != "" {
				reqLogger = WithRequestID(logger, id)
			}

			next.ServeHTTP(rec, r.WithContext(NewContext(r.Context(), reqLogger)))

			attrs := []any{
				EventKey, "http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				DurationKey, time.Since(start).Milliseconds(),
				"remote", r.RemoteAddr,
			}

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			} else if rec.status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			reqLogger.Log(r.Context(), level, "http request completed", attrs...)
		})
	}
}
