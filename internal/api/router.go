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

// Package api provides the HTTP gateway in front of the service layer.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tombee/lumipilot/internal/log"
	"github.com/tombee/lumipilot/internal/mcp"
	"github.com/tombee/lumipilot/internal/service"
	"github.com/tombee/lumipilot/internal/tracing"
	"github.com/tombee/lumipilot/pkg/httpclient"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version string

	// RateLimit is the sustained requests per second across all clients.
	// Zero disables rate limiting.
	RateLimit float64
	Burst     int
}

// ToolStatusProvider exposes tool servers to the gateway. *mcp.Manager
// satisfies it.
type ToolStatusProvider interface {
	Registry() *mcp.Snapshot
	Status() []mcp.ConnectionStatus
}

// Option configures a Router.
type Option func(*Router)

// WithTools enables /v1/tools and /v1/connections.
func WithTools(tools ToolStatusProvider) Option {
	return func(r *Router) { r.tools = tools }
}

// WithMetrics records HTTP metrics to collector and serves handler on /metrics.
func WithMetrics(collector *tracing.MetricsCollector, handler http.Handler) Option {
	return func(r *Router) {
		r.metrics = collector
		r.metricsHandler = handler
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// Router wraps an http.ServeMux with request IDs, rate limiting, logging
// and metrics.
type Router struct {
	mux            *http.ServeMux
	app            *service.Application
	config         RouterConfig
	tools          ToolStatusProvider
	limiter        *rate.Limiter
	metrics        *tracing.MetricsCollector
	metricsHandler http.Handler
	logger         *slog.Logger
	started        time.Time
	handler        http.Handler
}

// NewRouter creates the gateway router over app.
func NewRouter(app *service.Application, cfg RouterConfig, opts ...Option) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		app:     app,
		config:  cfg,
		logger:  slog.Default(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	r.mux.HandleFunc("GET /{$}", r.handleRoot)
	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("POST /v1/chat", r.handleChat)
	r.mux.HandleFunc("POST /v1/services/{service}/{action}", r.handleService)
	r.mux.HandleFunc("GET /v1/services", r.handleServices)
	if r.tools != nil {
		r.mux.HandleFunc("GET /v1/tools", r.handleTools)
		r.mux.HandleFunc("GET /v1/connections", r.handleConnections)
	}
	if r.metricsHandler != nil {
		r.mux.Handle("GET /metrics", r.metricsHandler)
	}

	// Outermost first: request ID, logging, rate limit, metrics, routes.
	var h http.Handler = http.HandlerFunc(r.serveWithMetrics)
	h = r.rateLimit(h)
	h = log.HTTPMiddleware(r.logger)(h)
	h = requestID(h)
	r.handler = h
	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// requestID ensures every request carries an X-Request-ID, echoing it on
// the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			req.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, req.WithContext(httpclient.WithRequestID(req.Context(), id)))
	})
}

// rateLimit rejects requests beyond the token bucket. Health and metrics
// are never limited.
func (r *Router) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.limiter != nil && !exempt(req.URL.Path) && !r.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func exempt(path string) bool {
	return path == "/v1/health" || path == "/metrics"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// serveWithMetrics routes the request and records its outcome by route
// pattern rather than raw path, keeping label cardinality bounded.
func (r *Router) serveWithMetrics(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	r.mux.ServeHTTP(sw, req)

	if r.metrics != nil {
		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		r.metrics.RecordHTTPRequest(req.Context(), req.Method, route, sw.status, time.Since(start))
	}
}
