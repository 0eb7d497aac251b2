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

package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the process's tracer and meter providers.
type Provider struct {
	tp       *sdktrace.TracerProvider
	mp       *metric.MeterProvider
	registry *promclient.Registry
	metrics  *MetricsCollector
}

// Option configures NewProvider.
type Option func(*options)

type options struct {
	registry *promclient.Registry
	stdout   io.Writer
	tpOpts   []sdktrace.TracerProviderOption
	global   bool
}

// WithRegistry exports metrics through reg instead of the default
// Prometheus registry.
func WithRegistry(reg *promclient.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithStdout redirects the stdout exporter.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithTracerProviderOptions adds raw SDK options, such as a syncer for tests.
func WithTracerProviderOptions(opts ...sdktrace.TracerProviderOption) Option {
	return func(o *options) { o.tpOpts = append(o.tpOpts, opts...) }
}

// WithoutGlobal keeps the provider out of the otel globals.
func WithoutGlobal() Option {
	return func(o *options) { o.global = false }
}

// NewProvider creates the tracer and meter providers described by cfg and,
// unless WithoutGlobal is given, installs the tracer provider globally so
// otel.Tracer callers pick it up.
func NewProvider(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	o := &options{global: true}
	for _, opt := range opts {
		opt(o)
	}

	// Note: We don't set SchemaURL to avoid conflicts when merging with default resource
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	}
	if cfg.Enabled {
		exporter, err := CreateExporter(ctx, cfg.Exporter, o.stdout)
		if err != nil {
			return nil, err
		}
		if exporter != nil {
			var batchOpts []sdktrace.BatchSpanProcessorOption
			if cfg.BatchInterval > 0 {
				batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchInterval))
			}
			tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter, batchOpts...))
		}
	}
	tp := sdktrace.NewTracerProvider(append(tpOpts, o.tpOpts...)...)

	var promOpts []prometheus.Option
	if o.registry != nil {
		promOpts = append(promOpts, prometheus.WithRegisterer(o.registry))
	}
	promExporter, err := prometheus.New(promOpts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)

	collector, err := NewMetricsCollector(mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	if o.global {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
	}

	return &Provider{
		tp:       tp,
		mp:       mp,
		registry: o.registry,
		metrics:  collector,
	}, nil
}

// TracerProvider returns the SDK tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tp
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Metrics returns the collector for LLM and HTTP metrics.
func (p *Provider) Metrics() *MetricsCollector {
	return p.metrics
}

// MetricsHandler serves every registered metric in Prometheus format:
// the otel instruments and the promauto metrics of the core packages.
func (p *Provider) MetricsHandler() http.Handler {
	if p.registry != nil {
		return promhttp.HandlerFor(promclient.Gatherers{p.registry, promclient.DefaultGatherer}, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// ForceFlush exports all pending spans synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return errors.Join(p.tp.ForceFlush(ctx), p.mp.ForceFlush(ctx))
}

// Shutdown flushes any pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.tp.Shutdown(ctx), p.mp.Shutdown(ctx))
}
