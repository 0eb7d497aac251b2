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
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records LLM and HTTP gateway metrics through otel
// instruments exported in Prometheus format.
type MetricsCollector struct {
	meter metric.Meter

	llmRequestsTotal  metric.Int64Counter
	tokensTotal       metric.Int64Counter
	llmLatency        metric.Float64Histogram
	httpRequestsTotal metric.Int64Counter
	httpLatency       metric.Float64Histogram
}

// NewMetricsCollector creates a new metrics collector using the given meter provider
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	mc := &MetricsCollector{meter: meterProvider.Meter("lumipilot")}

	var err error
	mc.llmRequestsTotal, err = mc.meter.Int64Counter(
		"lumipilot_llm_requests_total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	mc.tokensTotal, err = mc.meter.Int64Counter(
		"lumipilot_llm_tokens_total",
		metric.WithDescription("Total number of tokens processed"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	mc.llmLatency, err = mc.meter.Float64Histogram(
		"lumipilot_llm_latency_seconds",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.httpRequestsTotal, err = mc.meter.Int64Counter(
		"lumipilot_http_requests_total",
		metric.WithDescription("Total number of gateway requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	mc.httpLatency, err = mc.meter.Float64Histogram(
		"lumipilot_http_request_duration_seconds",
		metric.WithDescription("Gateway request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordLLMRequest records one completion call.
func (mc *MetricsCollector) RecordLLMRequest(ctx context.Context, provider, model, status string, promptTokens, completionTokens int, latency time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("status", status),
	}

	mc.llmRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))

	if promptTokens > 0 {
		mc.tokensTotal.Add(ctx, int64(promptTokens), metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("type", "prompt"),
		))
	}
	if completionTokens > 0 {
		mc.tokensTotal.Add(ctx, int64(completionTokens), metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("type", "completion"),
		))
	}
}

// RecordHTTPRequest records one gateway request.
func (mc *MetricsCollector) RecordHTTPRequest(ctx context.Context, method, route string, status int, latency time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	mc.httpRequestsTotal.Add(ctx, 1, attrs)
	mc.httpLatency.Record(ctx, latency.Seconds(), attrs)
}
