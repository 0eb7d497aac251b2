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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	p, err := NewProvider(context.Background(), DefaultConfig(),
		WithRegistry(promclient.NewRegistry()),
		WithTracerProviderOptions(sdktrace.WithSyncer(exporter)),
		WithoutGlobal(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, exporter
}

func TestProvider_RecordsSpans(t *testing.T) {
	p, exporter := newTestProvider(t)

	_, span := p.Tracer("test").Start(context.Background(), "unit")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "unit", spans[0].Name)

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "lumipilot", service)
}

func TestProvider_MetricsHandler(t *testing.T) {
	p, _ := newTestProvider(t)
	p.Metrics().RecordLLMRequest(context.Background(), "openai", "gpt-4o-mini", "success", 12, 3, 200*time.Millisecond)
	p.Metrics().RecordHTTPRequest(context.Background(), http.MethodPost, "/v1/chat", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "lumipilot_llm_requests_total")
	assert.Contains(t, string(body), "lumipilot_llm_tokens_total")
	assert.Contains(t, string(body), "lumipilot_http_requests_total")
}

func TestProvider_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = ExporterConfig{Type: "stdout"}

	p, err := NewProvider(context.Background(), cfg,
		WithRegistry(promclient.NewRegistry()),
		WithStdout(&buf),
		WithoutGlobal(),
	)
	require.NoError(t, err)

	_, span := p.Tracer("test").Start(context.Background(), "exported-span")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "exported-span")
}

func TestCreateExporter(t *testing.T) {
	exp, err := CreateExporter(context.Background(), ExporterConfig{Type: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, exp)

	_, err = CreateExporter(context.Background(), ExporterConfig{Type: "carrier-pigeon"}, nil)
	assert.ErrorContains(t, err, "unknown exporter type")

	exp, err = CreateExporter(context.Background(), ExporterConfig{Type: "otlp-http", Endpoint: "localhost:4318", Insecure: true}, nil)
	require.NoError(t, err)
	require.NotNil(t, exp)
	_ = exp.Shutdown(context.Background())
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.5).Description(), "TraceIDRatioBased")
}
