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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"github.com/tombee/lumipilot/pkg/llm"
	"github.com/tombee/lumipilot/pkg/llm/llmtest"
)

func TestTracedProvider_Success(t *testing.T) {
	p, exporter := newTestProvider(t)
	inner := llmtest.NewScriptedProvider(llmtest.Reply("hi"))
	traced := WrapProvider(inner, p.Tracer("test"), p.Metrics())

	resp, err := traced.Complete(context.Background(), llm.CompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []llm.Message{llm.UserMessage("hello")},
		Metadata: map[string]string{"request_id": "req-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "scripted", traced.Name())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "llm.complete", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "scripted", attrs["llm.provider"])
	assert.Equal(t, "req-1", attrs["llm.metadata.request_id"])
	assert.Equal(t, int64(10), attrs["llm.usage.input_tokens"])
}

func TestTracedProvider_Error(t *testing.T) {
	p, exporter := newTestProvider(t)
	inner := llmtest.NewScriptedProvider(
		llmtest.Fail(llm.NewCompletionError("scripted", http.StatusBadGateway, "upstream", nil)),
	)
	traced := WrapProvider(inner, p.Tracer("test"), nil)

	_, err := traced.Complete(context.Background(), llm.CompletionRequest{})
	var ce *llm.CompletionError
	require.ErrorAs(t, err, &ce)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events)
	assert.NoError(t, traced.HealthCheck(context.Background()))
}
