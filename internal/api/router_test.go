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

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/lumipilot/internal/log"
	"github.com/tombee/lumipilot/internal/mcp"
	"github.com/tombee/lumipilot/internal/service"
	"github.com/tombee/lumipilot/internal/tracing"
	"github.com/tombee/lumipilot/pkg/agent"
	"github.com/tombee/lumipilot/pkg/llm"
	"github.com/tombee/lumipilot/pkg/llm/llmtest"
)

type fakeTools struct{}

func (fakeTools) Registry() *mcp.Snapshot {
	return mcp.BuildSnapshot(3, []mcp.ToolDefinition{{
		QualifiedName: "builtin.echo",
		Name:          "echo",
		Description:   "Echo a message",
		ConnectionID:  "builtin",
	}})
}

func (fakeTools) Status() []mcp.ConnectionStatus {
	return []mcp.ConnectionStatus{{ID: "builtin", State: mcp.StateReady, ToolCount: 1}}
}

func newTestRouter(t *testing.T, provider llm.Provider, cfg RouterConfig, opts ...Option) *Router {
	t.Helper()
	reg := service.NewRegistry()
	orch := agent.New(provider, nil, agent.DefaultPersona(), agent.DefaultConfig(), agent.WithLogger(log.Discard()))
	require.NoError(t, reg.Register(service.NewChatService(service.ChatServiceConfig{
		Conversation: orch,
		Provider:     provider,
		Model:        "gpt-4o-mini",
		Logger:       log.Discard(),
	})))
	require.NoError(t, reg.Register(service.NewFaultDetectionService(provider, "gpt-4o-mini", log.Discard())))

	app := service.NewApplication(reg, "0.1.0", log.Discard())
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	opts = append([]Option{WithLogger(log.Discard()), WithTools(fakeTools{})}, opts...)
	return NewRouter(app, cfg, opts...)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_Root(t *testing.T) {
	r := newTestRouter(t, llmtest.NewScriptedProvider(), RouterConfig{})

	rec := do(t, r, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Lumi Pilot", body["name"])
	assert.Equal(t, "0.1.0", body["version"])
	assert.ElementsMatch(t, []any{"chat", "fault_detection"}, body["services"])

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/nope", "").Code)
}

func TestRouter_Chat(t *testing.T) {
	provider := llmtest.NewScriptedProvider(llmtest.Reply("Hi! How can I help?"))
	r := newTestRouter(t, provider, RouterConfig{})

	rec := do(t, r, http.MethodPost, "/v1/chat", `{"message":"hello","max_tokens":50}`, "X-Request-ID", "req-42")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Hi! How can I help?", resp.Message)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, 1, resp.Rounds)
	assert.Equal(t, "req-42", resp.RequestID)

	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].MaxTokens)
	assert.Equal(t, 50, *reqs[0].MaxTokens)
}

func TestRouter_ChatErrors(t *testing.T) {
	cause := llm.NewCompletionError("openai", 500, "upstream exploded", nil)
	r := newTestRouter(t, llmtest.NewScriptedProvider(llmtest.Fail(cause)), RouterConfig{})

	rec := do(t, r, http.MethodPost, "/v1/chat", `{"message": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/v1/chat", `{"message": "hi", "role": "system"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	rec = do(t, r, http.MethodPost, "/v1/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/v1/chat", `{"message": "hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "upstream exploded")
	assert.NotEmpty(t, resp.RequestID)
}

func TestRouter_Service(t *testing.T) {
	r := newTestRouter(t, llmtest.NewScriptedProvider(llmtest.Reply("all good")), RouterConfig{})

	rec := do(t, r, http.MethodPost, "/v1/services/fault_detection/analyze_logs",
		`{"payload": {"logs": ["ERROR disk full"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp service.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "all good", resp.Data["analysis_result"])
	assert.Equal(t, "fault_detection", resp.Metadata.ServiceName)
	assert.Equal(t, "analyze_logs", resp.Metadata.Action)

	rec = do(t, r, http.MethodPost, "/v1/services/fault_detection/teleport", `{"payload": {}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, r, http.MethodPost, "/v1/services/weather/forecast", `{"payload": {}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ServicesList(t *testing.T) {
	r := newTestRouter(t, llmtest.NewScriptedProvider(), RouterConfig{})

	body := decode(t, do(t, r, http.MethodGet, "/v1/services", ""))
	services := body["services"].(map[string]any)
	assert.ElementsMatch(t, []any{"chat", "stream_chat"}, services["chat"])
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t, llmtest.NewScriptedProvider(), RouterConfig{})

	rec := do(t, r, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["healthy"])
	assert.Contains(t, body["services"], "chat")
}

func TestRouter_ToolsAndConnections(t *testing.T) {
	r := newTestRouter(t, llmtest.NewScriptedProvider(), RouterConfig{})

	body := decode(t, do(t, r, http.MethodGet, "/v1/tools", ""))
	assert.EqualValues(t, 3, body["version"])
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "builtin.echo", tool["name"])
	assert.Equal(t, "builtin__echo", tool["wire_name"])

	body = decode(t, do(t, r, http.MethodGet, "/v1/connections", ""))
	conns := body["connections"].([]any)
	require.Len(t, conns, 1)
	assert.Equal(t, "ready", conns[0].(map[string]any)["state"])
}

func TestRouter_RateLimit(t *testing.T) {
	r := newTestRouter(t, llmtest.NewScriptedProvider(), RouterConfig{RateLimit: 0.001, Burst: 2})

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/", "").Code)
	rec := do(t, r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/v1/health", "").Code, "health is never limited")
}

func TestRouter_GeneratesRequestID(t *testing.T) {
	r := newTestRouter(t, llmtest.NewScriptedProvider(), RouterConfig{})

	rec := do(t, r, http.MethodGet, "/", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestRouter_Metrics(t *testing.T) {
	p, err := tracing.NewProvider(context.Background(), tracing.DefaultConfig(),
		tracing.WithRegistry(promclient.NewRegistry()),
		tracing.WithoutGlobal(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	r := newTestRouter(t, llmtest.NewScriptedProvider(), RouterConfig{}, WithMetrics(p.Metrics(), p.MetricsHandler()))

	require.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/", "").Code)
	rec := do(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lumipilot_http_requests")
	assert.Contains(t, rec.Body.String(), `route="GET /{$}"`)
}
