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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tombee/lumipilot/internal/log"
	"github.com/tombee/lumipilot/internal/mcp"
	"github.com/tombee/lumipilot/internal/service"
	lperrors "github.com/tombee/lumipilot/pkg/errors"
)

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Message     string   `json:"message"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
}

// ChatResponse is the body returned by POST /v1/chat.
type ChatResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message,omitempty"`
	Model     string  `json:"model,omitempty"`
	Rounds    int     `json:"rounds"`
	ToolCalls int     `json:"tool_calls"`
	Exhausted bool    `json:"exhausted"`
	Duration  float64 `json:"duration"`
	RequestID string  `json:"request_id"`
	Error     string  `json:"error,omitempty"`
}

// ServiceRequest is the body of POST /v1/services/{service}/{action}.
type ServiceRequest struct {
	Payload   map[string]any `json:"payload"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// ToolInfo describes one tool in GET /v1/tools.
type ToolInfo struct {
	Name         string          `json:"name"`
	WireName     string          `json:"wire_name"`
	Description  string          `json:"description"`
	ConnectionID string          `json:"connection_id"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     service.DefaultAppName,
		"version":  r.config.Version,
		"services": r.app.Registry().List(),
		"endpoints": []string{
			"GET /v1/health",
			"POST /v1/chat",
			"POST /v1/services/{service}/{action}",
			"GET /v1/services",
			"GET /v1/tools",
			"GET /v1/connections",
			"GET /metrics",
		},
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	health := r.app.HealthCheck(req.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy":   health.Healthy,
		"app_name":  health.AppName,
		"version":   health.Version,
		"uptime":    time.Since(r.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  health.Services,
	})
}

func (r *Router) handleChat(w http.ResponseWriter, req *http.Request) {
	var body ChatRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	payload := map[string]any{"message": body.Message}
	if body.Temperature != nil {
		payload["temperature"] = *body.Temperature
	}
	if body.MaxTokens != nil {
		payload["max_tokens"] = *body.MaxTokens
	}
	sreq := newServiceRequest(req, "chat", payload, body.UserID, body.SessionID)
	resp := r.app.Execute(req.Context(), service.ChatServiceName, sreq)

	out := ChatResponse{
		Success:   resp.Success,
		Duration:  resp.Metadata.Duration.Seconds(),
		RequestID: resp.Metadata.RequestID,
		Error:     resp.Error,
	}
	if resp.Success {
		out.Message, _ = resp.Data["message"].(string)
		out.Model, _ = resp.Data["model"].(string)
		out.Rounds, _ = resp.Data["rounds"].(int)
		out.ToolCalls, _ = resp.Data["tool_calls"].(int)
		out.Exhausted, _ = resp.Data["exhausted"].(bool)
		writeJSON(w, http.StatusOK, out)
		return
	}
	log.FromContext(req.Context(), r.logger).Warn("chat failed", "error", resp.Error)
	writeJSON(w, http.StatusBadGateway, out)
}

func (r *Router) handleService(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("service")
	action := req.PathValue("action")

	if _, err := r.app.Registry().Get(name); err != nil {
		var nf *lperrors.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("service %q not found", name))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var body ServiceRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := r.app.Execute(req.Context(), name, newServiceRequest(req, action, body.Payload, body.UserID, body.SessionID))
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (r *Router) handleServices(w http.ResponseWriter, req *http.Request) {
	out := map[string][]string{}
	for _, name := range r.app.Registry().List() {
		svc, err := r.app.Registry().Get(name)
		if err != nil {
			continue
		}
		out[name] = svc.ListActions()
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": out})
}

func (r *Router) handleTools(w http.ResponseWriter, req *http.Request) {
	snap := r.tools.Registry()
	if snap == nil {
		snap = mcp.EmptySnapshot()
	}
	tools := make([]ToolInfo, 0, snap.Len())
	for _, def := range snap.Tools() {
		tools = append(tools, ToolInfo{
			Name:         def.QualifiedName,
			WireName:     snap.WireName(def.QualifiedName),
			Description:  def.Description,
			ConnectionID: def.ConnectionID,
			InputSchema:  def.InputSchema,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": snap.Version(),
		"count":   len(tools),
		"tools":   tools,
	})
}

func (r *Router) handleConnections(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": r.tools.Status(),
	})
}

func newServiceRequest(req *http.Request, action string, payload map[string]any, userID, sessionID string) service.Request {
	sreq := service.NewRequest(action, payload)
	sreq.Context.RequestID = req.Header.Get("X-Request-ID")
	sreq.Context.UserID = userID
	sreq.Context.SessionID = sessionID
	sreq.Context.TraceID = req.Header.Get("traceparent")
	return sreq
}

// decodeBody reads a bounded JSON body. Unknown fields are rejected.
func decodeBody(w http.ResponseWriter, req *http.Request, into any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
