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

// Package service exposes the assistant's capabilities behind one
// request/response contract. Each Service handles a fixed set of actions;
// an Application dispatches requests to services by name through an
// explicit Registry and stamps every response with Metadata.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is a capability variant (chat, fault detection, ...).
type Service interface {
	// Name is the registry key.
	Name() string

	// Process handles one request. Failures are reported in the Response,
	// never as a panic.
	Process(ctx context.Context, req Request) Response

	// HealthCheck reports whether the service can currently serve requests.
	HealthCheck(ctx context.Context) HealthStatus

	// ListActions returns the supported action names.
	ListActions() []string
}

// RequestContext identifies one inbound request.
type RequestContext struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

// Request is the uniform service request.
type Request struct {
	Action   string         `json:"action"`
	Payload  map[string]any `json:"payload"`
	Context  RequestContext `json:"context"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewRequest creates a request with a fresh request ID.
func NewRequest(action string, payload map[string]any) Request {
	if payload == nil {
		payload = map[string]any{}
	}
	return Request{
		Action:  action,
		Payload: payload,
		Context: RequestContext{
			RequestID: uuid.NewString(),
			Timestamp: time.Now(),
		},
	}
}

// Metadata describes how a response was produced.
type Metadata struct {
	RequestID   string        `json:"request_id"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
	ServiceName string        `json:"service_name"`
	Action      string        `json:"action"`
	AppName     string        `json:"app_name"`
	Version     string        `json:"version"`
}

// Response is the uniform service response.
type Response struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

// Success builds a successful response.
func Success(service string, req Request, data map[string]any) Response {
	return Response{
		Success:  true,
		Data:     data,
		Metadata: newMetadata(service, req),
	}
}

// Failure builds a failed response.
func Failure(service string, req Request, format string, args ...any) Response {
	return Response{
		Success:  false,
		Error:    fmt.Sprintf(format, args...),
		Metadata: newMetadata(service, req),
	}
}

func newMetadata(service string, req Request) Metadata {
	return Metadata{
		RequestID:   req.Context.RequestID,
		Timestamp:   time.Now(),
		ServiceName: service,
		Action:      req.Action,
	}
}

// HealthStatus is one service's health.
type HealthStatus struct {
	Healthy     bool           `json:"healthy"`
	ServiceName string         `json:"service_name"`
	Timestamp   time.Time      `json:"timestamp"`
	Details     map[string]any `json:"details,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// decodePayload copies a loosely typed payload into a typed request struct.
func decodePayload(payload map[string]any, into any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
