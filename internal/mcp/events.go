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

package mcp

import (
	"context"
	"log/slog"
	"time"
)

// EventType represents the type of connection event.
type EventType string

const (
	// EventTransition indicates a connection changed state.
	EventTransition EventType = "state_transition"
	// EventToolsChanged indicates the registry was rebuilt.
	EventToolsChanged EventType = "tools_changed"
	// EventInvocation indicates a tool call completed.
	EventInvocation EventType = "tool_invocation"
	// EventReconnectAttempt indicates a failed reconnect attempt.
	EventReconnectAttempt EventType = "reconnect_attempt"
)

// EventEmitter writes connection events to the injected structured log sink
// and mirrors them into Prometheus metrics.
type EventEmitter struct {
	logger *slog.Logger
}

// NewEventEmitter creates a new event emitter.
func NewEventEmitter(logger *slog.Logger) *EventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEmitter{logger: logger}
}

// Transition records a state change on one connection.
func (e *EventEmitter) Transition(connectionID, event string, from, to ConnectionState) {
	connectionTransitions.WithLabelValues(connectionID, string(to)).Inc()
	for _, s := range []ConnectionState{StateDisconnected, StateConnecting, StateReady, StateDegraded, StateClosed} {
		v := 0.0
		if s == to {
			v = 1
		}
		connectionState.WithLabelValues(connectionID, string(s)).Set(v)
	}

	level := slog.LevelInfo
	if to == StateDegraded || (to == StateClosed && from == StateConnecting) {
		level = slog.LevelWarn
	}
	e.logger.Log(context.Background(), level, "connection state changed",
		"event", string(EventTransition),
		"connection_id", connectionID,
		"trigger", event,
		"from", string(from),
		"to", string(to),
	)
}

// ReconnectFailed records one failed reconnect attempt.
func (e *EventEmitter) ReconnectFailed(connectionID string, err error, next time.Duration) {
	reconnectAttempts.WithLabelValues(connectionID).Inc()
	e.logger.Warn("reconnect attempt failed",
		"event", string(EventReconnectAttempt),
		"connection_id", connectionID,
		"error", err,
		"retry_in", next.String(),
	)
}

// ToolsChanged records a registry rebuild.
func (e *EventEmitter) ToolsChanged(version uint64, toolCount int) {
	registeredTools.Set(float64(toolCount))
	e.logger.Info("tool registry rebuilt",
		"event", string(EventToolsChanged),
		"version", version,
		"tool_count", toolCount,
	)
}

// Invocation records a completed tool call.
func (e *EventEmitter) Invocation(connectionID string, result ToolCallResult) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
		if ie, ok := result.Err.(*InvocationError); ok {
			outcome = string(ie.Kind)
		}
	}
	toolInvocations.WithLabelValues(connectionID, outcome).Inc()
	toolLatency.WithLabelValues(connectionID).Observe(result.Duration.Seconds())

	attrs := []any{
		"event", string(EventInvocation),
		"connection_id", connectionID,
		"tool", result.Tool,
		"success", result.Success,
		"duration_ms", result.Duration.Milliseconds(),
	}
	if !result.Success {
		attrs = append(attrs, "error", result.Error)
		e.logger.Warn("tool invocation failed", attrs...)
		return
	}
	e.logger.Debug("tool invocation completed", attrs...)
}
