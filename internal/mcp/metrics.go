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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// connectionState is 1 for the current state of each connection, 0 otherwise
	connectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lumipilot_mcp_connection_state",
			Help: "Current state of each tool server connection (1 = in state)",
		},
		[]string{"connection", "state"},
	)

	// connectionTransitions counts state changes by destination state
	connectionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumipilot_mcp_connection_transitions_total",
			Help: "Total connection state transitions by connection and destination state",
		},
		[]string{"connection", "to"},
	)

	// reconnectAttempts counts failed reconnect attempts
	reconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumipilot_mcp_reconnect_failures_total",
			Help: "Total failed reconnect attempts by connection",
		},
		[]string{"connection"},
	)

	// toolInvocations counts tool calls by outcome
	toolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumipilot_mcp_tool_invocations_total",
			Help: "Total tool invocations by connection and outcome",
		},
		[]string{"connection", "outcome"},
	)

	// toolLatency tracks tool call duration
	toolLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lumipilot_mcp_tool_duration_seconds",
			Help:    "Tool invocation latency by connection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connection"},
	)

	// registeredTools is the size of the current registry snapshot
	registeredTools = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lumipilot_mcp_registered_tools",
			Help: "Number of tools in the current registry snapshot",
		},
	)
)
