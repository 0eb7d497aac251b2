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

package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// conversationsTotal counts finished conversations by outcome
	conversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumipilot_agent_conversations_total",
			Help: "Total conversations by outcome (answered, exhausted, timeout, completion_error, cancelled)",
		},
		[]string{"outcome"},
	)

	// conversationRounds tracks completion calls per conversation
	conversationRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lumipilot_agent_conversation_rounds",
			Help:    "Rounds used per conversation",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	// conversationDuration tracks end-to-end latency
	conversationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lumipilot_agent_conversation_duration_seconds",
			Help:    "Conversation latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// completionLatency tracks each completion call
	completionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lumipilot_agent_completion_duration_seconds",
			Help:    "Completion call latency by provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// tokensTotal counts tokens reported by the provider
	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumipilot_agent_tokens_total",
			Help: "Tokens consumed by direction (input, output)",
		},
		[]string{"direction"},
	)

	// toolCallsTotal counts tool calls requested by the model
	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumipilot_agent_tool_calls_total",
			Help: "Tool calls requested by the model by outcome (success, failure)",
		},
		[]string{"outcome"},
	)
)
