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
	"github.com/tombee/lumipilot/pkg/llm"
)

// ContextManager keeps a transcript inside an estimated token budget.
type ContextManager struct {
	maxTokens      int
	pruneThreshold int
}

// NewContextManager creates a new context manager. A non-positive budget
// disables pruning.
func NewContextManager(maxTokens int) *ContextManager {
	return &ContextManager{
		maxTokens:      maxTokens,
		pruneThreshold: int(float64(maxTokens) * 0.8), // Prune at 80% capacity
	}
}

// ShouldPrune checks if the transcript should be pruned.
func (cm *ContextManager) ShouldPrune(messages []llm.Message) bool {
	if cm.maxTokens <= 0 {
		return false
	}
	return cm.EstimateTokens(messages) > cm.pruneThreshold
}

// Prune drops the oldest rounds until the transcript fits the budget.
// The system instruction and the user message are always kept, and a round
// is removed whole so every tool result keeps its originating call.
func (cm *ContextManager) Prune(messages []llm.Message) []llm.Message {
	const head = 2
	if len(messages) <= head {
		return messages
	}

	rounds := splitRounds(messages[head:])
	budget := cm.maxTokens - cm.EstimateTokens(messages[:head])

	keep := len(rounds)
	for i := len(rounds) - 1; i >= 0; i-- {
		cost := cm.EstimateTokens(rounds[i])
		if budget-cost < 0 && i < len(rounds)-1 {
			break
		}
		budget -= cost
		keep = i
	}

	pruned := append([]llm.Message(nil), messages[:head]...)
	for _, r := range rounds[keep:] {
		pruned = append(pruned, r...)
	}
	return pruned
}

// splitRounds groups messages so each group starts with an assistant turn.
func splitRounds(messages []llm.Message) [][]llm.Message {
	var rounds [][]llm.Message
	for _, m := range messages {
		if m.Role == llm.MessageRoleAssistant || len(rounds) == 0 {
			rounds = append(rounds, nil)
		}
		rounds[len(rounds)-1] = append(rounds[len(rounds)-1], m)
	}
	return rounds
}

// EstimateTokens estimates the total token count for a list of messages
// using a four-characters-per-token heuristic.
func (cm *ContextManager) EstimateTokens(messages []llm.Message) int {
	total := 0
	for i := range messages {
		total += estimateMessageTokens(&messages[i])
	}
	return total
}

func estimateMessageTokens(msg *llm.Message) int {
	tokens := len(msg.Content)/4 + 10
	for _, tc := range msg.ToolCalls {
		tokens += len(tc.Name)/4 + len(tc.Arguments)/4 + 20
	}
	return tokens
}

// ContextStats describes transcript size relative to the budget.
type ContextStats struct {
	MessageCount    int
	EstimatedTokens int
	MaxTokens       int
	UtilizationPct  float64
}

// GetStats returns statistics about the context usage.
func (cm *ContextManager) GetStats(messages []llm.Message) ContextStats {
	estimated := cm.EstimateTokens(messages)
	stats := ContextStats{
		MessageCount:    len(messages),
		EstimatedTokens: estimated,
		MaxTokens:       cm.maxTokens,
	}
	if cm.maxTokens > 0 {
		stats.UtilizationPct = float64(estimated) / float64(cm.maxTokens) * 100
	}
	return stats
}
