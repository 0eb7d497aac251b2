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

package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tombee/lumipilot/internal/mcp"
	"github.com/tombee/lumipilot/pkg/agent"
	"github.com/tombee/lumipilot/pkg/llm"
)

// ChatServiceName is the registry key of the chat service.
const ChatServiceName = "chat"

// Conversation runs one tool-augmented conversation. *agent.Orchestrator
// satisfies it.
type Conversation interface {
	Run(ctx context.Context, userMessage string, opts ...agent.RunOption) (*agent.Result, error)
}

// ToolStatus reports tool server connections. *mcp.Manager satisfies it.
type ToolStatus interface {
	Status() []mcp.ConnectionStatus
	ReadyCount() int
	Registry() *mcp.Snapshot
}

// ChatRequest is the payload of the chat actions.
type ChatRequest struct {
	Message     string   `json:"message"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// ChatService answers user messages through the conversation orchestrator.
type ChatService struct {
	conv     Conversation
	provider llm.Provider
	tools    ToolStatus
	model    string
	persona  string
	logger   *slog.Logger
}

// ChatServiceConfig wires a ChatService.
type ChatServiceConfig struct {
	Conversation Conversation
	// Provider is health-checked when it implements llm.HealthCheckable.
	Provider llm.Provider
	// Tools may be nil when no tool servers are configured.
	Tools   ToolStatus
	Model   string
	Persona string
	Logger  *slog.Logger
}

// NewChatService creates the chat service.
func NewChatService(cfg ChatServiceConfig) *ChatService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		conv:     cfg.Conversation,
		provider: cfg.Provider,
		tools:    cfg.Tools,
		model:    cfg.Model,
		persona:  cfg.Persona,
		logger:   logger.With(slog.String("service", ChatServiceName)),
	}
}

// Name returns "chat".
func (s *ChatService) Name() string { return ChatServiceName }

// ListActions returns the chat actions. stream_chat answers in one piece.
func (s *ChatService) ListActions() []string {
	return []string{"chat", "stream_chat"}
}

// Process handles chat and stream_chat.
func (s *ChatService) Process(ctx context.Context, req Request) Response {
	switch req.Action {
	case "chat", "stream_chat":
		return s.chat(ctx, req)
	default:
		return Failure(ChatServiceName, req, "unsupported action: %s", req.Action)
	}
}

func (s *ChatService) chat(ctx context.Context, req Request) Response {
	var in ChatRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return Failure(ChatServiceName, req, "%s", err.Error())
	}
	if strings.TrimSpace(in.Message) == "" {
		return Failure(ChatServiceName, req, "message must not be empty")
	}

	var opts []agent.RunOption
	if in.Temperature != nil {
		opts = append(opts, agent.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil {
		opts = append(opts, agent.WithMaxTokens(*in.MaxTokens))
	}

	res, err := s.conv.Run(ctx, in.Message, opts...)
	if err != nil {
		return Failure(ChatServiceName, req, "%s", err.Error())
	}

	model := res.Model
	if model == "" {
		model = s.model
	}
	return Success(ChatServiceName, req, map[string]any{
		"message":          res.Answer,
		"model":            model,
		"input_length":     utf8.RuneCountInString(in.Message),
		"response_length":  utf8.RuneCountInString(res.Answer),
		"rounds":           res.Rounds,
		"tool_calls":       len(res.ToolCalls),
		"exhausted":        res.Exhausted,
		"registry_version": res.RegistryVersion,
		"usage":            res.Usage,
		"duration":         res.Duration.Seconds(),
	})
}

// HealthCheck verifies the completion endpoint and reports tool servers.
// Tool server problems do not make the service unhealthy.
func (s *ChatService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		ServiceName: ChatServiceName,
		Timestamp:   time.Now(),
		Details: map[string]any{
			"model":             s.model,
			"persona":           s.persona,
			"supported_actions": s.ListActions(),
			"mcp_enabled":       s.tools != nil,
		},
	}

	llmErr := checkProvider(ctx, s.provider)
	status.Healthy = llmErr == nil
	status.Details["llm_connected"] = llmErr == nil
	if llmErr != nil {
		status.Error = llmErr.Error()
	}

	if s.tools != nil {
		status.Details["mcp_ready_connections"] = s.tools.ReadyCount()
		status.Details["mcp_tools"] = s.tools.Registry().Len()
		status.Details["mcp_connections"] = s.tools.Status()
	}
	return status
}

func checkProvider(ctx context.Context, p llm.Provider) error {
	if hc, ok := p.(llm.HealthCheckable); ok {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return hc.HealthCheck(ctx)
	}
	return nil
}
