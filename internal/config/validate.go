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

package config

import (
	"fmt"
	"regexp"

	"github.com/tombee/lumipilot/internal/mcp/builtin"
	lperrors "github.com/tombee/lumipilot/pkg/errors"
)

var serverIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)

// Validate checks the configuration and reports every problem at once as
// pkg/errors.ConfigErrors.
func (c *Config) Validate() error {
	var errs lperrors.ConfigErrors
	add := func(key, format string, args ...any) {
		errs = append(errs, &lperrors.ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)})
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		add("llm.provider", "must be one of [openai, anthropic], got %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature", "must be between 0 and 2, got %g", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 0 {
		add("llm.max_tokens", "must not be negative, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.MaxRetries < 0 {
		add("llm.max_retries", "must not be negative, got %d", c.LLM.MaxRetries)
	}

	if c.Agent.MaxRounds < 1 {
		add("agent.max_rounds", "must be at least 1, got %d", c.Agent.MaxRounds)
	}
	if c.Agent.ToolTimeout <= 0 {
		add("agent.tool_timeout", "must be positive, got %v", c.Agent.ToolTimeout)
	}
	if c.Agent.ConversationTimeout <= 0 {
		add("agent.conversation_timeout", "must be positive, got %v", c.Agent.ConversationTimeout)
	}
	if c.Agent.ConnectTimeout <= 0 {
		add("agent.connect_timeout", "must be positive, got %v", c.Agent.ConnectTimeout)
	}

	seen := map[string]bool{}
	if c.MCP.Builtin.Enabled {
		seen[builtin.ConnectionID] = true
	}
	for i, s := range c.MCP.Servers {
		key := fmt.Sprintf("mcp.servers[%d]", i)
		switch {
		case !serverIDPattern.MatchString(s.ID):
			add(key+".id", "must match %s, got %q", serverIDPattern, s.ID)
		case s.ID == builtin.ConnectionID:
			add(key+".id", "%q is reserved for the built-in tool server", s.ID)
		case seen[s.ID]:
			add(key+".id", "duplicate server id %q", s.ID)
		}
		seen[s.ID] = true

		switch s.transport() {
		case "stdio":
			if s.Command == "" {
				add(key+".command", "is required for stdio servers")
			}
		case "http":
			if s.URL == "" {
				add(key+".url", "is required for http servers")
			}
		default:
			add(key+".transport", "must be stdio or http, got %q", s.Transport)
		}
	}

	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative, got %g", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
		add("server.burst", "must be at least 1 when rate limiting, got %d", c.Server.Burst)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		add("log.level", "must be one of [trace, debug, info, warn, error], got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		add("log.format", "must be one of [json, text], got %q", c.Log.Format)
	}

	switch c.Tracing.Exporter {
	case "none", "stdout":
	case "otlp", "otlp-http":
		if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
			add("tracing.endpoint", "is required for the %s exporter", c.Tracing.Exporter)
		}
	default:
		add("tracing.exporter", "must be one of [none, stdout, otlp, otlp-http], got %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		add("tracing.sample_rate", "must be between 0 and 1, got %g", c.Tracing.SampleRate)
	}

	return errs.OrNil()
}

// RequireAPIKey reports a missing provider credential. It is separate from
// Validate so that commands that never call the model can run without one.
func (c *Config) RequireAPIKey() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	env := "OPENAI_API_KEY"
	if c.LLM.Provider == "anthropic" {
		env = "ANTHROPIC_API_KEY"
	}
	return &lperrors.ConfigError{
		Key:    "llm.api_key",
		Reason: fmt.Sprintf("no API key configured; set llm.api_key, LUMI_API_KEY or %s", env),
	}
}
