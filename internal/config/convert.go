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
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tombee/lumipilot/internal/log"
	"github.com/tombee/lumipilot/internal/mcp"
	"github.com/tombee/lumipilot/internal/mcp/builtin"
	"github.com/tombee/lumipilot/internal/tracing"
	"github.com/tombee/lumipilot/pkg/agent"
	"github.com/tombee/lumipilot/pkg/httpclient"
	"github.com/tombee/lumipilot/pkg/llm"
	"github.com/tombee/lumipilot/pkg/secrets"
)

// transport returns the effective transport for a server entry.
func (s ServerEntry) transport() string {
	if s.Transport != "" {
		return s.Transport
	}
	if s.URL != "" && s.Command == "" {
		return "http"
	}
	return "stdio"
}

// Descriptors converts the validated tool server list into connection
// descriptors. The built-in server comes first when enabled.
func (c *Config) Descriptors(version string, logger *slog.Logger) []mcp.ConnectionDescriptor {
	declaredAt := c.path
	if declaredAt == "" {
		declaredAt = "defaults"
	}

	var out []mcp.ConnectionDescriptor
	if c.MCP.Builtin.Enabled {
		d := builtin.Descriptor(version, logger)
		d.DeclaredAt = "builtin"
		out = append(out, d)
	}
	for _, s := range c.MCP.Servers {
		d := mcp.ConnectionDescriptor{
			ID:         s.ID,
			Command:    s.Command,
			Args:       s.Args,
			Env:        envList(s.Env),
			URL:        s.URL,
			Headers:    s.Headers,
			DeclaredAt: declaredAt,
		}
		switch s.transport() {
		case "http":
			d.Transport = mcp.TransportHTTP
		default:
			d.Transport = mcp.TransportStdio
		}
		out = append(out, d)
	}
	return out
}

// envList renders env as sorted KEY=VALUE pairs.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// AgentConfig returns the orchestrator configuration.
func (c *Config) AgentConfig() agent.Config {
	temp := c.LLM.Temperature
	cfg := agent.Config{
		MaxRounds:           c.Agent.MaxRounds,
		ToolTimeout:         c.Agent.ToolTimeout,
		ConversationTimeout: c.Agent.ConversationTimeout,
		Model:               c.LLM.Model,
		Temperature:         &temp,
		SequentialTools:     c.Agent.SequentialTools,
		TokenLimit:          c.Agent.TokenLimit,
	}
	if c.LLM.MaxTokens > 0 {
		maxTokens := c.LLM.MaxTokens
		cfg.MaxTokens = &maxTokens
	}
	return cfg
}

// ManagerConfig returns the connection manager configuration.
func (c *Config) ManagerConfig(version string, logger *slog.Logger) mcp.ManagerConfig {
	return mcp.ManagerConfig{
		ConnectTimeout: c.Agent.ConnectTimeout,
		ToolTimeout:    c.Agent.ToolTimeout,
		Logger:         logger,
		ClientInfo:     mcp.ClientInfo{Name: "lumipilot", Version: version},
		Masker:         c.Masker(),
	}
}

// Masker collects every secret the configuration knows about: the API key,
// secret-looking tool server env values and header values.
func (c *Config) Masker() *secrets.Masker {
	m := secrets.NewMasker()
	m.AddSecret(c.LLM.APIKey)
	for _, s := range c.MCP.Servers {
		m.AddSecretsFromEnv(s.Env)
		for _, v := range s.Headers {
			m.AddSecret(strings.TrimPrefix(v, "Bearer "))
		}
	}
	return m
}

// ProviderConfig returns the completion provider configuration.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Name:           c.LLM.Provider,
		APIKey:         c.LLM.APIKey,
		BaseURL:        c.LLM.BaseURL,
		Model:          c.LLM.Model,
		RequestTimeout: c.LLM.RequestTimeout,
	}
}

// HTTPClientConfig returns the outbound HTTP client settings shared by the
// completion provider and http tool servers. Completion POSTs are retried by
// the provider wrapper, so the transport only retries idempotent calls.
func (c *Config) HTTPClientConfig(version string, logger *slog.Logger) httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.UserAgent = "lumipilot/" + version
	hc.RetryAttempts = c.LLM.MaxRetries
	hc.MaxBackoff = 5 * time.Second
	hc.Logger = logger
	return hc
}

// RetryConfig returns the completion retry policy.
func (c *Config) RetryConfig(logger *slog.Logger) llm.RetryConfig {
	rc := llm.DefaultRetryConfig()
	rc.MaxRetries = c.LLM.MaxRetries
	rc.Logger = logger
	return rc
}

// LogConfig returns the logger configuration.
func (c *Config) LogConfig() *log.Config {
	lc := log.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = log.Format(c.Log.Format)
	lc.AddSource = c.Log.AddSource
	return lc
}

// TracingConfig returns the observability configuration.
func (c *Config) TracingConfig(version string) tracing.Config {
	tc := tracing.DefaultConfig()
	tc.Enabled = c.Tracing.Enabled
	tc.ServiceVersion = version
	tc.SampleRate = c.Tracing.SampleRate
	tc.Exporter = tracing.ExporterConfig{
		Type:     c.Tracing.Exporter,
		Endpoint: c.Tracing.Endpoint,
		Headers:  c.Tracing.Headers,
		Insecure: c.Tracing.Insecure,
	}
	return tc
}

// LoadPersona loads the configured persona, or the built-in one.
func (c *Config) LoadPersona() (agent.Persona, error) {
	p := agent.DefaultPersona()
	if c.Persona.File != "" {
		var err error
		if p, err = agent.LoadPersona(c.Persona.File); err != nil {
			return agent.Persona{}, err
		}
	}
	if c.Persona.Name != "" {
		p.Name = c.Persona.Name
	}
	return p, nil
}
