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

// Package config loads lumipilot configuration from a YAML file and the
// environment, validates it, and converts it into the typed settings the
// runtime packages accept.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	lperrors "github.com/tombee/lumipilot/pkg/errors"
)

// Config represents the complete lumipilot configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Persona PersonaConfig `yaml:"persona"`
	MCP     MCPConfig     `yaml:"mcp"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`

	// path is the file the config was loaded from, if any.
	path string
}

// LLMConfig configures the completion endpoint.
type LLMConfig struct {
	// Provider selects the backend: "openai" (default) or "anthropic".
	// Environment: LUMI_PROVIDER
	Provider string `yaml:"provider"`

	// APIKey authenticates with the provider.
	// Environment: LUMI_API_KEY, then OPENAI_API_KEY or ANTHROPIC_API_KEY
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL points at an OpenAI-compatible gateway.
	// Environment: LUMI_BASE_URL
	BaseURL string `yaml:"base_url,omitempty"`

	// Model is the default model.
	// Environment: LUMI_MODEL
	Model string `yaml:"model"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// RequestTimeout bounds one HTTP request to the provider.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxRetries is how many times a retryable failure is retried.
	MaxRetries int `yaml:"max_retries"`
}

// AgentConfig configures the conversation loop and tool timeouts.
type AgentConfig struct {
	// Environment: LUMI_MAX_ROUNDS
	MaxRounds int `yaml:"max_rounds"`

	// Environment: LUMI_TOOL_TIMEOUT
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// Environment: LUMI_CONVERSATION_TIMEOUT
	ConversationTimeout time.Duration `yaml:"conversation_timeout"`

	// ConnectTimeout bounds each tool server's startup.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// SequentialTools runs one round's tool calls one at a time.
	SequentialTools bool `yaml:"sequential_tools"`

	// TokenLimit is the estimated transcript size before old rounds are pruned.
	TokenLimit int `yaml:"token_limit"`
}

// PersonaConfig selects the assistant persona.
type PersonaConfig struct {
	// File is a YAML persona definition. Empty uses the built-in persona.
	// Environment: LUMI_PERSONA_FILE
	File string `yaml:"file,omitempty"`

	// Name overrides the persona name.
	Name string `yaml:"name,omitempty"`
}

// MCPConfig lists the tool servers.
type MCPConfig struct {
	Builtin BuiltinConfig  `yaml:"builtin"`
	Servers []ServerEntry `yaml:"servers,omitempty"`
}

// BuiltinConfig controls the in-process tool server.
type BuiltinConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ServerEntry configures one external tool server.
type ServerEntry struct {
	// ID namespaces the server's tools. Must be unique and not "builtin".
	ID string `yaml:"id"`

	// Transport is "stdio" or "http". Inferred from Command/URL when empty.
	Transport string `yaml:"transport,omitempty"`

	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	// Environment: LUMI_SERVER_ADDR
	Addr string `yaml:"addr"`

	// RateLimit is the sustained requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Environment: LOG_LEVEL
	Level string `yaml:"level"`

	// Environment: LOG_FORMAT
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "stdout", "otlp", "otlp-http" or "none".
	// Environment: LUMI_TRACING_EXPORTER
	Exporter string `yaml:"exporter"`

	// Environment: OTEL_EXPORTER_OTLP_ENDPOINT
	Endpoint   string            `yaml:"endpoint,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Insecure   bool              `yaml:"insecure"`
	SampleRate float64           `yaml:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			MaxTokens:      1000,
			RequestTimeout: 60 * time.Second,
			MaxRetries:     2,
		},
		Agent: AgentConfig{
			MaxRounds:           8,
			ToolTimeout:         30 * time.Second,
			ConversationTimeout: 120 * time.Second,
			ConnectTimeout:      10 * time.Second,
			TokenLimit:          100000,
		},
		MCP: MCPConfig{
			Builtin: BuiltinConfig{Enabled: true},
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimit:       10,
			Burst:           20,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:   "none",
			SampleRate: 1.0,
		},
	}
}

// Load loads configuration from an optional YAML file, then applies
// environment overrides and validates the result. If configPath is empty,
// only defaults and environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &lperrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the configuration was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// applyDefaults fills zero values left by a minimal config file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = d.LLM.RequestTimeout
	}

	if c.Agent.MaxRounds == 0 {
		c.Agent.MaxRounds = d.Agent.MaxRounds
	}
	if c.Agent.ToolTimeout == 0 {
		c.Agent.ToolTimeout = d.Agent.ToolTimeout
	}
	if c.Agent.ConversationTimeout == 0 {
		c.Agent.ConversationTimeout = d.Agent.ConversationTimeout
	}
	if c.Agent.ConnectTimeout == 0 {
		c.Agent.ConnectTimeout = d.Agent.ConnectTimeout
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = d.Server.Burst
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = d.Tracing.Exporter
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = d.Tracing.SampleRate
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	c.path = path
	return nil
}

// loadFromEnv applies environment variable overrides. Unparseable numeric
// or duration values are ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("LUMI_PROVIDER"); val != "" {
		c.LLM.Provider = strings.ToLower(val)
	}

	// LUMI_API_KEY wins over the provider-specific variable.
	if val := os.Getenv("LUMI_API_KEY"); val != "" {
		c.LLM.APIKey = val
	} else if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if val := os.Getenv("LUMI_BASE_URL"); val != "" {
		c.LLM.BaseURL = val
	}
	if val := os.Getenv("LUMI_MODEL"); val != "" {
		c.LLM.Model = val
	}

	if val := os.Getenv("LUMI_MAX_ROUNDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Agent.MaxRounds = n
		}
	}
	if val := os.Getenv("LUMI_TOOL_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Agent.ToolTimeout = d
		}
	}
	if val := os.Getenv("LUMI_CONVERSATION_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Agent.ConversationTimeout = d
		}
	}

	if val := os.Getenv("LUMI_PERSONA_FILE"); val != "" {
		c.Persona.File = val
	}
	if val := os.Getenv("LUMI_SERVER_ADDR"); val != "" {
		c.Server.Addr = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("LUMI_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
		c.Tracing.Enabled = c.Tracing.Exporter != "none"
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
}
