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

package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/tombee/lumipilot/internal/config"
	"github.com/tombee/lumipilot/internal/log"
	"github.com/tombee/lumipilot/internal/mcp"
	"github.com/tombee/lumipilot/internal/service"
	"github.com/tombee/lumipilot/internal/tracing"
	"github.com/tombee/lumipilot/pkg/agent"
	"github.com/tombee/lumipilot/pkg/httpclient"
	"github.com/tombee/lumipilot/pkg/llm"

	// Registers the openai and anthropic provider factories.
	_ "github.com/tombee/lumipilot/pkg/llm/providers"
)

// BootstrapOptions selects which parts of the application a command needs.
type BootstrapOptions struct {
	// Completion builds the provider, orchestrator and services. It
	// requires an API key.
	Completion bool

	// LogOutput receives logs. Defaults to stderr.
	LogOutput io.Writer
}

// App is a fully wired lumipilot process: configuration, logging,
// telemetry, tool servers and (optionally) the conversation stack.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Telemetry *tracing.Provider
	Manager   *mcp.Manager
	Report    mcp.StartReport

	// HTTPClient is shared by the completion provider and http tool servers.
	HTTPClient *http.Client

	// Set only when BootstrapOptions.Completion is true.
	Provider     llm.Provider
	Orchestrator *agent.Orchestrator
	Services     *service.Application
}

// Bootstrap loads configuration and brings up the application. Tool server
// failures are logged and never fatal. Call Close when done.
func Bootstrap(ctx context.Context, opts BootstrapOptions) (*App, error) {
	cfg, err := config.Load(config.ResolvePath(GetConfigPath()))
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}

	logCfg := cfg.LogConfig()
	switch {
	case GetVerbose():
		logCfg.Level = "debug"
	case GetQuiet():
		logCfg.Level = "error"
	}
	logCfg.Output = opts.LogOutput
	if logCfg.Output == nil {
		logCfg.Output = os.Stderr
	}
	logger := log.New(logCfg)

	app := &App{Config: cfg, Logger: logger}

	app.Telemetry, err = tracing.NewProvider(ctx, cfg.TracingConfig(version))
	if err != nil {
		return nil, NewConfigError("failed to initialise telemetry", err)
	}

	if opts.Completion {
		if err := cfg.RequireAPIKey(); err != nil {
			_ = app.Telemetry.Shutdown(ctx)
			return nil, NewConfigError("completion provider is not configured", err)
		}
	}

	app.HTTPClient, err = httpclient.New(cfg.HTTPClientConfig(version, log.WithComponent(logger, "http")))
	if err != nil {
		_ = app.Telemetry.Shutdown(ctx)
		return nil, NewConfigError("invalid http client settings", err)
	}

	descs := cfg.Descriptors(version, logger)
	for i := range descs {
		if descs[i].Transport == mcp.TransportHTTP {
			descs[i].HTTPClient = app.HTTPClient
		}
	}
	app.Manager = mcp.NewManager(cfg.ManagerConfig(version, log.WithComponent(logger, "mcp")))
	app.Report = app.Manager.StartAll(ctx, descs)
	for _, failed := range app.Report.Failed() {
		logger.Warn("tool server unavailable", slog.String("connection_id", failed.ID), log.Error(failed.Err))
	}

	if opts.Completion {
		if err := app.wireConversation(); err != nil {
			_ = app.Close(ctx)
			return nil, err
		}
	}
	return app, nil
}

func (a *App) wireConversation() error {
	cfg := a.Config

	pc := cfg.ProviderConfig()
	pc.HTTPClient = a.HTTPClient
	base, err := llm.New(pc)
	if err != nil {
		return NewProviderError("failed to create completion provider", err)
	}
	a.Logger.Debug("completion provider ready", slog.String("config", pc.Redacted()))

	retrying := llm.NewRetryableProvider(base, cfg.RetryConfig(log.WithProvider(a.Logger, base.Name())))
	a.Provider = tracing.WrapProvider(retrying, a.Telemetry.Tracer("lumipilot/llm"), a.Telemetry.Metrics())

	persona, err := cfg.LoadPersona()
	if err != nil {
		return NewConfigError("failed to load persona", err)
	}

	a.Orchestrator = agent.New(a.Provider, a.Manager, persona, cfg.AgentConfig(),
		agent.WithLogger(a.Logger),
		agent.WithTracerProvider(a.Telemetry.TracerProvider()),
	)

	registry := service.NewRegistry()
	chat := service.NewChatService(service.ChatServiceConfig{
		Conversation: a.Orchestrator,
		Provider:     a.Provider,
		Tools:        a.Manager,
		Model:        cfg.LLM.Model,
		Persona:      persona.Name,
		Logger:       a.Logger,
	})
	fault := service.NewFaultDetectionService(a.Provider, cfg.LLM.Model, a.Logger)
	for _, svc := range []service.Service{chat, fault} {
		if err := registry.Register(svc); err != nil {
			return fmt.Errorf("register %s service: %w", svc.Name(), err)
		}
	}
	a.Services = service.NewApplication(registry, version, a.Logger)
	return nil
}

// Close shuts down tool servers and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Manager != nil {
		if err := a.Manager.ShutdownAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tool servers: %w", err))
		}
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
