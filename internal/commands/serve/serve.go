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

// Package serve implements 'lumipilot serve'.
package serve

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/lumipilot/internal/api"
	"github.com/tombee/lumipilot/internal/commands/shared"
)

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Long: `Start the tool servers and serve the HTTP API until interrupted.

Endpoints:
  GET  /v1/health
  POST /v1/chat
  POST /v1/services/{service}/{action}
  GET  /v1/tools
  GET  /v1/connections
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func run(cmd *cobra.Command, addr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shared.Bootstrap(ctx, shared.BootstrapOptions{Completion: true, LogOutput: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	cfg := app.Config
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			app.Logger.Warn("shutdown incomplete", slog.Any("error", err))
		}
	}()

	if addr == "" {
		addr = cfg.Server.Addr
	}
	v, _, _ := shared.GetVersion()
	router := newRouter(app, v)

	app.Logger.Info("lumipilot ready",
		slog.String("version", v),
		slog.Int("tool_servers", app.Report.Ready()),
		slog.Int("tools", app.Manager.Registry().Len()),
	)

	srv := api.NewServer(api.ServerConfig{
		Addr:            addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, app.Logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return shared.NewExecutionError("http gateway failed", err)
	}
	return nil
}

func newRouter(app *shared.App, version string) *api.Router {
	return api.NewRouter(app.Services, api.RouterConfig{
		Version:   version,
		RateLimit: app.Config.Server.RateLimit,
		Burst:     app.Config.Server.Burst,
	},
		api.WithTools(app.Manager),
		api.WithMetrics(app.Telemetry.Metrics(), app.Telemetry.MetricsHandler()),
		api.WithLogger(app.Logger),
	)
}
