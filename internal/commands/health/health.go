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

// Package health implements 'lumipilot health'.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/lumipilot/internal/commands/shared"
	"github.com/tombee/lumipilot/internal/service"
	"github.com/tombee/lumipilot/pkg/httpclient"
)

// NewCommand creates the health command.
func NewCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		Long: `Check the completion provider and tool servers.

With --url, query a running gateway's /v1/health instead of starting a
local instance. Exits with code 3 when unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url != "" {
				return runRemote(cmd, url)
			}
			return runLocal(cmd)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Base URL of a running gateway (e.g. http://localhost:8080)")
	return cmd
}

func runLocal(cmd *cobra.Command) error {
	ctx := cmd.Context()
	app, err := shared.Bootstrap(ctx, shared.BootstrapOptions{Completion: true, LogOutput: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = app.Close(closeCtx)
	}()

	health := app.Services.HealthCheck(ctx)
	return Report(cmd.OutOrStdout(), health)
}

func runRemote(cmd *cobra.Command, baseURL string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/v1/health", nil)
	if err != nil {
		return shared.NewExecutionError("invalid url", err)
	}
	v, _, _ := shared.GetVersion()
	hc := httpclient.DefaultConfig()
	hc.UserAgent = "lumipilot/" + v
	hc.Logger = slog.New(slog.DiscardHandler)
	client, err := httpclient.New(hc)
	if err != nil {
		return shared.NewExecutionError("http client", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return shared.NewUnhealthyError(fmt.Sprintf("gateway unreachable: %v", err))
	}
	defer resp.Body.Close()

	var health service.AppHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return shared.NewExecutionError("invalid health response", err)
	}
	return Report(cmd.OutOrStdout(), health)
}

// Report prints health and returns an unhealthy exit error when needed.
func Report(w io.Writer, health service.AppHealth) error {
	if shared.GetJSON() {
		if err := shared.EmitJSON(w, health); err != nil {
			return err
		}
	} else {
		state := "healthy"
		if !health.Healthy {
			state = "unhealthy"
		}
		fmt.Fprintf(w, "%s %s: %s\n", health.AppName, health.Version, state)

		names := make([]string, 0, len(health.Services))
		for name := range health.Services {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := health.Services[name]
			mark := "ok"
			if !s.Healthy {
				mark = "FAIL"
			}
			line := fmt.Sprintf("  %-16s %s", name, mark)
			if s.Error != "" {
				line += "  " + s.Error
			}
			fmt.Fprintln(w, line)
		}
	}

	if !health.Healthy {
		return shared.NewUnhealthyError("one or more services are unhealthy")
	}
	return nil
}
