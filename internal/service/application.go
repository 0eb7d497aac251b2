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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lperrors "github.com/tombee/lumipilot/pkg/errors"
)

// DefaultAppName is stamped into response metadata.
const DefaultAppName = "Lumi Pilot"

// Application is the single entry point for service requests.
type Application struct {
	registry *Registry
	name     string
	version  string
	logger   *slog.Logger
}

// NewApplication creates an application over registry.
func NewApplication(registry *Registry, version string, logger *slog.Logger) *Application {
	if logger == nil {
		logger = slog.Default()
	}
	return &Application{
		registry: registry,
		name:     DefaultAppName,
		version:  version,
		logger:   logger.With(slog.String("component", "application")),
	}
}

// Registry returns the service registry.
func (a *Application) Registry() *Registry {
	return a.registry
}

// Version returns the application version.
func (a *Application) Version() string {
	return a.version
}

// Execute runs req on the named service. It always returns a Response:
// unknown services, unsupported actions and service panics become failed
// responses. Metadata is stamped with the request ID, duration, service,
// action, application name and version.
func (a *Application) Execute(ctx context.Context, serviceName string, req Request) (resp Response) {
	start := time.Now()
	if req.Context.RequestID == "" {
		req.Context.RequestID = uuid.NewString()
	}
	if req.Context.Timestamp.IsZero() {
		req.Context.Timestamp = start
	}

	logger := a.logger.With(
		slog.String("request_id", req.Context.RequestID),
		slog.String("service", serviceName),
		slog.String("action", req.Action),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("service panicked", slog.Any("panic", r))
			resp = Failure(serviceName, req, "service execution failed: %v", r)
		}
		resp.Metadata.RequestID = req.Context.RequestID
		resp.Metadata.ServiceName = serviceName
		resp.Metadata.Action = req.Action
		resp.Metadata.AppName = a.name
		resp.Metadata.Version = a.version
		resp.Metadata.Duration = time.Since(start)
		if resp.Metadata.Timestamp.IsZero() {
			resp.Metadata.Timestamp = time.Now()
		}

		if resp.Success {
			logger.Info("request completed", slog.Duration("duration", resp.Metadata.Duration))
		} else {
			logger.Warn("request failed", slog.Duration("duration", resp.Metadata.Duration), slog.String("error", resp.Error))
		}
	}()

	svc, err := a.registry.Get(serviceName)
	if err != nil {
		var nf *lperrors.NotFoundError
		if errors.As(err, &nf) {
			return Failure(serviceName, req, "service %q is not registered (available: %v)", serviceName, a.registry.List())
		}
		return Failure(serviceName, req, "%s", err.Error())
	}
	if !supports(svc, req.Action) {
		return Failure(serviceName, req, "unsupported action %q for service %s (supported: %v)", req.Action, serviceName, svc.ListActions())
	}
	return svc.Process(ctx, req)
}

func supports(svc Service, action string) bool {
	for _, a := range svc.ListActions() {
		if a == action {
			return true
		}
	}
	return false
}

// AppHealth aggregates service health.
type AppHealth struct {
	Healthy    bool                    `json:"healthy"`
	AppName    string                  `json:"app_name"`
	Version    string                  `json:"version"`
	Services   map[string]HealthStatus `json:"services"`
	Registered []string                `json:"registered_services"`
}

// HealthCheck checks every registered service. The application is healthy
// only if every service is.
func (a *Application) HealthCheck(ctx context.Context) AppHealth {
	statuses := a.registry.HealthCheckAll(ctx)
	healthy := true
	for _, s := range statuses {
		healthy = healthy && s.Healthy
	}
	return AppHealth{
		Healthy:    healthy,
		AppName:    a.name,
		Version:    a.version,
		Services:   statuses,
		Registered: a.registry.List(),
	}
}

// String identifies the application in logs.
func (a *Application) String() string {
	return fmt.Sprintf("%s %s", a.name, a.version)
}
