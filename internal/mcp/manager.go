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

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	lperrors "github.com/tombee/lumipilot/pkg/errors"
	"github.com/tombee/lumipilot/pkg/secrets"
)

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	// ConnectTimeout bounds each connection's open. Default: 10s
	ConnectTimeout time.Duration

	// ToolTimeout is the per-call timeout used when callers pass none. Default: 30s
	ToolTimeout time.Duration

	// Logger receives connection and invocation events.
	Logger *slog.Logger

	// Dialer overrides how sessions are established. Defaults to NewDialer(ClientInfo).
	Dialer Dialer

	// ClientInfo identifies this process in MCP handshakes.
	ClientInfo ClientInfo

	// BackOff overrides the reconnect policy.
	BackOff func() backoff.BackOff

	// Masker redacts secrets from logged tool arguments and errors.
	Masker *secrets.Masker
}

// StartOutcome reports how one connection's startup ended.
type StartOutcome struct {
	ID        string
	State     ConnectionState
	ToolCount int
	Duration  time.Duration
	Err       error
}

// StartReport summarises StartAll.
type StartReport struct {
	Outcomes []StartOutcome
}

// Ready returns how many connections reached the ready state.
func (r StartReport) Ready() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == StateReady {
			n++
		}
	}
	return n
}

// Failed returns the outcomes that ended closed.
func (r StartReport) Failed() []StartOutcome {
	var out []StartOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Manager owns every tool server connection and exposes one merged tool surface.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger
	events *EventEmitter
	tracer trace.Tracer

	mu    sync.RWMutex
	conns map[string]*Connection
	order []string

	snapshot     atomic.Pointer[Snapshot]
	version      atomic.Uint64
	rebuildMu    sync.Mutex
	shuttingDown atomic.Bool
}

// NewManager creates a manager with no connections.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ClientInfo.Name == "" {
		cfg.ClientInfo = ClientInfo{Name: "lumipilot", Version: "dev"}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewDialer(cfg.ClientInfo)
	}
	if cfg.BackOff == nil {
		cfg.BackOff = NewBackOff
	}

	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "mcp"),
		events: NewEventEmitter(cfg.Logger.With("component", "mcp")),
		tracer: otel.Tracer("github.com/tombee/lumipilot/internal/mcp"),
		conns:  make(map[string]*Connection),
	}
	m.snapshot.Store(EmptySnapshot())
	return m
}

// add registers a connection for desc. IDs must be unique and non-empty.
func (m *Manager) add(desc ConnectionDescriptor) (*Connection, error) {
	if desc.ID == "" {
		return nil, &ConnectionError{ConnectionID: "(unnamed)", Op: "register", Cause: errors.New("connection id is required")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[desc.ID]; exists {
		return nil, (&ConnectionError{
			ConnectionID: desc.ID,
			Op:           "register",
			Cause:        errors.New("duplicate connection id"),
		}).WithSuggestions("give every tool server a unique id; ids namespace tool names")
	}

	conn := NewConnection(desc,
		WithDialer(m.cfg.Dialer),
		WithLogger(m.cfg.Logger.With("component", "mcp")),
		WithBackOff(m.cfg.BackOff),
		WithConnectTimeout(m.cfg.ConnectTimeout),
		WithToolsChanged(func(string) { m.rebuild() }),
	)
	m.conns[desc.ID] = conn
	m.order = append(m.order, desc.ID)
	return conn, nil
}

// StartAll opens every descriptor concurrently and returns once each
// connection is ready or closed. A failing or slow connection never delays
// its siblings past its own connect timeout, and never fails the call.
func (m *Manager) StartAll(ctx context.Context, descriptors []ConnectionDescriptor) StartReport {
	outcomes := make([]StartOutcome, len(descriptors))

	var g errgroup.Group
	for i, desc := range descriptors {
		conn, err := m.add(desc)
		if err != nil {
			outcomes[i] = StartOutcome{ID: desc.ID, State: StateClosed, Err: err}
			m.logger.Warn("tool server rejected", "connection_id", desc.ID, "error", err)
			continue
		}

		g.Go(func() error {
			start := time.Now()
			err := m.open(ctx, conn)
			out := StartOutcome{
				ID:       conn.ID(),
				State:    conn.State(),
				Duration: time.Since(start),
				Err:      err,
			}
			if err != nil {
				m.logger.Warn("tool server unavailable", "connection_id", conn.ID(), "error", err)
			} else {
				out.ToolCount = conn.Status().ToolCount
				m.logger.Info("tool server ready",
					"connection_id", conn.ID(),
					"tools", out.ToolCount,
					"duration_ms", out.Duration.Milliseconds(),
				)
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	m.rebuild()
	return StartReport{Outcomes: outcomes}
}

// open runs conn.Open bounded by the connect timeout, even if the
// underlying transport ignores its context.
func (m *Manager) open(ctx context.Context, conn *Connection) error {
	openCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- conn.Open(openCtx) }()

	select {
	case err := <-done:
		return err
	case <-openCtx.Done():
		_ = conn.Close()
		return &ConnectionError{
			ConnectionID: conn.ID(),
			Op:           "open",
			Cause:        &lperrors.TimeoutError{Operation: "connect", Duration: m.cfg.ConnectTimeout, Cause: openCtx.Err()},
		}
	}
}

// rebuild replaces the registry snapshot from every ready connection.
func (m *Manager) rebuild() {
	if m.shuttingDown.Load() {
		return
	}
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	snap := BuildSnapshot(m.version.Add(1), m.ListAllTools())
	m.snapshot.Store(snap)
	m.events.ToolsChanged(snap.Version(), snap.Len())
}

func (m *Manager) connections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.conns[id])
	}
	return out
}

// Connection returns the connection with id, or nil.
func (m *Manager) Connection(id string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[id]
}

// ListAllTools returns the union of tools over every ready connection.
// Degraded and closed connections are skipped without error.
func (m *Manager) ListAllTools() []ToolDefinition {
	var all []ToolDefinition
	for _, conn := range m.connections() {
		tools, err := conn.ListTools()
		if err != nil {
			continue
		}
		all = append(all, tools...)
	}
	return all
}

// Registry returns the current immutable tool snapshot.
func (m *Manager) Registry() *Snapshot {
	return m.snapshot.Load()
}

// Invoke resolves name against the current snapshot and calls it with the
// default tool timeout.
func (m *Manager) Invoke(ctx context.Context, name string, args map[string]any) ToolCallResult {
	return m.InvokeIn(ctx, m.Registry(), name, args, m.cfg.ToolTimeout)
}

// InvokeIn resolves name against snap and calls it on the owning connection.
// Unknown names and connections that are not ready produce a ResolutionError
// result; arguments that fail the tool's input schema produce an
// InvocationError result. Nothing is returned as a Go error.
func (m *Manager) InvokeIn(ctx context.Context, snap *Snapshot, name string, args map[string]any, timeout time.Duration) ToolCallResult {
	if snap == nil {
		snap = m.Registry()
	}
	if timeout <= 0 {
		timeout = m.cfg.ToolTimeout
	}

	ctx, span := m.tracer.Start(ctx, "mcp.invoke", trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	result := m.resolveAndCall(ctx, snap, name, args, timeout)

	span.SetAttributes(
		attribute.String("tool.qualified_name", result.Tool),
		attribute.Bool("tool.success", result.Success),
	)
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
		m.logger.Warn("tool call failed",
			"tool", name,
			"error", m.cfg.Masker.Mask(result.Error),
		)
	} else if m.logger.Enabled(ctx, slog.LevelDebug) {
		m.logger.Debug("tool call",
			"tool", result.Tool,
			"arguments", m.cfg.Masker.MaskMap(args),
			"duration_ms", result.Duration.Milliseconds(),
		)
	}
	return result
}

func (m *Manager) resolveAndCall(ctx context.Context, snap *Snapshot, name string, args map[string]any, timeout time.Duration) ToolCallResult {
	def, ok := snap.Lookup(name)
	if !ok {
		return failedResult(name, &ResolutionError{Name: name, Reason: "unknown tool"})
	}

	conn := m.Connection(def.ConnectionID)
	if conn == nil {
		return failedResult(def.QualifiedName, &ResolutionError{
			Name:   def.QualifiedName,
			Reason: fmt.Sprintf("connection %s no longer exists", def.ConnectionID),
		})
	}
	if st := conn.State(); st != StateReady {
		return failedResult(def.QualifiedName, &ResolutionError{
			Name:   def.QualifiedName,
			Reason: fmt.Sprintf("connection %s is %s", def.ConnectionID, st),
		})
	}

	if err := snap.Validate(def.QualifiedName, args); err != nil {
		return failedResult(def.QualifiedName, &InvocationError{
			Tool:    def.QualifiedName,
			Kind:    InvocationInvalidArguments,
			Message: err.Error(),
			Cause:   err,
		})
	}

	result := conn.Invoke(ctx, def.Name, args, timeout)
	result.Tool = def.QualifiedName
	if ie, ok := result.Err.(*InvocationError); ok {
		ie.Tool = def.QualifiedName
		result.Error = ie.Error()
	}
	return result
}

// Status returns every connection's status in registration order.
func (m *Manager) Status() []ConnectionStatus {
	conns := m.connections()
	out := make([]ConnectionStatus, len(conns))
	for i, c := range conns {
		out[i] = c.Status()
	}
	return out
}

// ReadyCount returns how many connections are ready.
func (m *Manager) ReadyCount() int {
	n := 0
	for _, c := range m.connections() {
		if c.State() == StateReady {
			n++
		}
	}
	return n
}

// HealthCheck pings every ready connection and returns the failures by id.
func (m *Manager) HealthCheck(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range m.connections() {
		if c.State() != StateReady {
			failures[c.ID()] = fmt.Errorf("connection is %s", c.State())
			continue
		}
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if err := c.Ping(ctx); err != nil {
				mu.Lock()
				failures[c.ID()] = err
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return failures
}

// ShutdownAll closes every connection. Individual close failures are
// collected and returned together; they never stop the remaining closes.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.shuttingDown.Store(true)
	conns := m.connections()

	errs := make([]error, len(conns))
	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Close()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var timeoutErr error
	select {
	case <-done:
	case <-ctx.Done():
		timeoutErr = fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}

	m.snapshot.Store(BuildSnapshot(m.version.Add(1), nil))
	m.logger.Info("tool servers shut down", "connections", len(conns))

	select {
	case <-done:
		return errors.Join(errs...)
	default:
		return timeoutErr
	}
}
