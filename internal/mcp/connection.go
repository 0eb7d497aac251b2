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
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mark3labs/mcp-go/mcp"

	lperrors "github.com/tombee/lumipilot/pkg/errors"
)

const (
	// DefaultConnectTimeout bounds one open or reconnect attempt.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultToolTimeout bounds one tool invocation when the caller gives none.
	DefaultToolTimeout = 30 * time.Second
)

var errConnectionClosed = errors.New("connection closed")

// NewBackOff returns the reconnect policy: exponential from 1s, doubling,
// capped at 30s, with 20% jitter. Attempts continue until the connection closes.
func NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0.2
	return b
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithDialer replaces the default dialer.
func WithDialer(d Dialer) ConnectionOption {
	return func(c *Connection) { c.dial = d }
}

// WithLogger sets the event sink.
func WithLogger(l *slog.Logger) ConnectionOption {
	return func(c *Connection) { c.events = NewEventEmitter(l) }
}

// WithBackOff sets the reconnect policy factory.
func WithBackOff(f func() backoff.BackOff) ConnectionOption {
	return func(c *Connection) { c.newBackOff = f }
}

// WithConnectTimeout bounds each reconnect attempt.
func WithConnectTimeout(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.connectTimeout = d }
}

// WithToolsChanged registers a hook fired after a reconnect rediscovers tools
// and after the connection degrades or closes.
func WithToolsChanged(f func(connectionID string)) ConnectionOption {
	return func(c *Connection) { c.onToolsChanged = f }
}

// Connection is one managed session to a single tool server.
// Invocations are serialized: at most one call is outstanding on the transport.
type Connection struct {
	desc           ConnectionDescriptor
	dial           Dialer
	events         *EventEmitter
	newBackOff     func() backoff.BackOff
	connectTimeout time.Duration
	onToolsChanged func(connectionID string)

	state *stateMachine

	// callSlot holds one token while a call is outstanding on the
	// transport. It is released when the transport call returns, which
	// may be after the caller has given up on it.
	callSlot chan struct{}

	mu         sync.RWMutex
	session    Session
	tools      []ToolDefinition
	lastErr    error
	failures   int
	readySince time.Time

	// ctx is cancelled by Close and stops any reconnect loop.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewConnection creates a disconnected connection for desc.
func NewConnection(desc ConnectionDescriptor, opts ...ConnectionOption) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		desc:           desc,
		dial:           NewDialer(ClientInfo{Name: "lumipilot", Version: "dev"}),
		events:         NewEventEmitter(nil),
		newBackOff:     NewBackOff,
		connectTimeout: DefaultConnectTimeout,
		callSlot:       make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = newStateMachine(func(event string, from, to ConnectionState) {
		c.events.Transition(c.desc.ID, event, from, to)
	})
	return c
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.desc.ID
}

// Descriptor returns the static configuration.
func (c *Connection) Descriptor() ConnectionDescriptor {
	return c.desc
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnectionState {
	return c.state.current()
}

// Open performs the handshake and tool discovery. On success the connection
// is ready; on failure it is closed and a *ConnectionError is returned.
func (c *Connection) Open(ctx context.Context) error {
	if err := c.state.fire(eventOpen); err != nil {
		return &ConnectionError{
			ConnectionID: c.desc.ID,
			Op:           "open",
			Cause:        fmt.Errorf("cannot open from state %s", c.State()),
		}
	}

	session, tools, err := c.connect(ctx)
	if err != nil {
		c.recordFailure(err)
		_ = c.state.fire(eventFail)
		c.release()
		return c.openError(err)
	}

	c.mu.Lock()
	c.session = session
	c.tools = tools
	c.readySince = time.Now()
	c.mu.Unlock()

	if err := c.state.fire(eventOpened); err != nil {
		// Closed while the handshake was in flight.
		c.dropSession(session)
		return &ConnectionError{ConnectionID: c.desc.ID, Op: "open", Cause: errConnectionClosed}
	}
	return nil
}

func (c *Connection) openError(err error) *ConnectionError {
	ce := &ConnectionError{ConnectionID: c.desc.ID, Op: "open", Cause: err}
	switch c.desc.transport() {
	case TransportStdio:
		ce.WithSuggestions(
			fmt.Sprintf("check that %q is installed and on PATH", c.desc.Command),
			"run the command by hand to see its startup errors",
		)
	case TransportHTTP:
		ce.WithSuggestions(fmt.Sprintf("check that %s is reachable and speaks MCP", c.desc.URL))
	}
	return ce
}

// connect dials, handshakes and discovers tools. The session is closed on failure.
func (c *Connection) connect(ctx context.Context) (Session, []ToolDefinition, error) {
	session, err := c.dial(ctx, c.desc)
	if err != nil {
		return nil, nil, err
	}
	tools, err := discoverTools(ctx, c.desc.ID, session)
	if err != nil {
		_ = session.Close()
		return nil, nil, err
	}
	return session, tools, nil
}

// ListTools returns the tools discovered at open (or the last reconnect).
func (c *Connection) ListTools() ([]ToolDefinition, error) {
	if st := c.State(); st != StateReady {
		return nil, &ConnectionError{
			ConnectionID: c.desc.ID,
			Op:           "list_tools",
			Cause:        fmt.Errorf("connection is %s", st),
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolDefinition, len(c.tools))
	copy(out, c.tools)
	return out, nil
}

// Invoke calls toolName and waits for the reply or the timeout. It never
// returns an error value: failures come back as a ToolCallResult with
// Success false.
//
// The call runs detached from ctx cancellation and is bounded only by
// timeout, since a dispatched call may have side effects that cannot be
// safely aborted half-way.
func (c *Connection) Invoke(ctx context.Context, toolName string, args map[string]any, timeout time.Duration) ToolCallResult {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	start := time.Now()

	result := c.invoke(ctx, toolName, args, timeout)
	result.Duration = time.Since(start)
	c.events.Invocation(c.desc.ID, result)
	return result
}

func (c *Connection) invoke(ctx context.Context, toolName string, args map[string]any, timeout time.Duration) ToolCallResult {
	if st := c.State(); st != StateReady {
		return failedResult(toolName, &InvocationError{
			Tool:    toolName,
			Kind:    InvocationUnavailable,
			Message: fmt.Sprintf("connection %s is %s", c.desc.ID, st),
		})
	}

	// The timeout covers waiting for the slot as well as the call.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	select {
	case c.callSlot <- struct{}{}:
	case <-callCtx.Done():
		return timeoutResult(toolName, timeout, callCtx.Err())
	}

	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil || c.State() != StateReady {
		<-c.callSlot
		return failedResult(toolName, &InvocationError{
			Tool:    toolName,
			Kind:    InvocationUnavailable,
			Message: fmt.Sprintf("connection %s is %s", c.desc.ID, c.State()),
		})
	}

	type reply struct {
		res *mcp.CallToolResult
		err error
	}
	replies := make(chan reply, 1)
	go func() {
		defer func() { <-c.callSlot }()
		res, err := session.CallTool(callCtx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Name:      toolName,
				Arguments: args,
			},
		})
		replies <- reply{res: res, err: err}
	}()

	// Some transports run the handler synchronously and ignore the
	// context, so the deadline is enforced here as well.
	var res *mcp.CallToolResult
	var err error
	select {
	case r := <-replies:
		res, err = r.res, r.err
	case <-callCtx.Done():
		return timeoutResult(toolName, timeout, callCtx.Err())
	}

	switch {
	case err == nil && res.IsError:
		msg := formatContent(res)
		if msg == "" {
			msg = "tool execution failed"
		}
		return failedResult(toolName, &InvocationError{Tool: toolName, Kind: InvocationRemote, Message: msg})

	case err == nil:
		return ToolCallResult{Tool: toolName, Success: true, Payload: formatContent(res)}

	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return timeoutResult(toolName, timeout, err)

	case isTransportFailure(err):
		c.degrade(err)
		return failedResult(toolName, &InvocationError{
			Tool:    toolName,
			Kind:    InvocationTransport,
			Message: "connection to tool server lost; it will be retried",
			Cause:   err,
		})

	default:
		return failedResult(toolName, &InvocationError{Tool: toolName, Kind: InvocationRemote, Message: err.Error(), Cause: err})
	}
}

func timeoutResult(toolName string, timeout time.Duration, cause error) ToolCallResult {
	return failedResult(toolName, &InvocationError{
		Tool:    toolName,
		Kind:    InvocationTimeout,
		Message: fmt.Sprintf("no reply within %s", timeout),
		Cause:   &lperrors.TimeoutError{Operation: "tool call", Duration: timeout, Cause: cause},
	})
}

// Ping checks liveness of a ready connection. A failed ping degrades it.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil || c.State() != StateReady {
		return &ConnectionError{ConnectionID: c.desc.ID, Op: "ping", Cause: fmt.Errorf("connection is %s", c.State())}
	}
	if err := session.Ping(ctx); err != nil {
		if ctx.Err() == nil {
			c.degrade(err)
		}
		return &ConnectionError{ConnectionID: c.desc.ID, Op: "ping", Cause: err}
	}
	return nil
}

// degrade moves a ready connection to degraded and starts reconnecting.
func (c *Connection) degrade(cause error) {
	if err := c.state.fire(eventDegrade); err != nil {
		// Already degraded or closed.
		return
	}
	c.recordFailure(cause)

	c.mu.Lock()
	old := c.session
	c.session = nil
	closing := c.ctx.Err() != nil
	if !closing {
		c.wg.Add(1)
	}
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	c.notifyToolsChanged()

	if !closing {
		go c.reconnect()
	}
}

// reconnect retries the handshake with backoff until it succeeds or the
// connection is closed.
func (c *Connection) reconnect() {
	defer c.wg.Done()

	type attempt struct {
		session Session
		tools   []ToolDefinition
	}

	op := func() (attempt, error) {
		if c.State() != StateDegraded {
			return attempt{}, backoff.Permanent(errConnectionClosed)
		}
		ctx, cancel := context.WithTimeout(c.ctx, c.connectTimeout)
		defer cancel()
		session, tools, err := c.connect(ctx)
		if err != nil {
			c.recordFailure(err)
			return attempt{}, err
		}
		return attempt{session: session, tools: tools}, nil
	}

	got, err := backoff.Retry(c.ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.events.ReconnectFailed(c.desc.ID, err, next)
		}),
	)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.session = got.session
	c.tools = got.tools
	c.readySince = time.Now()
	c.lastErr = nil
	c.mu.Unlock()

	if err := c.state.fire(eventRecover); err != nil {
		c.dropSession(got.session)
		return
	}
	c.notifyToolsChanged()
}

// Close tears the connection down. It is idempotent and safe on every path,
// including after a failed open. Close waits for any reconnect loop to exit.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.cancel()
		c.mu.Unlock()
		wasLive := c.State() != StateClosed
		if wasLive {
			_ = c.state.fire(eventClose)
		}
		c.closeErr = c.release()
		if wasLive {
			c.notifyToolsChanged()
		}
	})
	c.wg.Wait()
	if c.closeErr != nil {
		return &ConnectionError{ConnectionID: c.desc.ID, Op: "close", Cause: c.closeErr}
	}
	return nil
}

// release drops the session and tool list.
func (c *Connection) release() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.tools = nil
	c.mu.Unlock()
	if session != nil {
		return session.Close()
	}
	return nil
}

func (c *Connection) dropSession(s Session) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
		c.tools = nil
	}
	c.mu.Unlock()
	_ = s.Close()
}

func (c *Connection) recordFailure(err error) {
	c.mu.Lock()
	c.failures++
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Connection) notifyToolsChanged() {
	if c.onToolsChanged != nil {
		c.onToolsChanged(c.desc.ID)
	}
}

// Status returns a point-in-time view of the connection.
func (c *Connection) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := ConnectionStatus{
		ID:           c.desc.ID,
		Transport:    c.desc.transport(),
		State:        c.State(),
		FailureCount: c.failures,
	}
	if st.State == StateReady {
		st.ToolCount = len(c.tools)
		since := c.readySince
		st.ReadySince = &since
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
