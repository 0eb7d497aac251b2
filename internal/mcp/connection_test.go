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

package mcp_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/lumipilot/internal/mcp"
	"github.com/tombee/lumipilot/internal/mcp/mcptest"
)

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func openInProcess(t *testing.T, id string, opts ...mcp.ConnectionOption) *mcp.Connection {
	t.Helper()
	srv := mcptest.NewServer(id, mcptest.EchoTool(), mcptest.FailTool("disk full"), mcptest.SleepTool(5*time.Second))
	conn := mcp.NewConnection(mcp.ConnectionDescriptor{ID: id, Server: srv}, opts...)
	require.NoError(t, conn.Open(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConnection_OpenDiscoversNamespacedTools(t *testing.T) {
	conn := openInProcess(t, "local")

	assert.Equal(t, mcp.StateReady, conn.State())

	tools, err := conn.ListTools()
	require.NoError(t, err)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.QualifiedName)
		assert.Equal(t, "local", tool.ConnectionID)
	}
	assert.ElementsMatch(t, []string{"local.echo", "local.fail", "local.sleep"}, names)

	status := conn.Status()
	assert.Equal(t, mcp.TransportInProcess, status.Transport)
	assert.Equal(t, 3, status.ToolCount)
	assert.NotNil(t, status.ReadySince)
}

func TestConnection_InvokeSuccess(t *testing.T) {
	conn := openInProcess(t, "local")

	res := conn.Invoke(context.Background(), "echo", map[string]any{"text": "hello"}, time.Second)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "hello", res.Payload)
	assert.Equal(t, "hello", res.Content())
}

func TestConnection_InvokeRemoteError(t *testing.T) {
	conn := openInProcess(t, "local")

	res := conn.Invoke(context.Background(), "fail", nil, time.Second)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "disk full")

	var ie *mcp.InvocationError
	require.ErrorAs(t, res.Err, &ie)
	assert.Equal(t, mcp.InvocationRemote, ie.Kind)
	assert.Equal(t, mcp.StateReady, conn.State())
}

func TestConnection_InvokeTimeoutKeepsConnectionReady(t *testing.T) {
	conn := openInProcess(t, "local")

	start := time.Now()
	res := conn.Invoke(context.Background(), "sleep", nil, 50*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.False(t, res.Success)
	var ie *mcp.InvocationError
	require.ErrorAs(t, res.Err, &ie)
	assert.Equal(t, mcp.InvocationTimeout, ie.Kind)
	assert.True(t, ie.IsRetryable())

	assert.Equal(t, mcp.StateReady, conn.State())

	res = conn.Invoke(context.Background(), "echo", map[string]any{"text": "still here"}, time.Second)
	assert.True(t, res.Success)
}

func TestConnection_OpenFailureCloses(t *testing.T) {
	conn := mcp.NewConnection(
		mcp.ConnectionDescriptor{ID: "broken", Command: "does-not-exist"},
		mcp.WithDialer(func(ctx context.Context, desc mcp.ConnectionDescriptor) (mcp.Session, error) {
			return nil, errors.New("exec: not found")
		}),
	)

	err := conn.Open(context.Background())
	require.Error(t, err)

	var ce *mcp.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "broken", ce.ConnectionID)
	assert.Contains(t, ce.Suggestion(), "does-not-exist")

	assert.Equal(t, mcp.StateClosed, conn.State())
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}

func TestConnection_OpenTwiceFails(t *testing.T) {
	conn := openInProcess(t, "local")
	assert.Error(t, conn.Open(context.Background()))
	assert.Equal(t, mcp.StateReady, conn.State())
}

func TestConnection_ListToolsRequiresReady(t *testing.T) {
	conn := mcp.NewConnection(mcp.ConnectionDescriptor{ID: "idle"})
	_, err := conn.ListTools()
	assert.Error(t, err)
}

func TestConnection_TransportFailureDegradesAndRecovers(t *testing.T) {
	broken := mcptest.NewMockSession(mcpgo.NewTool("probe"))
	broken.SetCallHandler(func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return nil, transport.NewError(errors.New("broken pipe"))
	})
	healthy := mcptest.NewMockSession(mcpgo.NewTool("probe"))

	var dials atomic.Int32
	dialer := func(ctx context.Context, desc mcp.ConnectionDescriptor) (mcp.Session, error) {
		switch dials.Add(1) {
		case 1:
			return broken, nil
		case 2:
			return nil, errors.New("connection refused")
		default:
			return healthy, nil
		}
	}

	var changes atomic.Int32
	conn := mcp.NewConnection(mcp.ConnectionDescriptor{ID: "flaky", URL: "http://example.invalid/mcp"},
		mcp.WithDialer(dialer),
		mcp.WithBackOff(fastBackOff),
		mcp.WithToolsChanged(func(string) { changes.Add(1) }),
	)
	require.NoError(t, conn.Open(context.Background()))
	defer conn.Close()

	res := conn.Invoke(context.Background(), "probe", nil, time.Second)
	require.False(t, res.Success)
	var ie *mcp.InvocationError
	require.ErrorAs(t, res.Err, &ie)
	assert.Equal(t, mcp.InvocationTransport, ie.Kind)
	assert.True(t, broken.Closed())

	require.Eventually(t, func() bool {
		return conn.State() == mcp.StateReady
	}, 2*time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, dials.Load(), int32(3))
	assert.GreaterOrEqual(t, changes.Load(), int32(2), "degrade and recover both announce tool changes")
	assert.GreaterOrEqual(t, conn.Status().FailureCount, 2)

	res = conn.Invoke(context.Background(), "probe", nil, time.Second)
	assert.True(t, res.Success)
	assert.Equal(t, 1, healthy.Calls())
}

func TestConnection_InvokeWhileDegradedIsUnavailable(t *testing.T) {
	session := mcptest.NewMockSession(mcpgo.NewTool("probe"))
	session.SetPingHandler(func(ctx context.Context) error {
		return transport.NewError(errors.New("eof"))
	})

	var dials atomic.Int32
	conn := mcp.NewConnection(mcp.ConnectionDescriptor{ID: "gone"},
		mcp.WithDialer(func(ctx context.Context, desc mcp.ConnectionDescriptor) (mcp.Session, error) {
			if dials.Add(1) == 1 {
				return session, nil
			}
			return nil, errors.New("still down")
		}),
		mcp.WithBackOff(fastBackOff),
	)
	require.NoError(t, conn.Open(context.Background()))

	require.Error(t, conn.Ping(context.Background()))
	assert.Equal(t, mcp.StateDegraded, conn.State())

	res := conn.Invoke(context.Background(), "probe", nil, time.Second)
	var ie *mcp.InvocationError
	require.ErrorAs(t, res.Err, &ie)
	assert.Equal(t, mcp.InvocationUnavailable, ie.Kind)

	// Close must stop the reconnect loop and return.
	require.NoError(t, conn.Close())
	assert.Equal(t, mcp.StateClosed, conn.State())
	settled := dials.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, dials.Load())
}

func TestConnection_CallerCancellationDoesNotAbortDispatchedCall(t *testing.T) {
	session := mcptest.NewMockSession(mcpgo.NewTool("slow"))
	session.SetCallDelay(30 * time.Millisecond)

	conn := mcp.NewConnection(mcp.ConnectionDescriptor{ID: "m"}, mcp.WithDialer(mcptest.StaticDialer(map[string]mcp.Session{"m": session})))
	require.NoError(t, conn.Open(context.Background()))
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := conn.Invoke(ctx, "slow", nil, time.Second)
	assert.True(t, res.Success, res.Error)
}

func TestConnection_InvocationsAreSerialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	session := mcptest.NewMockSession(mcpgo.NewTool("work"))
	session.SetCallHandler(func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return mcpgo.NewToolResultText("done"), nil
	})

	conn := mcp.NewConnection(mcp.ConnectionDescriptor{ID: "m"}, mcp.WithDialer(mcptest.StaticDialer(map[string]mcp.Session{"m": session})))
	require.NoError(t, conn.Open(context.Background()))
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Invoke(context.Background(), "work", nil, time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, 8, session.Calls())
}

func TestConnection_QueuedInvocationsHonorTheirOwnTimeout(t *testing.T) {
	session := mcptest.NewMockSession(mcpgo.NewTool("slow"))
	session.SetCallDelay(400 * time.Millisecond)

	conn := mcp.NewConnection(mcp.ConnectionDescriptor{ID: "m"}, mcp.WithDialer(mcptest.StaticDialer(map[string]mcp.Session{"m": session})))
	require.NoError(t, conn.Open(context.Background()))
	defer conn.Close()

	const callers = 3
	elapsed := make([]time.Duration, callers)
	results := make([]mcp.ToolCallResult, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			results[i] = conn.Invoke(context.Background(), "slow", nil, 200*time.Millisecond)
			elapsed[i] = time.Since(start)
		}()
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.Less(t, elapsed[i], 350*time.Millisecond, "caller %d waited past its timeout", i)
		require.False(t, results[i].Success)
		var ie *mcp.InvocationError
		require.ErrorAs(t, results[i].Err, &ie)
		assert.Equal(t, mcp.InvocationTimeout, ie.Kind)
	}
}

func TestConnection_TimeoutWhenTransportIgnoresContext(t *testing.T) {
	session := mcptest.NewMockSession(mcpgo.NewTool("stuck"))
	session.SetCallHandler(func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		time.Sleep(400 * time.Millisecond)
		return mcpgo.NewToolResultText("late"), nil
	})

	conn := mcp.NewConnection(mcp.ConnectionDescriptor{ID: "m"}, mcp.WithDialer(mcptest.StaticDialer(map[string]mcp.Session{"m": session})))
	require.NoError(t, conn.Open(context.Background()))
	defer conn.Close()

	start := time.Now()
	res := conn.Invoke(context.Background(), "stuck", nil, 100*time.Millisecond)
	assert.Less(t, time.Since(start), 300*time.Millisecond)

	require.False(t, res.Success)
	var ie *mcp.InvocationError
	require.ErrorAs(t, res.Err, &ie)
	assert.Equal(t, mcp.InvocationTimeout, ie.Kind)

	// The abandoned call still holds the slot until the transport returns.
	res = conn.Invoke(context.Background(), "stuck", nil, time.Second)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, "late", res.Payload)
}

func TestConnection_CloseReportsSessionError(t *testing.T) {
	session := mcptest.NewMockSession()
	session.SetCloseHandler(func() error { return errors.New("kill failed") })

	conn := mcp.NewConnection(mcp.ConnectionDescriptor{ID: "m"}, mcp.WithDialer(mcptest.StaticDialer(map[string]mcp.Session{"m": session})))
	require.NoError(t, conn.Open(context.Background()))

	err := conn.Close()
	var ce *mcp.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "close", ce.Op)
	assert.Equal(t, mcp.StateClosed, conn.State())
}
