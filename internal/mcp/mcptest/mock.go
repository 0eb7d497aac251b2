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

// Package mcptest provides fakes for exercising the mcp package without a
// real tool server process.
package mcptest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	lpmcp "github.com/tombee/lumipilot/internal/mcp"
)

// MockSession implements mcp.Session for testing.
type MockSession struct {
	mu        sync.RWMutex
	tools     []mcp.Tool
	callFunc  func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	pingFunc  func(ctx context.Context) error
	closeFunc func() error
	callDelay time.Duration

	calls  atomic.Int64
	closed atomic.Bool
}

var _ lpmcp.Session = (*MockSession)(nil)

// NewMockSession creates a session advertising tools.
func NewMockSession(tools ...mcp.Tool) *MockSession {
	return &MockSession{tools: tools}
}

// ListTools returns the configured tools.
func (s *MockSession) ListTools(ctx context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]mcp.Tool, len(s.tools))
	copy(tools, s.tools)
	return &mcp.ListToolsResult{Tools: tools}, nil
}

// CallTool runs the configured handler after the configured delay.
func (s *MockSession) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.calls.Add(1)

	s.mu.RLock()
	delay := s.callDelay
	callFunc := s.callFunc
	s.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if callFunc != nil {
		return callFunc(ctx, req)
	}
	return mcp.NewToolResultText(fmt.Sprintf("mock response for %s", req.Params.Name)), nil
}

// Ping succeeds unless a ping handler is set.
func (s *MockSession) Ping(ctx context.Context) error {
	s.mu.RLock()
	pingFunc := s.pingFunc
	s.mu.RUnlock()

	if pingFunc != nil {
		return pingFunc(ctx)
	}
	return nil
}

// Close marks the session closed.
func (s *MockSession) Close() error {
	s.closed.Store(true)

	s.mu.RLock()
	closeFunc := s.closeFunc
	s.mu.RUnlock()

	if closeFunc != nil {
		return closeFunc()
	}
	return nil
}

// SetCallHandler sets a custom call handler.
func (s *MockSession) SetCallHandler(f func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callFunc = f
}

// SetCallDelay delays every call by d, or until the call context ends.
func (s *MockSession) SetCallDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callDelay = d
}

// SetPingHandler sets a custom ping handler.
func (s *MockSession) SetPingHandler(f func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingFunc = f
}

// SetCloseHandler sets a custom close handler.
func (s *MockSession) SetCloseHandler(f func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFunc = f
}

// Calls returns how many CallTool requests were received.
func (s *MockSession) Calls() int {
	return int(s.calls.Load())
}

// Closed reports whether Close was called.
func (s *MockSession) Closed() bool {
	return s.closed.Load()
}

// StaticDialer returns a dialer that hands out sessions by connection id.
// Unknown ids fail to dial.
func StaticDialer(sessions map[string]lpmcp.Session) lpmcp.Dialer {
	return func(ctx context.Context, desc lpmcp.ConnectionDescriptor) (lpmcp.Session, error) {
		s, ok := sessions[desc.ID]
		if !ok {
			return nil, fmt.Errorf("no server for %s", desc.ID)
		}
		return s, nil
	}
}

// HangingDialer returns a dialer that ignores its context and never returns
// until release is closed.
func HangingDialer(release <-chan struct{}) lpmcp.Dialer {
	return func(ctx context.Context, desc lpmcp.ConnectionDescriptor) (lpmcp.Session, error) {
		<-release
		return nil, fmt.Errorf("released")
	}
}

// NewServer builds an in-process MCP server exposing tools.
func NewServer(name string, tools ...server.ServerTool) *server.MCPServer {
	s := server.NewMCPServer(name, "test", server.WithToolCapabilities(true))
	s.AddTools(tools...)
	return s
}

// EchoTool returns a tool that replies with its "text" argument.
func EchoTool() server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool("echo",
			mcp.WithDescription("Echo the input text"),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := req.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(text), nil
		},
	}
}

// SleepTool returns a tool that blocks for d or until its context ends.
func SleepTool(d time.Duration) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool("sleep", mcp.WithDescription("Sleep then reply")),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			select {
			case <-time.After(d):
				return mcp.NewToolResultText("awake"), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

// FailTool returns a tool that always reports an error result.
func FailTool(msg string) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool("fail", mcp.WithDescription("Always fails")),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError(msg), nil
		},
	}
}
