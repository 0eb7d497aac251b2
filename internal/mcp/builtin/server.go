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

// Package builtin is the tool server that ships inside Lumi Pilot. It is
// served in-process and registered like any other connection.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	lpmcp "github.com/tombee/lumipilot/internal/mcp"
)

// ConnectionID is the id the built-in server registers under.
const ConnectionID = "builtin"

// ServerName is reported in the MCP handshake and by get_server_info.
const ServerName = "Lumi Pilot Built-in Tools"

// New creates the built-in MCP server.
func New(version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		version: version,
		logger:  logger.With("component", "builtin_tools"),
		calc:    NewCalculator(),
	}

	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTools(h.tools()...)
	return s
}

// Descriptor returns the connection descriptor for an in-process built-in server.
func Descriptor(version string, logger *slog.Logger) lpmcp.ConnectionDescriptor {
	return lpmcp.ConnectionDescriptor{
		ID:        ConnectionID,
		Transport: lpmcp.TransportInProcess,
		Server:    New(version, logger),
	}
}

type handlers struct {
	version string
	logger  *slog.Logger
	calc    *Calculator
}

func (h *handlers) tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("hello_world",
				mcp.WithDescription("Return a friendly greeting"),
				mcp.WithString("name", mcp.Description("Who to greet. Default: World")),
			),
			Handler: h.helloWorld,
		},
		{
			Tool: mcp.NewTool("echo",
				mcp.WithDescription("Return the input message unchanged"),
				mcp.WithString("message", mcp.Required(), mcp.Description("Message to echo")),
			),
			Handler: h.echo,
		},
		{
			Tool: mcp.NewTool("calculate",
				mcp.WithDescription("Evaluate an arithmetic expression using + - * / and parentheses"),
				mcp.WithString("expression", mcp.Required(), mcp.Description("Expression such as (2 + 3) * 4")),
			),
			Handler: h.calculate,
		},
		{
			Tool:    mcp.NewTool("get_current_time", mcp.WithDescription("Return the current local time in RFC 3339 format")),
			Handler: h.currentTime,
		},
		{
			Tool:    mcp.NewTool("get_system_info", mcp.WithDescription("Describe the host this server runs on")),
			Handler: h.systemInfo,
		},
		{
			Tool:    mcp.NewTool("get_server_info", mcp.WithDescription("Describe this tool server and its tools")),
			Handler: h.serverInfo,
		},
	}
}

func (h *handlers) helloWorld(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "World")
	if name == "" {
		name = "World"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Hello, %s! Greetings from the %s.", name, ServerName)), nil
}

func (h *handlers) echo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Echo: " + msg), nil
}

func (h *handlers) calculate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := h.calc.Evaluate(expression)
	if err != nil {
		h.logger.Debug("calculation rejected", "expression", expression, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	h.logger.Debug("calculation", "expression", expression, "result", result)
	return mcp.NewToolResultText(result), nil
}

func (h *handlers) currentTime(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(time.Now().Format(time.RFC3339)), nil
}

// SystemInfo is returned by get_system_info.
type SystemInfo struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	GoVersion string `json:"go_version"`
	CPUs      int    `json:"cpus"`
	Hostname  string `json:"hostname,omitempty"`
	WorkDir   string `json:"working_directory,omitempty"`
}

func (h *handlers) systemInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info := SystemInfo{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		CPUs:      runtime.NumCPU(),
	}
	info.Hostname, _ = os.Hostname()
	info.WorkDir, _ = os.Getwd()
	return jsonResult(info)
}

// ServerInfo is returned by get_server_info.
type ServerInfo struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Status  string   `json:"status"`
	Tools   []string `json:"tools"`
}

func (h *handlers) serverInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tools := h.tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Tool.Name
	}
	return jsonResult(ServerInfo{
		Name:    ServerName,
		Version: h.version,
		Status:  "running",
		Tools:   names,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to encode result", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
