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
	"encoding/json"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// TransportType selects how a connection reaches its tool server.
type TransportType string

const (
	// TransportStdio launches a subprocess and speaks MCP over its stdin/stdout.
	TransportStdio TransportType = "stdio"
	// TransportHTTP connects to a streamable-HTTP MCP endpoint.
	TransportHTTP TransportType = "http"
	// TransportInProcess talks to an MCP server object living in this process.
	TransportInProcess TransportType = "inprocess"
)

// ConnectionDescriptor is the static configuration for one tool server.
// It is supplied once at startup and never mutated.
type ConnectionDescriptor struct {
	// ID names the connection and namespaces its tools. Must be unique.
	ID string

	// Transport selects stdio, http or inprocess. Defaults to stdio when Command is set.
	Transport TransportType

	// Command, Args and Env launch a stdio server.
	Command string
	Args    []string
	Env     []string

	// URL and Headers address an http server.
	URL     string
	Headers map[string]string

	// HTTPClient replaces the default client for http servers.
	HTTPClient *http.Client

	// Server is the in-process server for TransportInProcess.
	Server *server.MCPServer

	// DeclaredAt records where the descriptor came from (config file path, "builtin", ...).
	DeclaredAt string
}

// transport returns the effective transport type.
func (d ConnectionDescriptor) transport() TransportType {
	if d.Transport != "" {
		return d.Transport
	}
	switch {
	case d.Server != nil:
		return TransportInProcess
	case d.URL != "":
		return TransportHTTP
	default:
		return TransportStdio
	}
}

// ToolDefinition describes one tool discovered on a connection.
// Definitions are immutable once discovered and replaced wholesale on rediscovery.
type ToolDefinition struct {
	// QualifiedName is "<connection_id>.<tool_name>" and unique registry-wide.
	QualifiedName string `json:"qualified_name"`

	// Name is the tool's name as reported by its server.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// InputSchema is the JSON Schema for the tool's arguments.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// ConnectionID is the owning connection.
	ConnectionID string `json:"connection_id"`
}

// ToolCallResult is the outcome of one tool invocation. Failures are data:
// Success is false and Error carries a message the model can read.
type ToolCallResult struct {
	CallID   string        `json:"call_id,omitempty"`
	Tool     string        `json:"tool"`
	Success  bool          `json:"success"`
	Payload  string        `json:"payload,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	// Err is the typed error behind a failure (InvocationError or ResolutionError).
	Err error `json:"-"`
}

// Content returns the text handed back to the model for this result.
func (r ToolCallResult) Content() string {
	if r.Success {
		return r.Payload
	}
	return "Error: " + r.Error
}

// ConnectionStatus is a point-in-time view of one connection, for health endpoints and the CLI.
type ConnectionStatus struct {
	ID           string          `json:"id"`
	Transport    TransportType   `json:"transport"`
	State        ConnectionState `json:"state"`
	ToolCount    int             `json:"tool_count"`
	FailureCount int             `json:"failure_count"`
	LastError    string          `json:"last_error,omitempty"`
	ReadySince   *time.Time      `json:"ready_since,omitempty"`
}
