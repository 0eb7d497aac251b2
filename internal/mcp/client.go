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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Session is the protocol surface a Connection needs from an initialized MCP client.
// *client.Client satisfies it.
type Session interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Dialer establishes and initializes a session for a descriptor.
type Dialer func(ctx context.Context, desc ConnectionDescriptor) (Session, error)

// ClientInfo identifies this process during the MCP handshake.
type ClientInfo struct {
	Name    string
	Version string
}

// NewDialer returns the default Dialer, which supports stdio, streamable HTTP
// and in-process servers.
func NewDialer(info ClientInfo) Dialer {
	return func(ctx context.Context, desc ConnectionDescriptor) (Session, error) {
		c, err := newClient(desc)
		if err != nil {
			return nil, err
		}

		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to start transport: %w", err)
		}

		initReq := mcp.InitializeRequest{
			Params: mcp.InitializeParams{
				ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
				ClientInfo: mcp.Implementation{
					Name:    info.Name,
					Version: info.Version,
				},
			},
		}
		if _, err := c.Initialize(ctx, initReq); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("handshake failed: %w", err)
		}

		return c, nil
	}
}

func newClient(desc ConnectionDescriptor) (*client.Client, error) {
	switch desc.transport() {
	case TransportStdio:
		if desc.Command == "" {
			return nil, errors.New("stdio transport requires a command")
		}
		c, err := client.NewStdioMCPClient(desc.Command, desc.Env, desc.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to launch %s: %w", desc.Command, err)
		}
		return c, nil

	case TransportHTTP:
		if desc.URL == "" {
			return nil, errors.New("http transport requires a url")
		}
		var opts []transport.StreamableHTTPCOption
		if len(desc.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(desc.Headers))
		}
		if desc.HTTPClient != nil {
			opts = append(opts, transport.WithHTTPBasicClient(desc.HTTPClient))
		}
		return client.NewStreamableHttpClient(desc.URL, opts...)

	case TransportInProcess:
		if desc.Server == nil {
			return nil, errors.New("inprocess transport requires a server")
		}
		return client.NewInProcessClient(desc.Server)

	default:
		return nil, fmt.Errorf("unsupported transport %q", desc.Transport)
	}
}

// discoverTools lists a session's tools and namespaces them under connectionID.
func discoverTools(ctx context.Context, connectionID string, s Session) ([]ToolDefinition, error) {
	result, err := s.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]ToolDefinition, 0, len(result.Tools))
	for _, tool := range result.Tools {
		schema, err := inputSchemaOf(tool)
		if err != nil {
			return nil, err
		}
		tools = append(tools, ToolDefinition{
			QualifiedName: QualifiedName(connectionID, tool.Name),
			Name:          tool.Name,
			Description:   tool.Description,
			InputSchema:   schema,
			ConnectionID:  connectionID,
		})
	}
	return tools, nil
}

// inputSchemaOf prefers the raw schema a server sent and falls back to the typed one.
func inputSchemaOf(tool mcp.Tool) (json.RawMessage, error) {
	if len(tool.RawInputSchema) > 0 {
		return tool.RawInputSchema, nil
	}
	schema, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input schema for %s: %w", tool.Name, err)
	}
	return schema, nil
}

// formatContent flattens a tool result into the text the model will read.
func formatContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
			continue
		}
		if img, ok := mcp.AsImageContent(content); ok {
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes base64]", img.MIMEType, len(img.Data)))
			continue
		}
		if audio, ok := mcp.AsAudioContent(content); ok {
			parts = append(parts, fmt.Sprintf("[audio %s, %d bytes base64]", audio.MIMEType, len(audio.Data)))
			continue
		}
		if res, ok := mcp.AsEmbeddedResource(content); ok {
			if text, ok := mcp.AsTextResourceContents(res.Resource); ok {
				parts = append(parts, text.Text)
			} else {
				parts = append(parts, "[embedded resource]")
			}
		}
	}

	if len(parts) == 0 && result.StructuredContent != nil {
		if b, err := json.Marshal(result.StructuredContent); err == nil {
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, "\n")
}

// isTransportFailure reports whether err came from the transport rather than the tool.
func isTransportFailure(err error) bool {
	var te *transport.Error
	return errors.As(err, &te)
}
