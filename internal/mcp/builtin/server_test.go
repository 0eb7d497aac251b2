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

package builtin_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/lumipilot/internal/log"
	"github.com/tombee/lumipilot/internal/mcp"
	"github.com/tombee/lumipilot/internal/mcp/builtin"
)

func openBuiltin(t *testing.T) *mcp.Connection {
	t.Helper()
	conn := mcp.NewConnection(builtin.Descriptor("1.2.3", log.Discard()), mcp.WithLogger(log.Discard()))
	require.NoError(t, conn.Open(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestBuiltin_ToolsAreNamespaced(t *testing.T) {
	conn := openBuiltin(t)

	tools, err := conn.ListTools()
	require.NoError(t, err)

	var names []string
	for _, tool := range tools {
		names = append(names, tool.QualifiedName)
	}
	assert.ElementsMatch(t, []string{
		"builtin.hello_world",
		"builtin.echo",
		"builtin.calculate",
		"builtin.get_current_time",
		"builtin.get_system_info",
		"builtin.get_server_info",
	}, names)
}

func TestBuiltin_Calls(t *testing.T) {
	conn := openBuiltin(t)
	ctx := context.Background()

	tests := []struct {
		tool    string
		args    map[string]any
		success bool
		want    string
	}{
		{"calculate", map[string]any{"expression": "2+2"}, true, "4"},
		{"calculate", map[string]any{"expression": "import os"}, false, "unsupported character"},
		{"echo", map[string]any{"message": "ping"}, true, "Echo: ping"},
		{"hello_world", map[string]any{"name": "Ada"}, true, "Hello, Ada!"},
		{"hello_world", nil, true, "Hello, World!"},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			res := conn.Invoke(ctx, tt.tool, tt.args, time.Second)
			assert.Equal(t, tt.success, res.Success, res.Error)
			assert.Contains(t, res.Content(), tt.want)
		})
	}
}

func TestBuiltin_CurrentTime(t *testing.T) {
	conn := openBuiltin(t)
	res := conn.Invoke(context.Background(), "get_current_time", nil, time.Second)
	require.True(t, res.Success)

	_, err := time.Parse(time.RFC3339, res.Payload)
	assert.NoError(t, err)
}

func TestBuiltin_ServerInfo(t *testing.T) {
	conn := openBuiltin(t)
	res := conn.Invoke(context.Background(), "get_server_info", nil, time.Second)
	require.True(t, res.Success)

	var info builtin.ServerInfo
	require.NoError(t, json.Unmarshal([]byte(res.Payload), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Contains(t, info.Tools, "calculate")
	assert.Len(t, info.Tools, 6)
}

func TestBuiltin_SystemInfo(t *testing.T) {
	conn := openBuiltin(t)
	res := conn.Invoke(context.Background(), "get_system_info", nil, time.Second)
	require.True(t, res.Success)

	var info builtin.SystemInfo
	require.NoError(t, json.Unmarshal([]byte(res.Payload), &info))
	assert.NotEmpty(t, info.OS)
	assert.Positive(t, info.CPUs)
}
