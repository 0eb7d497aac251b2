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

package tools

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/lumipilot/internal/mcp"
)

func TestCollectAndPrint(t *testing.T) {
	snap := mcp.BuildSnapshot(2, []mcp.ToolDefinition{
		{QualifiedName: "builtin.echo", Name: "echo", Description: "Echo a message", ConnectionID: "builtin"},
		{QualifiedName: "files.search", Name: "search", Description: "Search files", ConnectionID: "files"},
		{QualifiedName: "web.search", Name: "search", Description: "Search the web", ConnectionID: "web"},
	})
	status := []mcp.ConnectionStatus{
		{ID: "builtin", Transport: mcp.TransportInProcess, State: mcp.StateReady, ToolCount: 1},
		{ID: "broken", Transport: mcp.TransportStdio, State: mcp.StateClosed, LastError: "executable not found"},
	}

	out := Collect(snap, status)
	assert.Equal(t, uint64(2), out.RegistryVersion)
	assert.Len(t, out.Tools, 3)
	assert.Equal(t, "files__search", out.Tools[1].WireName)

	var buf bytes.Buffer
	assert.NoError(t, Print(&buf, out))
	text := buf.String()
	assert.Contains(t, text, "executable not found")
	assert.Contains(t, text, "files.search")
	assert.Contains(t, text, "web.search")
	assert.Contains(t, text, "3 tool(s), registry version 2")
}
