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

/*
Package mcp connects Lumi Pilot to Model Context Protocol tool servers.

Each configured server gets a Connection with its own lifecycle:

	disconnected -> connecting -> ready <-> degraded
	                     |           |          |
	                     +-----------+----------+--> closed

A connection that fails its handshake goes straight to closed. A ready
connection whose transport breaks becomes degraded and reconnects in the
background with exponential backoff; a tool timeout alone never degrades it.

# Manager

The Manager opens every server concurrently and merges their tools into one
namespace:

	mgr := mcp.NewManager(mcp.ManagerConfig{Logger: logger})
	report := mgr.StartAll(ctx, []mcp.ConnectionDescriptor{
	    {ID: "fs", Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"}},
	    {ID: "search", URL: "http://localhost:9000/mcp"},
	})
	defer mgr.ShutdownAll(context.Background())

StartAll returns once each server is ready or closed; one bad server never
fails the others.

# Registry

Tool names are always qualified by connection id ("fs.read_file"), so two
servers may expose tools with the same name. The registry is an immutable
Snapshot rebuilt whenever a connection's tool set changes:

	snap := mgr.Registry()
	for _, t := range snap.Tools() {
	    fmt.Println(t.QualifiedName, snap.WireName(t.QualifiedName))
	}

WireName is a form safe for LLM function-calling APIs ("fs__read_file").
Lookup accepts either form.

# Invocation

	res := mgr.Invoke(ctx, "fs.read_file", map[string]any{"path": "/tmp/a"})
	if !res.Success {
	    fmt.Println(res.Error)
	}

Invoke never returns a Go error. Unknown tools, unavailable connections,
schema violations, timeouts and remote failures all come back as a
ToolCallResult carrying the typed error in Err.
*/
package mcp
