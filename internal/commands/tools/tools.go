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

// Package tools implements 'lumipilot tools'.
package tools

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/lumipilot/internal/commands/shared"
	"github.com/tombee/lumipilot/internal/mcp"
)

// Output is the JSON form of the tools listing.
type Output struct {
	shared.JSONResponse
	RegistryVersion uint64                 `json:"registry_version"`
	Connections     []mcp.ConnectionStatus `json:"connections"`
	Tools           []ToolEntry            `json:"tools"`
}

// ToolEntry is one namespaced tool.
type ToolEntry struct {
	Name         string `json:"name"`
	WireName     string `json:"wire_name"`
	ConnectionID string `json:"connection_id"`
	Description  string `json:"description"`
}

// NewCommand creates the tools command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List tool servers and their namespaced tools",
		Long: `Start every configured tool server, then list connection states and the
tools the model would be offered. Tool names are namespaced as
<connection_id>.<tool_name>.`,
		Args: cobra.NoArgs,
		RunE: run,
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := shared.Bootstrap(ctx, shared.BootstrapOptions{LogOutput: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = app.Close(closeCtx)
	}()

	out := Collect(app.Manager.Registry(), app.Manager.Status())
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), out)
	}
	return Print(cmd.OutOrStdout(), out)
}

// Collect builds the listing from a registry snapshot and connection states.
func Collect(snap *mcp.Snapshot, status []mcp.ConnectionStatus) Output {
	out := Output{
		JSONResponse:    shared.NewJSONResponse("tools", true),
		RegistryVersion: snap.Version(),
		Connections:     status,
		Tools:           make([]ToolEntry, 0, snap.Len()),
	}
	for _, def := range snap.Tools() {
		out.Tools = append(out.Tools, ToolEntry{
			Name:         def.QualifiedName,
			WireName:     snap.WireName(def.QualifiedName),
			ConnectionID: def.ConnectionID,
			Description:  def.Description,
		})
	}
	return out
}

// Print renders the listing as two tables.
func Print(w io.Writer, out Output) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONNECTION\tTRANSPORT\tSTATE\tTOOLS\tLAST ERROR")
	for _, c := range out.Connections {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Transport, c.State, c.ToolCount, c.LastError)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d tool(s), registry version %d\n\n", len(out.Tools), out.RegistryVersion)
	if len(out.Tools) == 0 {
		return nil
	}
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tDESCRIPTION")
	for _, t := range out.Tools {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
	}
	return tw.Flush()
}
