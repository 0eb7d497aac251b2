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

// Package cli builds the lumipilot root command.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/lumipilot/internal/commands/chat"
	"github.com/tombee/lumipilot/internal/commands/health"
	"github.com/tombee/lumipilot/internal/commands/serve"
	"github.com/tombee/lumipilot/internal/commands/shared"
	"github.com/tombee/lumipilot/internal/commands/tools"
	"github.com/tombee/lumipilot/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lumipilot",
		Short: "Lumi Pilot - a tool-augmented AI assistant",
		Long: `Lumi Pilot answers questions with a large language model that can call
tools exposed by MCP servers before it replies.

Run 'lumipilot chat "what is 2+2?"' for a one-shot answer.
Run 'lumipilot serve' to start the HTTP gateway.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/lumipilot/config.yaml)")

	cmd.AddCommand(
		chat.NewCommand(),
		serve.NewCommand(),
		tools.NewCommand(),
		health.NewCommand(),
		version.NewCommand(),
	)
	return cmd
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
