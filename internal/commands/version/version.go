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

// Package version implements 'lumipilot version'.
package version

import (
	"github.com/spf13/cobra"

	"github.com/tombee/lumipilot/internal/commands/shared"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	shared.JSONResponse
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewCommand creates the version command
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date for Lumi Pilot.`,
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
}

func runVersion(cmd *cobra.Command, args []string) error {
	v, c, b := shared.GetVersion()

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), VersionInfo{
			JSONResponse: shared.NewJSONResponse("version", true),
			Version:      v,
			Commit:       c,
			BuildDate:    b,
		})
	}

	cmd.Printf("lumipilot version %s\n", v)
	cmd.Printf("  commit:     %s\n", c)
	cmd.Printf("  build date: %s\n", b)
	return nil
}
