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

package health

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/lumipilot/internal/commands/shared"
	"github.com/tombee/lumipilot/internal/service"
)

func TestReport(t *testing.T) {
	health := service.AppHealth{
		Healthy: false,
		AppName: "Lumi Pilot",
		Version: "1.0.0",
		Services: map[string]service.HealthStatus{
			"chat":            {Healthy: true},
			"fault_detection": {Healthy: false, Error: "connection refused"},
		},
	}

	var buf bytes.Buffer
	err := Report(&buf, health)
	require.Error(t, err)
	assert.Equal(t, shared.ExitUnhealthy, shared.ExitCode(err))
	assert.Contains(t, buf.String(), "Lumi Pilot 1.0.0: unhealthy")
	assert.Contains(t, buf.String(), "connection refused")

	health.Healthy = true
	buf.Reset()
	assert.NoError(t, Report(&buf, health))
	assert.Contains(t, buf.String(), "healthy")
}

func TestRunRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"healthy":true,"app_name":"Lumi Pilot","version":"2.0.0","services":{"chat":{"healthy":true}}}`))
	}))
	defer srv.Close()

	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetContext(t.Context())

	require.NoError(t, runRemote(cmd, srv.URL+"/"))
	assert.Contains(t, buf.String(), "Lumi Pilot 2.0.0: healthy")
}
