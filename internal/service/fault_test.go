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

package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/lumipilot/internal/log"
	"github.com/tombee/lumipilot/pkg/llm/llmtest"
)

func TestFaultDetection_AnalyzeLogs(t *testing.T) {
	provider := llmtest.NewScriptedProvider(llmtest.Reply("disk is full"))
	svc := NewFaultDetectionService(provider, "gpt-4o-mini", log.Discard())

	logs := make([]any, 150)
	for i := range logs {
		logs[i] = fmt.Sprintf("line %d ERROR disk full", i)
	}
	resp := svc.Process(context.Background(), NewRequest("analyze_logs", map[string]any{"logs": logs}))

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "disk is full", resp.Data["analysis_result"])
	assert.Equal(t, 150, resp.Data["log_count"])
	assert.Equal(t, "application", resp.Data["log_type"])

	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 2)
	assert.Contains(t, reqs[0].Messages[0].Content, "log analysis")
	assert.Empty(t, reqs[0].Tools)
	user := reqs[0].Messages[1].Content
	assert.Contains(t, user, "line 99 ")
	assert.NotContains(t, user, "line 100 ")
}

func TestFaultDetection_DetectAnomaly(t *testing.T) {
	provider := llmtest.NewScriptedProvider(llmtest.Reply("cpu spike"))
	svc := NewFaultDetectionService(provider, "gpt-4o-mini", log.Discard())

	resp := svc.Process(context.Background(), NewRequest("detect_anomaly", map[string]any{
		"metrics":  map[string]any{"cpu": 97, "samples": []any{strings.Repeat("x", 300)}},
		"baseline": map[string]any{"cpu": 40},
	}))

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "cpu spike", resp.Data["anomaly_analysis"])
	assert.Equal(t, 2, resp.Data["metrics_count"])
	assert.Equal(t, "statistical", resp.Data["detection_type"])
	assert.InDelta(t, 0.8, resp.Data["threshold"], 1e-9)

	user := provider.Requests()[0].Messages[1].Content
	assert.Contains(t, user, "cpu: 97")
	assert.Contains(t, user, "Baseline:")
	assert.Contains(t, user, "...")
}

func TestFaultDetection_DiagnoseSystem(t *testing.T) {
	provider := llmtest.NewScriptedProvider(llmtest.Reply("memory leak"))
	svc := NewFaultDetectionService(provider, "gpt-4o-mini", log.Discard())

	resp := svc.Process(context.Background(), NewRequest("diagnose_system", map[string]any{
		"system_info": map[string]any{"os": "linux", "memory": "16GB"},
		"symptoms":    []any{"slow responses", "OOM kills"},
	}))

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "memory leak", resp.Data["diagnosis_result"])
	assert.Equal(t, 2, resp.Data["symptoms_count"])
	assert.Equal(t, []string{"memory", "os"}, resp.Data["system_metrics"])
}

func TestFaultDetection_Validation(t *testing.T) {
	provider := llmtest.NewScriptedProvider()
	svc := NewFaultDetectionService(provider, "m", log.Discard())

	tests := []struct {
		action  string
		payload map[string]any
		want    string
	}{
		{"analyze_logs", map[string]any{}, "logs must not be empty"},
		{"detect_anomaly", map[string]any{}, "metrics must not be empty"},
		{"diagnose_system", map[string]any{"symptoms": []any{"x"}}, "required"},
		{"analyze_logs", map[string]any{"logs": "not a list"}, "invalid payload"},
		{"explode", nil, "unsupported action"},
	}
	for _, tt := range tests {
		t.Run(tt.action+"/"+tt.want, func(t *testing.T) {
			resp := svc.Process(context.Background(), NewRequest(tt.action, tt.payload))
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.want)
		})
	}
	assert.Zero(t, provider.Calls())
}
