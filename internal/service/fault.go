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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tombee/lumipilot/pkg/llm"
)

// FaultServiceName is the registry key of the fault detection service.
const FaultServiceName = "fault_detection"

// maxLogLines bounds how many log lines are sent to the model.
const maxLogLines = 100

// maxValueLen bounds rendered list and map metric values.
const maxValueLen = 200

const logAnalysisPrompt = `You are an experienced operations engineer specialising in log analysis.
Review the supplied logs and report:
1. Errors and warnings, grouped by cause
2. Recurring patterns and their frequency
3. Likely root causes
4. Recommended remediation steps, most urgent first
Be concise and cite the log lines that support each finding.`

const anomalyDetectionPrompt = `You are a monitoring specialist who detects anomalies in system metrics.
Compare the current metrics with the baseline when one is given and report:
1. Which metrics are anomalous and by how much
2. The severity of each anomaly
3. Probable causes
4. Suggested follow-up checks
State clearly when nothing looks anomalous.`

const systemDiagnosisPrompt = `You are a senior site reliability engineer performing system diagnosis.
Using the system information and reported symptoms:
1. List the most likely faults in order of probability
2. Explain how each fault would produce the symptoms
3. Propose diagnostic commands or checks to confirm each fault
4. Recommend a fix for the most likely fault`

// LogAnalysisRequest is the payload of analyze_logs.
type LogAnalysisRequest struct {
	Logs           []string `json:"logs"`
	LogType        string   `json:"log_type,omitempty"`
	TimeRange      string   `json:"time_range,omitempty"`
	SeverityFilter string   `json:"severity_filter,omitempty"`
}

// AnomalyRequest is the payload of detect_anomaly.
type AnomalyRequest struct {
	Metrics       map[string]any `json:"metrics"`
	Baseline      map[string]any `json:"baseline,omitempty"`
	Threshold     *float64       `json:"threshold,omitempty"`
	DetectionType string         `json:"detection_type,omitempty"`
}

// DiagnosisRequest is the payload of diagnose_system.
type DiagnosisRequest struct {
	SystemInfo map[string]any `json:"system_info"`
	Symptoms   []string       `json:"symptoms"`
	Context    string         `json:"context,omitempty"`
}

// FaultDetectionService runs single, tool-less completions with an
// operations-expert prompt per action.
type FaultDetectionService struct {
	provider llm.Provider
	model    string
	logger   *slog.Logger
}

// NewFaultDetectionService creates the fault detection service.
func NewFaultDetectionService(provider llm.Provider, model string, logger *slog.Logger) *FaultDetectionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FaultDetectionService{
		provider: provider,
		model:    model,
		logger:   logger.With(slog.String("service", FaultServiceName)),
	}
}

// Name returns "fault_detection".
func (s *FaultDetectionService) Name() string { return FaultServiceName }

// ListActions returns the supported actions.
func (s *FaultDetectionService) ListActions() []string {
	return []string{"analyze_logs", "detect_anomaly", "diagnose_system"}
}

// Process dispatches on req.Action.
func (s *FaultDetectionService) Process(ctx context.Context, req Request) Response {
	switch req.Action {
	case "analyze_logs":
		return s.analyzeLogs(ctx, req)
	case "detect_anomaly":
		return s.detectAnomaly(ctx, req)
	case "diagnose_system":
		return s.diagnoseSystem(ctx, req)
	default:
		return Failure(FaultServiceName, req, "unsupported action: %s", req.Action)
	}
}

func (s *FaultDetectionService) analyzeLogs(ctx context.Context, req Request) Response {
	var in LogAnalysisRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return Failure(FaultServiceName, req, "%s", err.Error())
	}
	if len(in.Logs) == 0 {
		return Failure(FaultServiceName, req, "logs must not be empty")
	}
	if in.LogType == "" {
		in.LogType = "application"
	}

	logs := in.Logs
	if len(logs) > maxLogLines {
		logs = logs[:maxLogLines]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Log type: %s\n", in.LogType)
	if in.TimeRange != "" {
		fmt.Fprintf(&b, "Time range: %s\n", in.TimeRange)
	}
	if in.SeverityFilter != "" {
		fmt.Fprintf(&b, "Severity filter: %s\n", in.SeverityFilter)
	}
	fmt.Fprintf(&b, "\nLogs (%d lines):\n%s", len(logs), strings.Join(logs, "\n"))

	start := time.Now()
	resp, err := s.complete(ctx, logAnalysisPrompt, b.String())
	if err != nil {
		return Failure(FaultServiceName, req, "log analysis failed: %s", err.Error())
	}
	return Success(FaultServiceName, req, map[string]any{
		"analysis_result": resp.Content,
		"log_count":       len(in.Logs),
		"log_type":        in.LogType,
		"model":           s.modelOf(resp),
		"processing_time": time.Since(start).Seconds(),
	})
}

func (s *FaultDetectionService) detectAnomaly(ctx context.Context, req Request) Response {
	var in AnomalyRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return Failure(FaultServiceName, req, "%s", err.Error())
	}
	if len(in.Metrics) == 0 {
		return Failure(FaultServiceName, req, "metrics must not be empty")
	}
	threshold := 0.8
	if in.Threshold != nil {
		threshold = *in.Threshold
	}
	if in.DetectionType == "" {
		in.DetectionType = "statistical"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Detection type: %s\nThreshold: %g\n\nCurrent metrics:\n%s", in.DetectionType, threshold, formatMetrics(in.Metrics))
	if len(in.Baseline) > 0 {
		fmt.Fprintf(&b, "\nBaseline:\n%s", formatMetrics(in.Baseline))
	}

	resp, err := s.complete(ctx, anomalyDetectionPrompt, b.String())
	if err != nil {
		return Failure(FaultServiceName, req, "anomaly detection failed: %s", err.Error())
	}
	return Success(FaultServiceName, req, map[string]any{
		"anomaly_analysis": resp.Content,
		"metrics_count":    len(in.Metrics),
		"detection_type":   in.DetectionType,
		"threshold":        threshold,
		"model":            s.modelOf(resp),
	})
}

func (s *FaultDetectionService) diagnoseSystem(ctx context.Context, req Request) Response {
	var in DiagnosisRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return Failure(FaultServiceName, req, "%s", err.Error())
	}
	if len(in.SystemInfo) == 0 || len(in.Symptoms) == 0 {
		return Failure(FaultServiceName, req, "system_info and symptoms are required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "System information:\n%s\nSymptoms:\n", formatMetrics(in.SystemInfo))
	for _, sym := range in.Symptoms {
		fmt.Fprintf(&b, "- %s\n", sym)
	}
	if in.Context != "" {
		fmt.Fprintf(&b, "\nAdditional context:\n%s\n", in.Context)
	}

	resp, err := s.complete(ctx, systemDiagnosisPrompt, b.String())
	if err != nil {
		return Failure(FaultServiceName, req, "system diagnosis failed: %s", err.Error())
	}
	return Success(FaultServiceName, req, map[string]any{
		"diagnosis_result": resp.Content,
		"symptoms_count":   len(in.Symptoms),
		"system_metrics":   sortedKeys(in.SystemInfo),
		"model":            s.modelOf(resp),
	})
}

func (s *FaultDetectionService) complete(ctx context.Context, system, user string) (*llm.CompletionResponse, error) {
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{llm.SystemMessage(system), llm.UserMessage(user)},
		Model:    s.model,
	})
	if err != nil {
		s.logger.Warn("completion failed", slog.Any("error", err))
		return nil, err
	}
	return resp, nil
}

func (s *FaultDetectionService) modelOf(resp *llm.CompletionResponse) string {
	if resp.Model != "" {
		return resp.Model
	}
	return s.model
}

// HealthCheck reports the completion endpoint health.
func (s *FaultDetectionService) HealthCheck(ctx context.Context) HealthStatus {
	err := checkProvider(ctx, s.provider)
	status := HealthStatus{
		Healthy:     err == nil,
		ServiceName: FaultServiceName,
		Timestamp:   time.Now(),
		Details: map[string]any{
			"model":             s.model,
			"llm_connected":     err == nil,
			"supported_actions": s.ListActions(),
		},
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// formatMetrics renders one "key: value" line per entry in key order.
// List and map values are JSON encoded and truncated.
func formatMetrics(m map[string]any) string {
	var b strings.Builder
	for _, k := range sortedKeys(m) {
		v := m[k]
		var text string
		switch v.(type) {
		case []any, map[string]any:
			raw, err := json.Marshal(v)
			if err != nil {
				text = fmt.Sprint(v)
			} else {
				text = string(raw)
			}
			if len(text) > maxValueLen {
				text = text[:maxValueLen] + "..."
			}
		default:
			text = fmt.Sprint(v)
		}
		fmt.Fprintf(&b, "%s: %s\n", k, text)
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
