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

package tracing

import (
	"time"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are exported. Metrics are always on.
	Enabled bool

	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// SampleRate is the fraction of root traces to record (0.0 - 1.0).
	SampleRate float64

	// Exporter selects where spans go.
	Exporter ExporterConfig

	// BatchInterval is how often to flush spans (default: 5s).
	BatchInterval time.Duration
}

// ExporterConfig defines a span export destination.
type ExporterConfig struct {
	// Type is "stdout", "otlp" (gRPC), "otlp-http" or "none".
	Type string

	// Endpoint is the OTLP receiver address, e.g. "localhost:4317".
	Endpoint string

	// Headers are sent with every export request.
	Headers map[string]string

	// Insecure disables TLS for OTLP exporters.
	Insecure bool

	// PrettyPrint formats stdout output for humans.
	PrettyPrint bool
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:        false, // Opt-in
		ServiceName:    "lumipilot",
		ServiceVersion: "unknown",
		SampleRate:     1.0,
		Exporter: ExporterConfig{
			Type: "none",
		},
		BatchInterval: 5 * time.Second,
	}
}
