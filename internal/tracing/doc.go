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
Package tracing wires OpenTelemetry into lumipilot.

A Provider owns the SDK tracer provider (optionally exporting spans to
stdout or an OTLP collector) and a meter provider whose instruments are
exported in Prometheus format next to the promauto metrics registered by
the mcp and agent packages.

	p, err := tracing.NewProvider(ctx, cfg)
	if err != nil {
	    return err
	}
	defer p.Shutdown(context.Background())

	provider := tracing.WrapProvider(openai, p.Tracer("lumipilot/llm"), p.Metrics())
	mux.Handle("/metrics", p.MetricsHandler())

Spans produced by the stack:

  - agent.run, one per conversation
  - agent.complete, one per round
  - llm.complete, around each provider call
  - mcp.invoke, around each tool call
*/
package tracing
