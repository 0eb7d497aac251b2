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

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/lumipilot/internal/mcp"
	"github.com/tombee/lumipilot/pkg/llm"
)

const tracerName = "github.com/tombee/lumipilot/pkg/agent"

// errConversationBudget is the cancellation cause set when the
// conversation timeout fires.
var errConversationBudget = errors.New("conversation budget exceeded")

// ToolInvoker resolves and runs tools. *mcp.Manager satisfies it.
type ToolInvoker interface {
	// Registry returns the current immutable tool snapshot.
	Registry() *mcp.Snapshot

	// InvokeIn resolves name against snap and runs it. Failures are
	// reported inside the result, never as a Go error.
	InvokeIn(ctx context.Context, snap *mcp.Snapshot, name string, args map[string]any, timeout time.Duration) mcp.ToolCallResult
}

// Orchestrator drives the bounded completion/tool loop for one user
// message at a time. It holds no per-request state and is safe for
// concurrent use.
type Orchestrator struct {
	provider llm.Provider
	tools    ToolInvoker
	persona  Persona
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	history  *ContextManager
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured event sink.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider used for conversation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock overrides the time source used to render the persona.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator. tools may be nil, in which case the model
// is offered no tools.
func New(provider llm.Provider, tools ToolInvoker, persona Persona, cfg Config, opts ...Option) *Orchestrator {
	cfg = cfg.WithDefaults()
	o := &Orchestrator{
		provider: provider,
		tools:    tools,
		persona:  persona,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		history:  NewContextManager(cfg.TokenLimit),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(slog.String("component", "orchestrator"))
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Persona returns the persona shared by every conversation.
func (o *Orchestrator) Persona() Persona {
	return o.persona
}

// RunOption adjusts sampling for a single Run. The system instruction is
// not adjustable.
type RunOption func(*runSettings)

type runSettings struct {
	temperature *float64
	maxTokens   *int
}

// WithTemperature overrides the configured temperature for one Run.
func WithTemperature(t float64) RunOption {
	return func(s *runSettings) { s.temperature = &t }
}

// WithMaxTokens overrides the configured completion token limit for one Run.
func WithMaxTokens(n int) RunOption {
	return func(s *runSettings) {
		if n > 0 {
			s.maxTokens = &n
		}
	}
}

// ToolCallRecord is one executed tool call.
type ToolCallRecord struct {
	Round     int           `json:"round"`
	CallID    string        `json:"call_id"`
	Name      string        `json:"name"`
	Tool      string        `json:"tool"`
	Arguments string        `json:"arguments"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Result is the outcome of one conversation.
type Result struct {
	// Answer is the final answer, or ExhaustedAnswer (plus any partial
	// assistant text) when the round budget ran out.
	Answer string

	// Rounds is the number of completion calls made.
	Rounds int

	// Exhausted is true when MaxRounds was reached without a final answer.
	Exhausted bool

	ToolCalls  []ToolCallRecord
	Transcript []llm.Message
	Usage      llm.TokenUsage
	Model      string
	Duration   time.Duration

	// RegistryVersion identifies the tool snapshot the conversation used.
	RegistryVersion uint64

	exhausted *LoopExhaustedError
}

// Err returns the LoopExhaustedError for an exhausted conversation and
// nil otherwise.
func (r *Result) Err() error {
	if r == nil || r.exhausted == nil {
		return nil
	}
	return r.exhausted
}

// Run answers userMessage. Tool failures stay in the transcript for the
// model to handle. A completion failure returns the provider's
// *llm.CompletionError, exceeding the conversation timeout returns a
// *ConversationTimeoutError, and caller cancellation returns the context
// error. In each error case the partial Result is returned as well.
func (o *Orchestrator) Run(ctx context.Context, userMessage string, opts ...RunOption) (*Result, error) {
	start := time.Now()
	settings := runSettings{temperature: o.cfg.Temperature, maxTokens: o.cfg.MaxTokens}
	for _, opt := range opts {
		opt(&settings)
	}

	snap := mcp.EmptySnapshot()
	if o.tools != nil {
		if s := o.tools.Registry(); s != nil {
			snap = s
		}
	}
	toolSchema := buildToolSchema(snap)

	runCtx, cancel := context.WithTimeoutCause(ctx, o.cfg.ConversationTimeout, errConversationBudget)
	defer cancel()

	runCtx, span := o.tracer.Start(runCtx, "agent.run", trace.WithAttributes(
		attribute.Int("agent.max_rounds", o.cfg.MaxRounds),
		attribute.Int("agent.tools", len(toolSchema)),
		attribute.Int64("agent.registry_version", int64(snap.Version())),
	))
	defer span.End()

	result := &Result{
		RegistryVersion: snap.Version(),
		Transcript: []llm.Message{
			llm.SystemMessage(o.persona.SystemPrompt(o.now())),
			llm.UserMessage(userMessage),
		},
	}

	o.logger.Info("conversation started",
		slog.Int("tools", len(toolSchema)),
		slog.Uint64("registry_version", snap.Version()),
		slog.Int("max_rounds", o.cfg.MaxRounds),
	)

	finish := func(outcome string, err error) (*Result, error) {
		result.Duration = time.Since(start)
		conversationsTotal.WithLabelValues(outcome).Inc()
		conversationRounds.Observe(float64(result.Rounds))
		conversationDuration.Observe(result.Duration.Seconds())

		span.SetAttributes(
			attribute.String("agent.outcome", outcome),
			attribute.Int("agent.rounds", result.Rounds),
			attribute.Int("agent.tool_calls", len(result.ToolCalls)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.logger.Warn("conversation failed",
				slog.String("outcome", outcome),
				slog.Int("rounds", result.Rounds),
				slog.Duration("duration", result.Duration),
				slog.Any("error", err),
			)
		} else {
			o.logger.Info("conversation finished",
				slog.String("outcome", outcome),
				slog.Int("rounds", result.Rounds),
				slog.Int("tool_calls", len(result.ToolCalls)),
				slog.Duration("duration", result.Duration),
			)
		}
		return result, err
	}

	var lastContent string
	for round := 1; round <= o.cfg.MaxRounds; round++ {
		if err := o.interrupted(ctx, runCtx, result.Rounds); err != nil {
			return finish(outcomeFor(err), err)
		}
		result.Rounds = round

		resp, err := o.complete(runCtx, round, settings, result.Transcript, toolSchema)
		if err != nil {
			if ierr := o.interrupted(ctx, runCtx, round); ierr != nil {
				return finish(outcomeFor(ierr), ierr)
			}
			return finish("completion_error", err)
		}

		result.Usage.Add(resp.Usage)
		if resp.Model != "" {
			result.Model = resp.Model
		}
		if resp.Content != "" {
			lastContent = resp.Content
		}
		result.Transcript = append(result.Transcript, llm.AssistantMessage(resp.Content, resp.ToolCalls...))

		if len(resp.ToolCalls) == 0 {
			result.Answer = resp.Content
			return finish("answered", nil)
		}

		results, err := o.runTools(ctx, runCtx, snap, round, resp.ToolCalls)
		if err != nil {
			return finish(outcomeFor(err), err)
		}
		for i, call := range resp.ToolCalls {
			r := results[i]
			result.Transcript = append(result.Transcript, llm.ToolMessage(call.ID, call.Name, r.Content()))
			result.ToolCalls = append(result.ToolCalls, ToolCallRecord{
				Round:     round,
				CallID:    call.ID,
				Name:      call.Name,
				Tool:      r.Tool,
				Arguments: call.Arguments,
				Success:   r.Success,
				Error:     r.Error,
				Duration:  r.Duration,
			})
		}
	}

	result.Exhausted = true
	result.exhausted = &LoopExhaustedError{MaxRounds: o.cfg.MaxRounds, ToolCalls: len(result.ToolCalls)}
	result.Answer = ExhaustedAnswer
	if lastContent != "" {
		result.Answer += "\n\n" + lastContent
	}
	o.logger.Warn("tool loop exhausted", slog.Int("rounds", result.Rounds), slog.Int("tool_calls", len(result.ToolCalls)))
	return finish("exhausted", nil)
}

// interrupted reports why the conversation must stop, if it must.
func (o *Orchestrator) interrupted(parent, runCtx context.Context, rounds int) error {
	if runCtx.Err() == nil {
		return nil
	}
	if err := parent.Err(); err != nil {
		return fmt.Errorf("conversation cancelled: %w", err)
	}
	if errors.Is(context.Cause(runCtx), errConversationBudget) {
		return &ConversationTimeoutError{Timeout: o.cfg.ConversationTimeout, Rounds: rounds, Cause: context.DeadlineExceeded}
	}
	return runCtx.Err()
}

func outcomeFor(err error) string {
	var te *ConversationTimeoutError
	if errors.As(err, &te) {
		return "timeout"
	}
	return "cancelled"
}

func (o *Orchestrator) complete(ctx context.Context, round int, settings runSettings, transcript []llm.Message, tools []llm.Tool) (*llm.CompletionResponse, error) {
	ctx, span := o.tracer.Start(ctx, "agent.complete", trace.WithAttributes(
		attribute.Int("agent.round", round),
		attribute.String("llm.provider", o.provider.Name()),
	))
	defer span.End()

	// The transcript itself is append-only; only the copy sent is pruned.
	messages := transcript
	if o.history.ShouldPrune(messages) {
		messages = o.history.Prune(messages)
		o.logger.Debug("transcript pruned for completion",
			slog.Int("round", round),
			slog.Int("before", len(transcript)),
			slog.Int("after", len(messages)),
		)
	}

	req := llm.CompletionRequest{
		Messages:    messages,
		Model:       o.cfg.Model,
		Temperature: settings.temperature,
		MaxTokens:   settings.maxTokens,
		Tools:       tools,
	}

	o.logger.Debug("round started", slog.Int("round", round), slog.Int("messages", len(messages)))
	started := time.Now()
	resp, err := o.provider.Complete(ctx, req)
	elapsed := time.Since(started)
	completionLatency.WithLabelValues(o.provider.Name()).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tokensTotal.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
	tokensTotal.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))
	span.SetAttributes(
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
		attribute.Int("llm.tokens.input", resp.Usage.InputTokens),
		attribute.Int("llm.tokens.output", resp.Usage.OutputTokens),
	)
	o.logger.Debug("round completed",
		slog.Int("round", round),
		slog.Int("tool_calls", len(resp.ToolCalls)),
		slog.Duration("latency", elapsed),
	)
	return resp, nil
}

// runTools executes one round's tool calls and returns their results in
// request order. It waits for every call unless the conversation is
// cancelled or times out, in which case it returns at once, starts no
// further calls and leaves the dispatched ones to finish against their own
// timeout.
func (o *Orchestrator) runTools(parent, runCtx context.Context, snap *mcp.Snapshot, round int, calls []llm.ToolCall) ([]mcp.ToolCallResult, error) {
	results := make([]mcp.ToolCallResult, len(calls))
	// Dispatched calls outlive a cancelled conversation.
	callCtx := context.WithoutCancel(runCtx)

	done := make(chan struct{})
	if !o.cfg.SequentialTools {
		g := new(errgroup.Group)
		for i, call := range calls {
			g.Go(func() error {
				results[i] = o.invoke(callCtx, snap, round, call)
				return nil
			})
		}
		go func() {
			_ = g.Wait()
			close(done)
		}()
	} else {
		go func() {
			defer close(done)
			for i, call := range calls {
				if runCtx.Err() != nil {
					return
				}
				results[i] = o.invoke(callCtx, snap, round, call)
			}
		}()
	}

	select {
	case <-done:
		// A sequential run may have stopped early on cancellation.
		if err := o.interrupted(parent, runCtx, round); err != nil {
			return nil, err
		}
		return results, nil
	case <-runCtx.Done():
		return nil, o.interrupted(parent, runCtx, round)
	}
}

func (o *Orchestrator) invoke(ctx context.Context, snap *mcp.Snapshot, round int, call llm.ToolCall) mcp.ToolCallResult {
	var result mcp.ToolCallResult
	args, err := decodeArguments(call.Arguments)
	switch {
	case err != nil:
		ie := &mcp.InvocationError{
			Tool:    call.Name,
			Kind:    mcp.InvocationInvalidArguments,
			Message: err.Error(),
			Cause:   err,
		}
		result = mcp.ToolCallResult{Tool: call.Name, Error: ie.Error(), Err: ie}
	case o.tools == nil:
		re := &mcp.ResolutionError{Name: call.Name, Reason: "no tools are available"}
		result = mcp.ToolCallResult{Tool: call.Name, Error: re.Error(), Err: re}
	default:
		result = o.tools.InvokeIn(ctx, snap, call.Name, args, o.cfg.ToolTimeout)
	}
	result.CallID = call.ID

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	toolCallsTotal.WithLabelValues(outcome).Inc()
	o.logger.Info("tool call",
		slog.Int("round", round),
		slog.String("tool", result.Tool),
		slog.String("call_id", call.ID),
		slog.Bool("success", result.Success),
		slog.Int64("duration_ms", result.Duration.Milliseconds()),
	)
	return result
}

// decodeArguments parses a tool call's JSON arguments. Empty arguments
// mean no arguments.
func decodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// buildToolSchema describes every tool in snap under its wire name.
func buildToolSchema(snap *mcp.Snapshot) []llm.Tool {
	defs := snap.Tools()
	tools := make([]llm.Tool, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.InputSchema) > 0 {
			_ = json.Unmarshal(def.InputSchema, &schema)
		}
		tools = append(tools, llm.Tool{
			Name:        snap.WireName(def.QualifiedName),
			Description: def.Description,
			InputSchema: schema,
		})
	}
	return tools
}
