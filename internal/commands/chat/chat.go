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

// Package chat implements 'lumipilot chat'.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/lumipilot/internal/commands/shared"
	"github.com/tombee/lumipilot/internal/service"
	"github.com/tombee/lumipilot/pkg/agent"
	"github.com/tombee/lumipilot/pkg/llm"
)

// Output is the JSON form of one answered message.
type Output struct {
	shared.JSONResponse
	Answer          string                 `json:"answer"`
	Model           string                 `json:"model,omitempty"`
	Rounds          int                    `json:"rounds"`
	Exhausted       bool                   `json:"exhausted"`
	ToolCalls       []agent.ToolCallRecord `json:"tool_calls,omitempty"`
	Usage           llm.TokenUsage         `json:"usage"`
	Duration        float64                `json:"duration"`
	RegistryVersion uint64                 `json:"registry_version"`
	Error           string                 `json:"error,omitempty"`
}

type options struct {
	temperature float64
	maxTokens   int
}

// NewCommand creates the chat command.
func NewCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the assistant a question",
		Long: `Send one message and print the answer. The assistant may call tools from
the configured MCP servers before answering.

With no message, chat reads one message per line from stdin until EOF or
"exit". Each line is an independent conversation.`,
		Example: `  lumipilot chat "what's 2+2, use the calculator tool"
  lumipilot chat --json "what time is it?"
  echo "hello" | lumipilot chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature for this request")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Response token limit for this request")
	return cmd
}

func run(cmd *cobra.Command, args []string, opts options) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shared.Bootstrap(ctx, shared.BootstrapOptions{Completion: true, LogOutput: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = app.Close(closeCtx)
	}()

	var runOpts []agent.RunOption
	if cmd.Flags().Changed("temperature") {
		runOpts = append(runOpts, agent.WithTemperature(opts.temperature))
	}
	if cmd.Flags().Changed("max-tokens") {
		runOpts = append(runOpts, agent.WithMaxTokens(opts.maxTokens))
	}

	if len(args) > 0 {
		return Ask(ctx, cmd.OutOrStdout(), app.Orchestrator, strings.Join(args, " "), runOpts...)
	}
	return Loop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), app.Orchestrator, runOpts...)
}

// Ask answers one message and prints the result.
func Ask(ctx context.Context, w io.Writer, conv service.Conversation, message string, opts ...agent.RunOption) error {
	if strings.TrimSpace(message) == "" {
		return shared.NewExecutionError("message must not be empty", nil)
	}

	res, err := conv.Run(ctx, message, opts...)
	if shared.GetJSON() {
		out := toOutput(res, err)
		if emitErr := shared.EmitJSON(w, out); emitErr != nil {
			return emitErr
		}
	} else if err == nil {
		printResult(w, res)
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

// Loop answers one message per input line.
func Loop(ctx context.Context, r io.Reader, w io.Writer, conv service.Conversation, opts ...agent.RunOption) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if !shared.GetJSON() && !shared.GetQuiet() {
			fmt.Fprint(w, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := Ask(ctx, w, conv, line, opts...); err != nil {
			if ctx.Err() != nil {
				return err
			}
			shared.PrintError(w, err)
		}
	}
}

func printResult(w io.Writer, res *agent.Result) {
	fmt.Fprintln(w, res.Answer)
	if shared.GetQuiet() {
		return
	}

	if shared.GetVerbose() {
		for _, tc := range res.ToolCalls {
			status := "ok"
			if !tc.Success {
				status = "failed: " + tc.Error
			}
			fmt.Fprintf(w, "  [round %d] %s %s (%s)\n", tc.Round, tc.Tool, status, tc.Duration.Round(time.Millisecond))
		}
	}

	meta := fmt.Sprintf("%d round(s), %d tool call(s), %s", res.Rounds, len(res.ToolCalls), res.Duration.Round(time.Millisecond))
	if res.Model != "" {
		meta = res.Model + ", " + meta
	}
	if res.Exhausted {
		meta += ", round limit reached"
	}
	fmt.Fprintf(w, "\n(%s)\n", meta)
}

func toOutput(res *agent.Result, err error) Output {
	out := Output{JSONResponse: shared.NewJSONResponse("chat", err == nil)}
	if res != nil {
		out.Answer = res.Answer
		out.Model = res.Model
		out.Rounds = res.Rounds
		out.Exhausted = res.Exhausted
		out.ToolCalls = res.ToolCalls
		out.Usage = res.Usage
		out.Duration = res.Duration.Seconds()
		out.RegistryVersion = res.RegistryVersion
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func classify(err error) error {
	var completion *llm.CompletionError
	if errors.As(err, &completion) {
		return shared.NewProviderError("completion failed", err)
	}
	return shared.NewExecutionError("conversation failed", err)
}
