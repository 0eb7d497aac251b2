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

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/lumipilot/internal/commands/shared"
	"github.com/tombee/lumipilot/internal/log"
	"github.com/tombee/lumipilot/pkg/agent"
	"github.com/tombee/lumipilot/pkg/llm"
	"github.com/tombee/lumipilot/pkg/llm/llmtest"
)

func newOrchestrator(provider llm.Provider) *agent.Orchestrator {
	return agent.New(provider, nil, agent.DefaultPersona(), agent.DefaultConfig(), agent.WithLogger(log.Discard()))
}

func TestAsk_PrintsAnswerAndMetadata(t *testing.T) {
	orch := newOrchestrator(llmtest.NewScriptedProvider(llmtest.Reply("4")))

	var buf bytes.Buffer
	require.NoError(t, Ask(context.Background(), &buf, orch, "what's 2+2?"))
	assert.True(t, strings.HasPrefix(buf.String(), "4\n"))
	assert.Contains(t, buf.String(), "1 round(s), 0 tool call(s)")
}

func TestAsk_JSON(t *testing.T) {
	shared.SetJSONForTest(true)
	defer shared.SetJSONForTest(false)

	orch := newOrchestrator(llmtest.NewScriptedProvider(llmtest.Reply("hello")))

	var buf bytes.Buffer
	require.NoError(t, Ask(context.Background(), &buf, orch, "hi"))

	var out Output
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "chat", out.Command)
	assert.Equal(t, "hello", out.Answer)
	assert.Equal(t, 1, out.Rounds)
}

func TestAsk_ProviderFailureExitCode(t *testing.T) {
	cause := llm.NewCompletionError("openai", 401, "invalid api key", nil)
	orch := newOrchestrator(llmtest.NewScriptedProvider(llmtest.Fail(cause)))

	err := Ask(context.Background(), &bytes.Buffer{}, orch, "hi")
	require.Error(t, err)
	assert.Equal(t, shared.ExitProviderError, shared.ExitCode(err))
}

func TestAsk_EmptyMessage(t *testing.T) {
	err := Ask(context.Background(), &bytes.Buffer{}, newOrchestrator(llmtest.NewScriptedProvider()), "  ")
	assert.Equal(t, shared.ExitFailed, shared.ExitCode(err))
}

func TestLoop(t *testing.T) {
	provider := llmtest.NewScriptedProvider(llmtest.Reply("first"), llmtest.Reply("second"))
	orch := newOrchestrator(provider)

	in := strings.NewReader("one\n\ntwo\nexit\nthree\n")
	var out bytes.Buffer
	require.NoError(t, Loop(context.Background(), in, &out, orch))

	assert.Contains(t, out.String(), "first")
	assert.Contains(t, out.String(), "second")
	assert.Equal(t, 2, provider.Calls(), "input after exit is ignored")
}

func TestLoop_ContinuesAfterFailure(t *testing.T) {
	provider := llmtest.NewScriptedProvider(
		llmtest.Fail(llm.NewCompletionError("openai", 400, "bad request", nil)),
		llmtest.Reply("recovered"),
	)
	var out bytes.Buffer
	require.NoError(t, Loop(context.Background(), strings.NewReader("a\nb\n"), &out, newOrchestrator(provider)))

	assert.Contains(t, out.String(), "Error:")
	assert.Contains(t, out.String(), "recovered")
}
