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

package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transition struct {
	event    string
	from, to ConnectionState
}

func TestStateMachine_HappyPath(t *testing.T) {
	var seen []transition
	m := newStateMachine(func(event string, from, to ConnectionState) {
		seen = append(seen, transition{event, from, to})
	})
	assert.Equal(t, StateDisconnected, m.current())

	for _, ev := range []string{eventOpen, eventOpened, eventDegrade, eventRecover, eventClose} {
		require.NoError(t, m.fire(ev), ev)
	}

	assert.Equal(t, []transition{
		{eventOpen, StateDisconnected, StateConnecting},
		{eventOpened, StateConnecting, StateReady},
		{eventDegrade, StateReady, StateDegraded},
		{eventRecover, StateDegraded, StateReady},
		{eventClose, StateReady, StateClosed},
	}, seen)
}

func TestStateMachine_FailedOpenCloses(t *testing.T) {
	m := newStateMachine(nil)
	require.NoError(t, m.fire(eventOpen))
	require.NoError(t, m.fire(eventFail))
	assert.Equal(t, StateClosed, m.current())
}

func TestStateMachine_CloseFromEveryLiveState(t *testing.T) {
	paths := map[ConnectionState][]string{
		StateDisconnected: nil,
		StateConnecting:   {eventOpen},
		StateReady:        {eventOpen, eventOpened},
		StateDegraded:     {eventOpen, eventOpened, eventDegrade},
	}

	for state, path := range paths {
		t.Run(string(state), func(t *testing.T) {
			m := newStateMachine(nil)
			for _, ev := range path {
				require.NoError(t, m.fire(ev))
			}
			require.Equal(t, state, m.current())
			require.NoError(t, m.fire(eventClose))
			assert.Equal(t, StateClosed, m.current())
		})
	}
}

func TestStateMachine_ClosedIsTerminal(t *testing.T) {
	m := newStateMachine(nil)
	require.NoError(t, m.fire(eventClose))

	for _, ev := range []string{eventOpen, eventOpened, eventFail, eventDegrade, eventRecover, eventClose} {
		assert.Error(t, m.fire(ev), ev)
		assert.Equal(t, StateClosed, m.current())
	}
}

func TestStateMachine_RejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []string
		event string
	}{
		{"ready before connecting", nil, eventOpened},
		{"degrade while connecting", []string{eventOpen}, eventDegrade},
		{"recover while ready", []string{eventOpen, eventOpened}, eventRecover},
		{"open twice", []string{eventOpen}, eventOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newStateMachine(nil)
			for _, ev := range tt.path {
				require.NoError(t, m.fire(ev))
			}
			before := m.current()
			assert.Error(t, m.fire(tt.event))
			assert.Equal(t, before, m.current())
		})
	}
}
