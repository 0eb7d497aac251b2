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
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateReady        ConnectionState = "ready"
	StateDegraded     ConnectionState = "degraded"
	StateClosed       ConnectionState = "closed"
)

// State machine events.
const (
	eventOpen    = "open"
	eventOpened  = "opened"
	eventFail    = "fail"
	eventDegrade = "degrade"
	eventRecover = "recover"
	eventClose   = "close"
)

// transitionFunc observes every completed state change.
type transitionFunc func(event string, from, to ConnectionState)

// stateMachine guards a connection's lifecycle:
//
//	disconnected -open-> connecting -opened-> ready -degrade-> degraded -recover-> ready
//	connecting -fail-> closed
//	any non-closed state -close-> closed
//
// closed is terminal.
type stateMachine struct {
	fsm *fsm.FSM
}

func newStateMachine(onTransition transitionFunc) *stateMachine {
	callbacks := fsm.Callbacks{}
	if onTransition != nil {
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			onTransition(e.Event, ConnectionState(e.Src), ConnectionState(e.Dst))
		}
	}

	live := []string{
		string(StateDisconnected),
		string(StateConnecting),
		string(StateReady),
		string(StateDegraded),
	}

	return &stateMachine{
		fsm: fsm.NewFSM(
			string(StateDisconnected),
			fsm.Events{
				{Name: eventOpen, Src: []string{string(StateDisconnected)}, Dst: string(StateConnecting)},
				{Name: eventOpened, Src: []string{string(StateConnecting)}, Dst: string(StateReady)},
				{Name: eventFail, Src: []string{string(StateConnecting)}, Dst: string(StateClosed)},
				{Name: eventDegrade, Src: []string{string(StateReady)}, Dst: string(StateDegraded)},
				{Name: eventRecover, Src: []string{string(StateDegraded)}, Dst: string(StateReady)},
				{Name: eventClose, Src: live, Dst: string(StateClosed)},
			},
			callbacks,
		),
	}
}

// fire applies event. Transitions run on a background context so that a
// cancelled caller can never leave the machine half-way through a change.
func (m *stateMachine) fire(event string) error {
	err := m.fsm.Event(context.Background(), event)
	var noop fsm.NoTransitionError
	if errors.As(err, &noop) && noop.Err == nil {
		return nil
	}
	return err
}

func (m *stateMachine) current() ConnectionState {
	return ConnectionState(m.fsm.Current())
}
