/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package world

import (
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
)

// Kind is the variant of an actor.
type Kind int

const (
	KindServer Kind = iota
	KindClient
	KindAdversary
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "Server"
	case KindClient:
		return "Client"
	case KindAdversary:
		return "Adversary"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// State is the lifecycle state of an actor.
//
//	Initial -> Running <-> Paused
//	Running, Paused -> Crashed -> Running
//
// Shutdown leaves an actor Crashed for good.
type State int

const (
	StateInitial State = iota
	StateRunning
	StatePaused
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateCrashed:
		return "Crashed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Steppable is all the step loop knows about an actor.
type Steppable interface {
	Name() string
	IsRunnable() bool
	NextStepTime() clock.Time
	Step()
}

// Faultable is the set of faults the adversary may inject into an actor.
type Faultable interface {
	Name() string
	State() State
	Pause()
	Resume()
	Crash()
	Reboot()
	AdjustWallClock()
}

// Program is the entry point of an actor.  It is invoked in the main fiber
// of the actor each time the actor starts, and must rebuild all in-memory
// state from the services it is handed.
type Program func(rt *Runtime)
