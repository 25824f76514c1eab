/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package history records the logical operations clients issue against the
// system under test and checks the resulting history for linearizability.
package history

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
)

type Status int

const (
	// StatusPending calls have started but not returned yet.
	StatusPending Status = iota

	// StatusCompleted calls returned a response.
	StatusCompleted

	// StatusLost calls may or may not have taken effect, their caller gave
	// up waiting or crashed.
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusLost:
		return "lost"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type Call struct {
	ID     uint64
	Client string
	Method string
	Input  []byte
	Output []byte
	Err    string
	Start  clock.Time
	End    clock.Time
	Status Status
}

func (c *Call) String() string {
	switch c.Status {
	case StatusCompleted:
		if c.Err != "" {
			return fmt.Sprintf("[%d, %d] %s %s(%s) -> error %s", c.Start, c.End, c.Client, c.Method, c.Input, c.Err)
		}
		return fmt.Sprintf("[%d, %d] %s %s(%s) -> %s", c.Start, c.End, c.Client, c.Method, c.Input, c.Output)
	default:
		return fmt.Sprintf("[%d, ?] %s %s(%s) %s", c.Start, c.Client, c.Method, c.Input, c.Status)
	}
}

// Recorder collects calls in the order they started.
type Recorder struct {
	clock  clock.Source
	nextID uint64
	calls  map[uint64]*Call
}

func NewRecorder(source clock.Source) *Recorder {
	return &Recorder{
		clock: source,
		calls: map[uint64]*Call{},
	}
}

func (r *Recorder) CallStarted(client, method string, input []byte) uint64 {
	r.nextID++
	r.calls[r.nextID] = &Call{
		ID:     r.nextID,
		Client: client,
		Method: method,
		Input:  slices.Clone(input),
		Start:  r.clock.Now(),
	}
	return r.nextID
}

func (r *Recorder) CallCompleted(id uint64, output []byte, err error) {
	call := r.pending(id)
	call.Status = StatusCompleted
	call.End = r.clock.Now()
	call.Output = slices.Clone(output)
	if err != nil {
		call.Err = err.Error()
	}
}

// CallLost marks a call whose effect is unknown.
func (r *Recorder) CallLost(id uint64) {
	r.pending(id).Status = StatusLost
}

// RemoveCall forgets a call which certainly had no effect.
func (r *Recorder) RemoveCall(id uint64) {
	r.pending(id)
	delete(r.calls, id)
}

// Calls returns all recorded calls in the order they started.  Calls still
// pending are reported as lost.
func (r *Recorder) Calls() []Call {
	ids := maps.Keys(r.calls)
	slices.Sort(ids)

	result := make([]Call, 0, len(ids))
	for _, id := range ids {
		call := *r.calls[id]
		if call.Status == StatusPending {
			call.Status = StatusLost
		}
		result = append(result, call)
	}
	return result
}

func (r *Recorder) NumCompleted() int {
	count := 0
	for _, call := range r.calls {
		if call.Status == StatusCompleted {
			count++
		}
	}
	return count
}

func (r *Recorder) pending(id uint64) *Call {
	call, ok := r.calls[id]
	if !ok {
		panic(fmt.Sprintf("unknown call %d", id))
	}
	if call.Status != StatusPending {
		panic(fmt.Sprintf("call %d already %s", id, call.Status))
	}
	return call
}
