/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package eventqueue holds the pending callbacks of a single actor.
package eventqueue

import (
	"bytes"
	"container/heap"
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
)

// Event is a callback scheduled for execution at a point in virtual time.
type Event struct {
	Time clock.Time

	// Seq is assigned on insertion and breaks ties between events scheduled
	// for the same time.
	Seq uint64

	// Tag describes the event in queue dumps.
	Tag string

	Action func()
}

type events []*Event

func (e events) Len() int { return len(e) }

func (e events) Less(i, j int) bool {
	if e[i].Time != e[j].Time {
		return e[i].Time < e[j].Time
	}
	return e[i].Seq < e[j].Seq
}

func (e events) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

func (e *events) Push(x interface{}) { *e = append(*e, x.(*Event)) }

func (e *events) Pop() interface{} {
	old := *e
	last := old[len(old)-1]
	old[len(old)-1] = nil
	*e = old[:len(old)-1]
	return last
}

// EventQueue orders events by time, then by insertion order.  Sequence
// numbers never repeat within a queue, not even across Clear, so the order
// never depends on anything but the order of insertion.
type EventQueue struct {
	clock  clock.Source
	events events
	seq    uint64
}

func New(source clock.Source) *EventQueue {
	return &EventQueue{
		clock: source,
	}
}

// Add schedules action at time t, which must not lie in the past.
func (q *EventQueue) Add(t clock.Time, tag string, action func()) *Event {
	if now := q.clock.Now(); t < now {
		panic(fmt.Sprintf("attempted to modify the past: scheduling %q at %d, now is %d", tag, t, now))
	}

	q.seq++
	event := &Event{
		Time:   t,
		Seq:    q.seq,
		Tag:    tag,
		Action: action,
	}
	heap.Push(&q.events, event)
	return event
}

func (q *EventQueue) IsEmpty() bool {
	return len(q.events) == 0
}

func (q *EventQueue) Len() int {
	return len(q.events)
}

// NextTime is the time of the earliest event, the queue must not be empty.
func (q *EventQueue) NextTime() clock.Time {
	if q.IsEmpty() {
		panic("next time of empty event queue")
	}
	return q.events[0].Time
}

// TakeNext removes and returns the earliest event.
func (q *EventQueue) TakeNext() *Event {
	if q.IsEmpty() {
		panic("take from empty event queue")
	}
	return heap.Pop(&q.events).(*Event)
}

// Clear discards all pending events.
func (q *EventQueue) Clear() {
	q.events = nil
}

// RescheduleOverdue moves every event scheduled before now to now.  The
// moved events keep their relative order and receive fresh sequence numbers,
// so they run after the events which were already scheduled for exactly now.
func (q *EventQueue) RescheduleOverdue(now clock.Time) int {
	var overdue []*Event
	for !q.IsEmpty() && q.events[0].Time < now {
		overdue = append(overdue, heap.Pop(&q.events).(*Event))
	}

	for _, event := range overdue {
		q.seq++
		event.Time = now
		event.Seq = q.seq
		heap.Push(&q.events, event)
	}

	return len(overdue)
}

// Status renders the pending events in execution order, for diagnosis.
func (q *EventQueue) Status() string {
	count := len(q.events)
	if count == 0 {
		return "Empty EventQueue"
	}

	sorted := make(events, count)
	copy(sorted, q.events)
	var buf bytes.Buffer
	for i := 0; i < 50 && len(sorted) > 0; i++ {
		event := heap.Pop(&sorted).(*Event)
		fmt.Fprintf(&buf, "[time=%d seq=%d] %s\n", event.Time, event.Seq, event.Tag)
	}

	if count > 50 {
		fmt.Fprintf(&buf, "\n ... skipping %d entries ... \n", count-50)
		return buf.String()
	}

	fmt.Fprintf(&buf, "\nCompleted event queue summary of %d events\n", count)
	return buf.String()
}
