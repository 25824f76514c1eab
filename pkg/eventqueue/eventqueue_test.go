/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package eventqueue_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/eventqueue"
)

type fakeClock struct {
	now clock.Time
}

func (fc *fakeClock) Now() clock.Time   { return fc.now }
func (fc *fakeClock) StepCount() uint64 { return 0 }

var _ = Describe("EventQueue", func() {
	var (
		fc    *fakeClock
		queue *eventqueue.EventQueue
		ran   []string
	)

	record := func(name string) func() {
		return func() { ran = append(ran, name) }
	}

	drain := func() {
		for !queue.IsEmpty() {
			event := queue.TakeNext()
			fc.now = event.Time
			event.Action()
		}
	}

	BeforeEach(func() {
		fc = &fakeClock{now: 10}
		queue = eventqueue.New(fc)
		ran = nil
	})

	It("orders by time, then by insertion", func() {
		queue.Add(30, "c", record("c"))
		queue.Add(20, "a", record("a"))
		queue.Add(30, "d", record("d"))
		queue.Add(20, "b", record("b"))
		Expect(queue.Len()).To(Equal(4))
		Expect(queue.NextTime()).To(Equal(clock.Time(20)))

		drain()
		Expect(ran).To(Equal([]string{"a", "b", "c", "d"}))
	})

	It("refuses to modify the past", func() {
		Expect(func() { queue.Add(9, "late", record("late")) }).To(Panic())
		queue.Add(10, "now", record("now"))
		Expect(queue.Len()).To(Equal(1))
	})

	It("panics when taking from an empty queue", func() {
		Expect(func() { queue.TakeNext() }).To(Panic())
		Expect(func() { queue.NextTime() }).To(Panic())
	})

	It("discards everything on clear", func() {
		queue.Add(11, "a", record("a"))
		queue.Add(12, "b", record("b"))
		queue.Clear()
		Expect(queue.IsEmpty()).To(BeTrue())
		Expect(queue.Status()).To(Equal("Empty EventQueue"))
	})

	It("never reuses sequence numbers", func() {
		first := queue.Add(11, "a", record("a"))
		queue.Clear()
		second := queue.Add(11, "b", record("b"))
		Expect(second.Seq).To(BeNumerically(">", first.Seq))
	})

	Describe("rescheduling overdue events", func() {
		It("moves them to now behind events already due, keeping their order", func() {
			queue.Add(15, "overdue-2", record("overdue-2"))
			queue.Add(12, "overdue-1", record("overdue-1"))
			queue.Add(15, "overdue-3", record("overdue-3"))
			queue.Add(40, "due", record("due"))
			queue.Add(50, "future", record("future"))

			fc.now = 40
			Expect(queue.RescheduleOverdue(40)).To(Equal(3))
			Expect(queue.NextTime()).To(Equal(clock.Time(40)))

			var times []clock.Time
			for !queue.IsEmpty() {
				event := queue.TakeNext()
				times = append(times, event.Time)
				event.Action()
			}
			Expect(ran).To(Equal([]string{"due", "overdue-1", "overdue-2", "overdue-3", "future"}))
			Expect(times).To(Equal([]clock.Time{40, 40, 40, 40, 50}))
		})

		It("leaves the queue alone when nothing is overdue", func() {
			queue.Add(20, "a", record("a"))
			Expect(queue.RescheduleOverdue(20)).To(Equal(0))
		})
	})

	It("summarizes pending events in order", func() {
		queue.Add(12, "second", record("second"))
		queue.Add(11, "first", record("first"))
		Expect(queue.Status()).To(Equal(
			"[time=11 seq=2] first\n[time=12 seq=1] second\n\nCompleted event queue summary of 2 events\n",
		))
	})
})
