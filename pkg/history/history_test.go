/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package history_test

import (
	"fmt"

	"github.com/anishathalye/porcupine"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/history"
)

type fakeClock struct {
	now clock.Time
}

func (fc *fakeClock) Now() clock.Time   { return fc.now }
func (fc *fakeClock) StepCount() uint64 { return 0 }

// registerModel is a single register, written with "Write" and read with
// "Read", values are the raw bytes.
var registerModel = porcupine.Model{
	Init: func() interface{} { return "" },
	Step: func(state, input, output interface{}) (bool, interface{}) {
		call := input.(*history.Call)
		switch call.Method {
		case "Write":
			return true, string(call.Input)
		case "Read":
			if call.Status != history.StatusCompleted {
				return true, state
			}
			return string(call.Output) == state.(string), state
		default:
			panic(fmt.Sprintf("unexpected method %s", call.Method))
		}
	},
	Equal: func(a, b interface{}) bool { return a == b },
}

var _ = Describe("Recorder", func() {
	var (
		fc  *fakeClock
		rec *history.Recorder
	)

	at := func(t clock.Time) { fc.now = t }

	BeforeEach(func() {
		fc = &fakeClock{}
		rec = history.NewRecorder(fc)
	})

	It("records calls in start order", func() {
		at(1)
		w := rec.CallStarted("Client-1", "Write", []byte("x"))
		at(2)
		r := rec.CallStarted("Client-2", "Read", nil)
		at(5)
		rec.CallCompleted(r, []byte(""), nil)
		at(6)
		rec.CallCompleted(w, nil, nil)

		calls := rec.Calls()
		Expect(calls).To(HaveLen(2))
		Expect(calls[0].Method).To(Equal("Write"))
		Expect(calls[0].Start).To(Equal(clock.Time(1)))
		Expect(calls[0].End).To(Equal(clock.Time(6)))
		Expect(calls[1].Status).To(Equal(history.StatusCompleted))
		Expect(rec.NumCompleted()).To(Equal(2))
		Expect(calls[0].String()).To(Equal("[1, 6] Client-1 Write(x) -> "))
	})

	It("reports pending calls as lost and forgets removed ones", func() {
		rec.CallStarted("Client-1", "Write", []byte("a"))
		removed := rec.CallStarted("Client-1", "Write", []byte("b"))
		rec.RemoveCall(removed)

		calls := rec.Calls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Status).To(Equal(history.StatusLost))
		Expect(rec.NumCompleted()).To(Equal(0))
	})

	It("refuses to complete a call twice", func() {
		id := rec.CallStarted("Client-1", "Read", nil)
		rec.CallCompleted(id, nil, fmt.Errorf("failed"))
		Expect(rec.Calls()[0].Err).To(Equal("failed"))
		Expect(func() { rec.CallLost(id) }).To(Panic())
	})

	Describe("linearizability", func() {
		It("accepts overlapping operations which can be ordered", func() {
			at(1)
			w := rec.CallStarted("Client-1", "Write", []byte("x"))
			at(2)
			r := rec.CallStarted("Client-2", "Read", nil)
			at(3)
			rec.CallCompleted(r, []byte("x"), nil)
			at(4)
			rec.CallCompleted(w, nil, nil)

			Expect(history.IsLinearizable(registerModel, rec.Calls())).To(BeTrue())
		})

		It("rejects stale reads", func() {
			at(1)
			w := rec.CallStarted("Client-1", "Write", []byte("x"))
			at(2)
			rec.CallCompleted(w, nil, nil)
			at(3)
			r := rec.CallStarted("Client-2", "Read", nil)
			at(4)
			rec.CallCompleted(r, []byte(""), nil)

			Expect(history.IsLinearizable(registerModel, rec.Calls())).To(BeFalse())
		})

		It("lets lost writes take effect late", func() {
			at(1)
			rec.CallStarted("Client-1", "Write", []byte("y"))
			at(10)
			r := rec.CallStarted("Client-2", "Read", nil)
			at(11)
			rec.CallCompleted(r, []byte("y"), nil)

			Expect(history.IsLinearizable(registerModel, rec.Calls())).To(BeTrue())
		})
	})
})
