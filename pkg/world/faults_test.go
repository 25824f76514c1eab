/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package world_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

var _ = Describe("Faults", func() {
	var (
		w        *world.World
		server   *world.Server
		retained *world.Runtime
		ticks    []clock.Time
	)

	BeforeEach(func() {
		w = newWorld(2)
		ticks = nil
		server = w.AddServer(func(rt *world.Runtime) {
			retained = rt
			rt.Heap().Allocate(512)
			for {
				rt.SleepFor(10)
				ticks = append(ticks, w.Now())
			}
		})
	})

	AfterEach(func() {
		w.Stop()
	})

	It("crashes and reboots servers", func() {
		w.SetAdversary(func(rt *world.Runtime) {
			rt.SleepFor(25)
			rt.Faults().Crash("Server-1")
			rt.SleepFor(25)
			rt.Faults().Reboot("Server-1")
		})
		w.Start()

		Expect(w.RunUntil(func() bool { return server.State() == world.StateCrashed }, 100, 0)).To(Equal(world.OutcomeCompleted))
		Expect(w.Now()).To(Equal(clock.Time(25)))
		Expect(server.BytesAllocated()).To(BeZero())
		Expect(server.Pending()).To(BeZero())
		Expect(server.Transport().IsUp()).To(BeFalse())
		Expect(func() { retained.Name() }).To(Panic())
		Expect(ticks).To(Equal([]clock.Time{10, 20}))

		first := retained
		Expect(w.RunUntil(func() bool { return server.Generation() == 2 }, 100, 0)).To(Equal(world.OutcomeCompleted))
		Expect(server.State()).To(Equal(world.StateRunning))
		Expect(w.Now()).To(Equal(clock.Time(50)))

		w.RunUntil(nil, 100, 75)
		Expect(retained).NotTo(BeIdenticalTo(first))
		Expect(retained.Config().Generation).To(Equal(uint64(2)))
		Expect(ticks).To(Equal([]clock.Time{10, 20, 60, 70}))
	})

	It("keeps databases across crashes", func() {
		w.SetAdversary(func(rt *world.Runtime) {
			rt.SleepFor(15)
			rt.Faults().Crash("Server-1")
		})
		w.Start()
		w.Step()
		Expect(w.Database("Server-1").Put("a", []byte("7"))).To(Succeed())

		w.RunUntil(nil, 100, 0)
		Expect(server.State()).To(Equal(world.StateCrashed))
		value, ok, err := w.Database("Server-1").Get("a")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal([]byte("7")))
	})

	It("pauses without executing in the past", func() {
		w.SetAdversary(func(rt *world.Runtime) {
			rt.SleepFor(15)
			rt.Faults().Pause("Server-1")
			rt.SleepFor(30)
			rt.Faults().Resume("Server-1")
		})
		w.Start()

		Expect(w.RunUntil(func() bool { return server.State() == world.StatePaused }, 100, 0)).To(Equal(world.OutcomeCompleted))
		w.RunUntil(nil, 100, 40)
		Expect(ticks).To(Equal([]clock.Time{10}))
		Expect(server.Pending()).To(Equal(1))

		w.RunUntil(nil, 100, 75)
		Expect(ticks).To(Equal([]clock.Time{10, 45, 55, 65, 75}))
	})

	It("adjusts wall clocks only", func() {
		var wall, mono []clock.Time
		w.AddServer(func(rt *world.Runtime) {
			for i := 0; i < 2; i++ {
				wall = append(wall, rt.WallTimeNow())
				mono = append(mono, rt.MonotonicNow())
				rt.SleepFor(10)
			}
		})
		w.SetAdversary(func(rt *world.Runtime) {
			rt.SleepFor(5)
			rt.Faults().AdjustWallClock("Server-2")
		})
		w.Start()
		w.RunUntil(nil, 100, 30)

		Expect(mono).To(Equal([]clock.Time{0, 10}))
		Expect(wall).To(HaveLen(2))
	})

	It("partitions the network", func() {
		w.MakePool("Replica", func(rt *world.Runtime) {
			rt.Transport().Serve(7, net.HandlerFuncs{})
		}, 3, "Replica-%d")
		w.SetAdversary(func(rt *world.Runtime) {
			rt.Faults().MakeStar([]string{"Replica-1", "Replica-2", "Replica-3"}, "Replica-1")
		})
		w.Start()
		w.MakeSteps(5)

		Expect(w.Network().PartitionedPairs()).To(Equal([]string{"Replica-2->Replica-3", "Replica-3->Replica-2"}))
	})

	It("only injects faults from steps of the adversary", func() {
		var faults *world.Faults
		w.SetAdversary(func(rt *world.Runtime) {
			faults = rt.Faults()
		})
		w.Start()
		w.RunUntil(func() bool { return faults != nil }, 10, 0)

		Expect(func() { faults.Crash("Server-1") }).To(Panic())
		Expect(server.State()).To(Equal(world.StateRunning))
	})

	It("refuses faults to anybody but the adversary", func() {
		var err interface{}
		w.AddServer(func(rt *world.Runtime) {
			defer func() { err = recover() }()
			rt.Faults()
		})
		w.Start()
		w.RunUntil(nil, 10, 0)

		Expect(err).NotTo(BeNil())
	})
})
