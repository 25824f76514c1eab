/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package world_test

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/future"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

var _ = Describe("World", func() {
	var w *world.World

	BeforeEach(func() {
		w = newWorld(1)
	})

	AfterEach(func() {
		if len(w.Actors()) > 0 {
			func() {
				defer func() { recover() }()
				w.Stop()
			}()
		}
	})

	It("merges the steps of all actors in time order", func() {
		var steps trace
		program := func(rt *world.Runtime) {
			for i := 0; i < 3; i++ {
				rt.SleepFor(10)
				steps.add(rt.Name(), w.Now())
			}
		}
		w.AddServer(program)
		w.AddServer(program)
		w.Start()

		Expect(w.RunUntil(nil, 0, 0)).To(Equal(world.OutcomeDeadlock))
		Expect(steps).To(Equal(trace{
			"Server-1@10", "Server-2@10",
			"Server-1@20", "Server-2@20",
			"Server-1@30", "Server-2@30",
		}))
	})

	It("never steps backwards in time", func() {
		last := map[string]clock.Time{}
		regressions := 0
		program := func(rt *world.Runtime) {
			for i := 0; i < 20; i++ {
				rt.SleepFor(clock.Duration(rt.RandomRange(1, 30)))
				if w.Now() < last[rt.Name()] {
					regressions++
				}
				last[rt.Name()] = w.Now()
			}
		}
		w.AddServers(3, program)
		w.AddClient(program)
		w.Start()

		Expect(w.RunUntil(nil, 0, 0)).To(Equal(world.OutcomeDeadlock))
		Expect(last).To(HaveLen(4))
		Expect(regressions).To(BeZero())
	})

	It("starts clients after a prologue", func() {
		var started clock.Time = -1
		w.AddClient(func(rt *world.Runtime) {
			started = w.Now()
		})
		w.Start()
		w.RunUntil(nil, 0, 0)

		Expect(started).To(BeNumerically(">=", 0))
		Expect(started).To(BeNumerically("<", 50))
	})

	It("rejects registrations after the start", func() {
		w.AddServer(sleeper(10))
		w.Start()

		Expect(func() { w.AddServer(sleeper(10)) }).To(Panic())
		Expect(func() { w.AddClient(sleeper(10)) }).To(Panic())
		Expect(func() { w.SetAdversary(sleeper(10)) }).To(Panic())
	})

	It("names servers by pool", func() {
		var listed []string
		w.MakePool("KV", func(rt *world.Runtime) {
			listed = rt.Discovery().ListPool("KV")
		}, 3, "KV-%d")
		w.AddServer(sleeper(100))
		w.Start()
		w.MakeSteps(3)

		Expect(listed).To(Equal([]string{"KV-1", "KV-2", "KV-3"}))
		_, ok := w.Server("Server-1")
		Expect(ok).To(BeTrue())
	})

	It("wraps panics of steps with their context", func() {
		w.AddServer(sleeper(10))
		w.AddServer(func(rt *world.Runtime) {
			rt.SleepFor(15)
			panic("boom")
		})
		w.Start()

		se := stepError(w)
		Expect(se).NotTo(BeNil())
		Expect(se.Actor).To(Equal("Server-2"))
		Expect(se.Time).To(Equal(clock.Time(15)))
		Expect(se.Error()).To(ContainSubstring("boom"))
	})

	It("fails the step which schedules on a crashed server", func() {
		crashed := w.AddServer(sleeper(10))
		w.SetAdversary(func(rt *world.Runtime) {
			rt.SleepFor(15)
			rt.Faults().Crash("Server-1")
			crashed.At(w.Now(), "late", func() {})
		})
		w.Start()

		se := stepError(w)
		Expect(se).NotTo(BeNil())
		Expect(se.Actor).To(Equal("Adversary"))
		Expect(se.Time).To(Equal(clock.Time(15)))
		Expect(se.Error()).To(ContainSubstring(`Server-1 scheduled "late" at 15 after it crashed`))
		Expect(func() { crashed.At(w.Now(), "later", func() {}) }).To(Panic())
	})

	It("keeps servers crashed before the start down until rebooted", func() {
		var ticks []clock.Time
		down := w.AddServer(func(rt *world.Runtime) {
			for {
				rt.SleepFor(10)
				ticks = append(ticks, w.Now())
			}
		})
		w.AddServer(sleeper(10))
		down.Crash()
		Expect(down.State()).To(Equal(world.StateCrashed))
		w.Start()

		w.RunUntil(nil, 0, 30)
		Expect(down.State()).To(Equal(world.StateCrashed))
		Expect(down.Generation()).To(BeZero())
		Expect(ticks).To(BeEmpty())

		down.Reboot()
		w.RunUntil(nil, 0, 50)
		Expect(down.State()).To(Equal(world.StateRunning))
		Expect(down.Generation()).To(Equal(uint64(1)))
		Expect(ticks).To(Equal([]clock.Time{40, 50}))
	})

	It("ends runs at the time limit", func() {
		w.AddServer(sleeper(10))
		w.Start()

		Expect(w.RunUntil(nil, 0, 95)).To(Equal(world.OutcomeTimeLimitExceeded))
		Expect(w.Now()).To(Equal(clock.Time(90)))
	})

	It("ends runs when the condition holds", func() {
		w.AddServer(func(rt *world.Runtime) {
			for {
				rt.SleepFor(10)
				rt.Counter("ticks").Increment()
			}
		})
		w.InitCounter("ticks", 0)
		w.Start()

		Expect(w.RunUntil(func() bool { return w.GetCounter("ticks") == 4 }, 1000, 0)).To(Equal(world.OutcomeCompleted))
		Expect(w.Now()).To(Equal(clock.Time(40)))
	})

	It("shares globals", func() {
		w.SetGlobal("greeting", "hello")
		var seen interface{}
		w.AddServer(func(rt *world.Runtime) {
			seen = rt.GetGlobal("greeting")
			rt.SetGlobal("reply", "hi")
		})
		w.Start()
		w.RunUntil(nil, 0, 0)

		Expect(seen).To(Equal("hello"))
		Expect(w.GetGlobal("reply")).To(Equal("hi"))
		Expect(w.GetGlobal("missing")).To(BeNil())
	})

	It("draws guids from the seed", func() {
		guids := func() []string {
			w := newWorld(5)
			var ids []string
			w.AddServer(func(rt *world.Runtime) {
				ids = append(ids, rt.NewGUID(), rt.NewGUID())
			})
			w.Start()
			w.RunUntil(nil, 0, 0)
			w.Stop()
			return ids
		}
		first := guids()
		Expect(first).To(HaveLen(2))
		Expect(first[0]).NotTo(Equal(first[1]))
		Expect(guids()).To(Equal(first))
	})

	It("delivers packets between servers", func() {
		var received []string
		w.AddServer(func(rt *world.Runtime) {
			rt.Transport().Serve(7, net.HandlerFuncs{
				OnPacket: func(e *net.Endpoint, p *net.Packet) {
					received = append(received, string(p.Payload))
					e.Reply(p, p.Payload)
				},
			})
		})
		var echoed string
		w.AddServer(func(rt *world.Runtime) {
			f, p := future.NewContract[string]()
			e := rt.Transport().ConnectTo(net.Address{Host: "Server-1", Port: 7}, net.HandlerFuncs{
				OnPacket: func(e *net.Endpoint, packet *net.Packet) {
					p.Set(string(packet.Payload))
				},
			})
			rt.SleepFor(5)
			e.Send([]byte("ping"))
			echoed, _ = world.Await(rt, f)
		})
		w.Start()

		Expect(w.RunUntil(nil, 0, 0)).To(Equal(world.OutcomeDeadlock))
		Expect(received).To(Equal([]string{"ping"}))
		Expect(echoed).To(Equal("ping"))
		Expect(w.Now()).To(Equal(clock.Time(25)))

		var deliveries []string
		for _, e := range w.EventLog().Entries() {
			if e.Component == "Network" && strings.HasPrefix(e.Message, "delivered packet") {
				deliveries = append(deliveries, fmt.Sprintf("%s@%d", e.Actor, int64(e.Time)))
			}
		}
		Expect(deliveries).To(Equal([]string{"Server-1@15", "Server-2@25"}))
	})

	It("logs resets of packets to unbound ports", func() {
		w.AddServer(func(rt *world.Runtime) {})
		w.AddServer(func(rt *world.Runtime) {
			e := rt.Transport().ConnectTo(net.Address{Host: "Server-1", Port: 9}, net.HandlerFuncs{})
			e.Send([]byte("ping"))
		})
		w.Start()
		w.RunUntil(nil, 0, 0)

		var resets []string
		for _, e := range w.EventLog().Entries() {
			if e.Component == "Network" && strings.HasPrefix(e.Message, "resetting packet") {
				resets = append(resets, fmt.Sprintf("%s@%d", e.Actor, int64(e.Time)))
			}
		}
		Expect(resets).To(Equal([]string{"Server-1@10"}))
	})

	It("isolates arenas and logs per actor", func() {
		w.AddServer(func(rt *world.Runtime) {
			rt.Heap().Allocate(1000)
			rt.Logger("App").Log(logging.LevelInfo, "allocated")
		})
		w.AddServer(func(rt *world.Runtime) {})
		w.Start()
		w.RunUntil(nil, 0, 0)

		s1, _ := w.Server("Server-1")
		s2, _ := w.Server("Server-2")
		Expect(s1.BytesAllocated()).To(BeNumerically(">", s2.BytesAllocated()))

		var app []string
		for _, e := range w.EventLog().Entries() {
			if e.Component == "App" {
				app = append(app, e.Actor+" "+e.Message)
			}
		}
		Expect(app).To(Equal([]string{"Server-1 allocated"}))
	})

	It("only lets a stepping actor use its heap", func() {
		var retained *world.Runtime
		w.AddServer(func(rt *world.Runtime) {
			retained = rt
			rt.SleepFor(100)
		})
		w.Start()
		w.Step()

		Expect(func() { retained.Heap().Allocate(8) }).To(Panic())
	})

	Describe("stopping", func() {
		It("produces the same digest and log for the same seed", func() {
			run := func(seed int64) (uint64, []string) {
				w := world.New(world.Options{Seed: seed})
				w.AddServers(3, func(rt *world.Runtime) {
					rt.Transport().Serve(7, net.HandlerFuncs{
						OnPacket: func(e *net.Endpoint, p *net.Packet) {
							rt.Heap().Allocate(len(p.Payload))
							e.Reply(p, p.Payload)
						},
					})
					Expect(rt.Database().Put(rt.NewGUID(), []byte(rt.Name()))).To(Succeed())
				})
				w.AddClient(func(rt *world.Runtime) {
					for i := 0; i < 10; i++ {
						peer := rt.Discovery().ListPool(world.DefaultServerPool)[rt.Intn(3)]
						e := rt.Transport().ConnectTo(net.Address{Host: peer, Port: 7}, net.HandlerFuncs{})
						e.Send([]byte(strings.Repeat("x", rt.Intn(100)+1)))
						rt.SleepFor(clock.Duration(rt.RandomRange(1, 40)))
					}
				})
				w.Start()
				Expect(w.RunUntil(nil, 0, 0)).To(Equal(world.OutcomeDeadlock))
				digest := w.Stop()

				var log []string
				for _, e := range w.EventLog().Entries() {
					log = append(log, e.String())
				}
				return digest, log
			}

			digest, log := run(42)
			Expect(digest).NotTo(BeZero())
			again, againLog := run(42)
			Expect(again).To(Equal(digest))
			Expect(againLog).To(Equal(log))
		})

		It("shuts down all actors and freezes the log", func() {
			w.AddServers(2, sleeper(10))
			w.Start()
			w.MakeSteps(10)
			digest := w.Stop()

			for _, s := range w.Actors() {
				Expect(s.State()).To(Equal(world.StateCrashed))
			}
			Expect(w.EventLog().Frozen()).To(BeTrue())
			Expect(w.Stop()).To(Equal(digest))
		})

		It("leaves crashed actors out of the digest", func() {
			digest := func(crash bool) uint64 {
				w := newWorld(3)
				w.AddServer(sleeper(10))
				w.AddServer(sleeper(10))
				if crash {
					w.SetAdversary(func(rt *world.Runtime) {
						rt.Faults().Crash("Server-2")
					})
				}
				w.Start()
				w.RunUntil(nil, 20, 0)
				return w.Stop()
			}
			Expect(digest(true)).NotTo(Equal(digest(false)))
		})
	})
})
