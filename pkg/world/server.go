/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package world

import (
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/eventqueue"
	"github.com/hyperledger-labs/mirsim/pkg/fiber"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/memory"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/storage"
)

// frameSize is charged to the arena of an actor for every pending callback.
const frameSize = 48

// maxPrologue bounds the random delay before a client program starts.
const maxPrologue = 50

// Server is a simulated process.  Servers and clients own a transport and
// a pair of clocks, the adversary only runs its program.
type Server struct {
	world   *World
	index   int
	name    string
	pool    string
	kind    Kind
	program Program

	state    State
	terminal bool

	queue     *eventqueue.EventQueue
	arena     *memory.Arena
	transport *net.Transport
	wall      *clock.WallClock
	mono      *clock.MonotonicClock
	db        *storage.Database

	fibers     *fiber.Manager
	runtime    *Runtime
	generation uint64
	logger     logging.Logger
}

func newServer(w *World, index int, name, pool string, kind Kind, program Program) *Server {
	s := &Server{
		world:   w,
		index:   index,
		name:    name,
		pool:    pool,
		kind:    kind,
		program: program,
		queue:   eventqueue.New(w),
		arena:   memory.NewArena(index+1, w.arenaSize),
		wall:    clock.NewWallClock(w, w.model),
		mono:    clock.NewMonotonicClock(w, w.model),
	}
	s.logger = w.loggerFor(name, "Engine")
	if kind != KindAdversary {
		s.transport = w.network.AddHost(name, s, serverHeap{s})
	}
	return s
}

func (s *Server) Name() string {
	return s.name
}

func (s *Server) Kind() Kind {
	return s.kind
}

func (s *Server) Pool() string {
	return s.pool
}

func (s *Server) State() State {
	return s.state
}

// Generation counts the starts of the server.
func (s *Server) Generation() uint64 {
	return s.generation
}

// BytesAllocated is the high-water mark of the server's arena.
func (s *Server) BytesAllocated() uint64 {
	return s.arena.BytesAllocated()
}

// Pending is the number of callbacks in the event queue.
func (s *Server) Pending() int {
	return s.queue.Len()
}

func (s *Server) Arena() *memory.Arena {
	return s.arena
}

func (s *Server) Transport() *net.Transport {
	return s.transport
}

func (s *Server) IsRunnable() bool {
	return s.state == StateRunning && !s.queue.IsEmpty()
}

func (s *Server) NextStepTime() clock.Time {
	return s.queue.NextTime()
}

// Step executes the earliest pending callback with the server's arena
// active.
func (s *Server) Step() {
	if s.state != StateRunning {
		panic(fmt.Sprintf("stepping %s in state %s", s.name, s.state))
	}

	w := s.world
	event := s.queue.TakeNext()

	release := w.scope.Enter(s.arena)
	defer release()

	prev := w.current
	w.current = s
	defer func() { w.current = prev }()

	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(*StepError); ok {
				panic(se)
			}
			panic(&StepError{
				Actor: s.name,
				Time:  w.now,
				Step:  w.steps,
				Cause: r,
			})
		}
	}()

	event.Action()
}

// At schedules action on the server's queue.  The closure frame lives in
// the server's arena so a crash reclaims it with the queue.  Nothing may be
// scheduled on a crashed server, callers drop work for dead hosts and
// earlier generations themselves.
func (s *Server) At(t clock.Time, tag string, action func()) {
	if s.state == StateCrashed {
		panic(fmt.Sprintf("%s scheduled %q at %d after it crashed", s.name, tag, t))
	}
	frame := s.arena.Allocate(frameSize)
	s.queue.Add(t, tag, func() {
		s.arena.Free(frame)
		action()
	})
}

func (s *Server) start() {
	if s.terminal {
		panic(fmt.Sprintf("%s was shut down and cannot be started", s.name))
	}
	if s.state != StateInitial && s.state != StateCrashed {
		panic(fmt.Sprintf("%s cannot start in state %s", s.name, s.state))
	}

	s.generation++
	s.wall.Reset()
	s.mono.Reset()
	if s.transport != nil {
		s.transport.Start()
	}
	s.state = StateRunning

	gen := s.generation
	s.fibers = fiber.NewManager(generationScheduler{server: s, generation: gen})
	s.runtime = newRuntime(s, gen)

	rt := s.runtime
	run := func() {
		s.fibers.Go("main", func() { s.program(rt) })
	}

	var delay clock.Duration
	if s.kind == KindClient {
		delay = clock.Duration(s.world.rand.Int63n(maxPrologue))
	}
	s.logger.Log(logging.LevelInfo, "starting", "generation", gen, "prologue", delay)
	if delay == 0 {
		run()
		return
	}
	s.At(s.world.now.Add(delay), "prologue", run)
}

// Pause stops the server from taking steps.  Callbacks keep accumulating.
func (s *Server) Pause() {
	if s.state != StateRunning {
		panic(fmt.Sprintf("%s cannot pause in state %s", s.name, s.state))
	}
	s.state = StatePaused
	s.logger.Log(logging.LevelInfo, "paused")
}

// Resume lets a paused server take steps again.  Callbacks which fell due
// while paused run at the resume time, in their original order.
func (s *Server) Resume() {
	if s.state != StatePaused {
		panic(fmt.Sprintf("%s cannot resume in state %s", s.name, s.state))
	}
	s.state = StateRunning
	overdue := s.queue.RescheduleOverdue(s.world.now)
	s.logger.Log(logging.LevelInfo, "resumed", "overdue", overdue)
}

// Crash kills the server.  Endpoints, pending callbacks, fibers and the
// arena are lost, the database is kept.  Crashing a crashed server does
// nothing.  A server crashed before the world started stays down until it
// is rebooted.
func (s *Server) Crash() {
	if s.state == StateCrashed {
		return
	}
	if s.state == StateInitial {
		s.state = StateCrashed
		s.logger.Log(logging.LevelInfo, "crashed before starting")
		return
	}
	if s.world.current == s {
		panic(fmt.Sprintf("%s attempted to crash itself", s.name))
	}

	s.runtime.revoke()
	if s.transport != nil {
		s.transport.Reset()
	}
	s.fibers.Kill()
	s.queue.Clear()
	s.arena.Reset()
	s.state = StateCrashed
	s.logger.Log(logging.LevelInfo, "crashed", "generation", s.generation)
}

// Reboot crashes the server and starts it again.
func (s *Server) Reboot() {
	s.Crash()
	s.start()
}

// Shutdown crashes the server for good.
func (s *Server) Shutdown() {
	s.Crash()
	s.terminal = true
}

// AdjustWallClock resamples the offset of the wall clock.
func (s *Server) AdjustWallClock() {
	if s.state == StateCrashed {
		return
	}
	s.wall.AdjustOffset()
	s.logger.Log(logging.LevelDebug, "adjusted wall clock", "offset", s.wall.Offset())
}

func (s *Server) database() *storage.Database {
	if s.db == nil {
		db, err := storage.Open(s.world.storageLogger)
		if err != nil {
			panic(fmt.Sprintf("could not open database of %s: %s", s.name, err))
		}
		s.db = db
	}
	return s.db
}

// generationScheduler schedules continuations for one generation of a
// server, continuations of earlier generations are dropped.
type generationScheduler struct {
	server     *Server
	generation uint64
}

func (gs generationScheduler) Schedule(tag string, action func()) {
	s := gs.server
	if s.generation != gs.generation || s.state == StateCrashed {
		s.logger.Log(logging.LevelDebug, "dropping continuation of earlier generation", "tag", tag, "generation", gs.generation)
		return
	}
	s.At(s.world.now, tag, action)
}

// serverHeap hands out receive buffers from the server's arena.
type serverHeap struct {
	server *Server
}

func (sh serverHeap) Allocate(n int) memory.Block {
	return sh.server.arena.Allocate(n)
}

func (sh serverHeap) Free(b memory.Block) {
	sh.server.arena.Free(b)
}
