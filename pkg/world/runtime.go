/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package world

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/fiber"
	"github.com/hyperledger-labs/mirsim/pkg/future"
	"github.com/hyperledger-labs/mirsim/pkg/history"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/memory"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/rpc"
	"github.com/hyperledger-labs/mirsim/pkg/storage"
)

// NodeConfig describes the actor a program runs as.
type NodeConfig struct {
	Index      int
	Name       string
	Pool       string
	Kind       Kind
	Generation uint64
}

// Runtime is the bundle of services handed to a program.  It is bound to
// one generation of its actor, any use after the actor crashed panics.
type Runtime struct {
	server     *Server
	generation uint64
	revoked    bool
	trueTime   *clock.TrueTime
}

func newRuntime(s *Server, generation uint64) *Runtime {
	return &Runtime{
		server:     s,
		generation: generation,
		trueTime:   clock.NewTrueTime(s.world, s.world.model),
	}
}

func (rt *Runtime) revoke() {
	rt.revoked = true
}

func (rt *Runtime) check() *Server {
	if rt.revoked {
		panic(fmt.Sprintf("services of %s generation %d used after crash", rt.server.name, rt.generation))
	}
	return rt.server
}

func (rt *Runtime) Config() NodeConfig {
	s := rt.check()
	return NodeConfig{
		Index:      s.index,
		Name:       s.name,
		Pool:       s.pool,
		Kind:       s.kind,
		Generation: rt.generation,
	}
}

// Name is the host name of the actor.
func (rt *Runtime) Name() string {
	return rt.check().name
}

func (rt *Runtime) WallTimeNow() clock.Time {
	return rt.check().wall.Now()
}

func (rt *Runtime) MonotonicNow() clock.Time {
	return rt.check().mono.Now()
}

// TrueTime returns the uncertainty interval around the current time.
func (rt *Runtime) TrueTime() *clock.TrueTime {
	rt.check()
	return rt.trueTime
}

// After completes once d has elapsed on the actor's monotonic clock.
func (rt *Runtime) After(d clock.Duration) future.Future[struct{}] {
	s := rt.check()
	f, p := future.NewContract[struct{}]()
	at := s.world.now.Add(s.mono.SleepOrTimeout(d))
	s.At(at, "timer", func() { p.Set(struct{}{}) })
	return f
}

// SleepFor suspends the running fiber for d local time units.
func (rt *Runtime) SleepFor(d clock.Duration) {
	Await(rt, rt.After(d))
}

func (rt *Runtime) RandomNumber() uint64 {
	rt.check()
	return rt.server.world.rand.Uint64()
}

// RandomRange returns a number in [lo, hi).
func (rt *Runtime) RandomRange(lo, hi int64) int64 {
	rt.check()
	if hi <= lo {
		panic(fmt.Sprintf("empty random range [%d, %d)", lo, hi))
	}
	return lo + rt.server.world.rand.Int63n(hi-lo)
}

func (rt *Runtime) Either() bool {
	rt.check()
	return rt.server.world.rand.Intn(2) == 0
}

// Intn returns a number in [0, n).
func (rt *Runtime) Intn(n int) int {
	rt.check()
	return rt.server.world.rand.Intn(n)
}

// NewGUID draws a version 4 UUID from the seeded random source.
func (rt *Runtime) NewGUID() string {
	rt.check()
	id, err := uuid.NewRandomFromReader(rt.server.world.rand)
	if err != nil {
		panic(fmt.Sprintf("could not draw a guid: %s", err))
	}
	return id.String()
}

// Database is the persistent store of the actor, it survives crashes.
func (rt *Runtime) Database() *storage.Database {
	s := rt.check()
	if s.kind == KindAdversary {
		panic("the adversary has no database")
	}
	return s.database()
}

func (rt *Runtime) Transport() *net.Transport {
	s := rt.check()
	if s.transport == nil {
		panic(fmt.Sprintf("%s has no transport", s.name))
	}
	return s.transport
}

// Serve starts an RPC server on port.  Every request runs in a fiber of
// its own.
func (rt *Runtime) Serve(port uint16, services ...*rpc.Service) *rpc.Server {
	server := rpc.NewServer(rt.Transport(), rt, rt.Logger("RPC"))
	for _, service := range services {
		server.Register(service)
	}
	server.Start(port)
	return server
}

// Dial opens a channel to the RPC server at peer.
func (rt *Runtime) Dial(peer net.Address) rpc.Channel {
	logger := rt.Logger("RPC")
	return rpc.WithLogging(
		rpc.Dial(rt.Transport(), rt, logging.Decorate(logger, "channel: ", "peer", peer), peer),
		logger,
	)
}

// History is the call history shared by all clients.
func (rt *Runtime) History() *history.Recorder {
	rt.check()
	return rt.server.world.history
}

// Discovery lists the hosts of pools.
func (rt *Runtime) Discovery() *Discovery {
	rt.check()
	return &Discovery{world: rt.server.world}
}

// Logger returns a logger whose records are attributed to the actor and
// the given component.
func (rt *Runtime) Logger(component string) logging.Logger {
	s := rt.check()
	return s.world.loggerFor(s.name, component)
}

// Go starts a fiber of the actor.
func (rt *Runtime) Go(name string, body func()) *fiber.Fiber {
	return rt.check().fibers.Go(name, body)
}

// Yield lets every step due at the current time run first.
func (rt *Runtime) Yield() {
	rt.check().fibers.Yield()
}

// Heap allocates from the arena of the actor.  It may only be used while
// the actor is stepping.
func (rt *Runtime) Heap() Heap {
	rt.check()
	return Heap{runtime: rt}
}

func (rt *Runtime) SetGlobal(key string, value interface{}) {
	rt.check().world.SetGlobal(key, value)
}

func (rt *Runtime) GetGlobal(key string) interface{} {
	return rt.check().world.GetGlobal(key)
}

func (rt *Runtime) Counter(name string) *Counter {
	return rt.check().world.counter(name)
}

// Faults is the fault injection interface, only the adversary has it.
func (rt *Runtime) Faults() *Faults {
	s := rt.check()
	if s.kind != KindAdversary {
		panic(fmt.Sprintf("%s is not the adversary", s.name))
	}
	return &Faults{world: s.world, runtime: rt}
}

// Await suspends the running fiber of the actor until f completes.
func Await[T any](rt *Runtime, f future.Future[T]) (T, error) {
	s := rt.check()
	value, err := fiber.Await(s.fibers, f)
	rt.check()
	return value, err
}

// Heap is an allocator over the arena of the stepping actor.
type Heap struct {
	runtime *Runtime
}

func (h Heap) active() *memory.Arena {
	s := h.runtime.check()
	if s.world.scope.Current() != s.arena {
		panic(fmt.Sprintf("heap of %s used outside of its steps", s.name))
	}
	return s.arena
}

func (h Heap) Allocate(n int) memory.Block {
	return h.active().Allocate(n)
}

func (h Heap) Free(b memory.Block) {
	h.active().Free(b)
}

// Discovery resolves pools to host names.
type Discovery struct {
	world *World
}

// ListPool returns the hosts of the pool in registration order.
func (d *Discovery) ListPool(pool string) []string {
	var hosts []string
	for _, s := range d.world.pools[pool] {
		hosts = append(hosts, s.name)
	}
	return hosts
}

func (d *Discovery) Pools() []string {
	return append([]string(nil), d.world.poolOrder...)
}
