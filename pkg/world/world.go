/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package world runs simulated processes in deterministic order.
//
// A World owns a set of actors, each with its own event queue and arena.
// Every step it picks the runnable actor with the earliest pending
// callback, ties going to the actor registered first, advances the virtual
// clock to the callback's deadline and runs it with the actor's arena
// active.  Nothing in a run depends on anything but the seed.
package world

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/eventlog"
	"github.com/hyperledger-labs/mirsim/pkg/history"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/memory"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/storage"
)

const (
	DefaultServerPool = "Server"
	DefaultClientPool = "Client"
)

// Options parameterize a World.  Only the seed is mandatory.
type Options struct {
	Seed      int64
	TimeModel clock.ModelParams

	// ArenaSize is the size of every actor's arena, memory.DefaultSize
	// when zero.
	ArenaSize uint64

	// Console mirrors the event log, at the level it filters on.
	Console logging.Logger

	// Sinks receive every entry of the event log.
	Sinks []eventlog.Sink

	// StorageLogger receives the logs of the storage engine.  They are
	// produced off the step loop and never enter the event log.
	StorageLogger logging.Logger
}

// Outcome is how a run ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeDeadlock
	OutcomeTimeLimitExceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "Completed"
	case OutcomeDeadlock:
		return "Deadlock"
	case OutcomeTimeLimitExceeded:
		return "TimeLimitExceeded"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

type World struct {
	seed      int64
	rand      *rand.Rand
	model     clock.TimeModel
	arenaSize uint64

	now   clock.Time
	steps uint64

	started bool
	stopped bool
	digest  uint64

	actors           []*Server
	byName           map[string]*Server
	pools            map[string][]*Server
	poolOrder        []string
	adversary        *Server
	adversaryProgram Program
	steppables       []Steppable
	current          *Server

	arena   *memory.Arena
	scope   memory.Scope
	network *net.Network
	history *history.Recorder
	log     eventlog.Log
	console logging.Logger
	logger  logging.Logger

	storageLogger logging.Logger

	globals  map[string]interface{}
	counters map[string]*Counter
}

// New creates a world whose every random choice derives from
// opts.Seed.
func New(opts Options) *World {
	params := opts.TimeModel
	if params == (clock.ModelParams{}) {
		params = clock.DefaultModelParams
	}
	if err := params.Validate(); err != nil {
		panic(fmt.Sprintf("invalid time model: %s", err))
	}

	storageLogger := opts.StorageLogger
	if storageLogger == nil {
		storageLogger = logging.NilLogger
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	w := &World{
		seed:          opts.Seed,
		rand:          rng,
		model:         clock.NewRandomModel(rng, params),
		arenaSize:     opts.ArenaSize,
		byName:        map[string]*Server{},
		pools:         map[string][]*Server{},
		console:       opts.Console,
		storageLogger: logging.Synchronize(storageLogger),
		globals:       map[string]interface{}{},
		counters:      map[string]*Counter{},
	}
	w.arena = memory.NewArena(0, opts.ArenaSize)
	for _, sink := range opts.Sinks {
		w.log.AddSink(sink)
	}
	w.logger = w.loggerFor("World", "World")
	w.network = net.New(w, w.model, rng, w.loggerFor("", "Network"))
	w.history = history.NewRecorder(w)
	return w
}

// Now is the global virtual time.
func (w *World) Now() clock.Time {
	return w.now
}

// StepCount is the number of steps taken.
func (w *World) StepCount() uint64 {
	return w.steps
}

// TimeElapsed is the virtual time which passed since the start.
func (w *World) TimeElapsed() clock.Duration {
	return w.now.Sub(0)
}

func (w *World) Seed() int64 {
	return w.seed
}

func (w *World) Network() *net.Network {
	return w.network
}

func (w *World) History() *history.Recorder {
	return w.history
}

// NumCompletedCalls is the number of calls recorded as completed.
func (w *World) NumCompletedCalls() int {
	return w.history.NumCompleted()
}

func (w *World) EventLog() *eventlog.Log {
	return &w.log
}

// Logger logs on behalf of the world, e.g. from a driver.
func (w *World) Logger() logging.Logger {
	return w.logger
}

// Server looks up an actor by name.
func (w *World) Server(name string) (*Server, bool) {
	s, ok := w.byName[name]
	return s, ok
}

// Actors returns all actors in registration order, the adversary last.
func (w *World) Actors() []*Server {
	return append([]*Server(nil), w.actors...)
}

// Database returns the persistent store of a server as seen from outside
// of the simulation.  It survives crashes of the server.
func (w *World) Database(name string) *storage.Database {
	s, ok := w.byName[name]
	if !ok || s.kind == KindAdversary {
		panic(fmt.Sprintf("no server named %q", name))
	}
	return s.database()
}

func (w *World) checkConfigurable(op string) {
	if w.started {
		panic(fmt.Sprintf("%s after the world started", op))
	}
}

func (w *World) register(name, pool string, kind Kind, program Program) *Server {
	if _, ok := w.byName[name]; ok {
		panic(fmt.Sprintf("actor %q registered twice", name))
	}
	s := newServer(w, len(w.actors), name, pool, kind, program)
	w.actors = append(w.actors, s)
	w.byName[name] = s
	if pool != "" {
		if _, ok := w.pools[pool]; !ok {
			w.poolOrder = append(w.poolOrder, pool)
		}
		w.pools[pool] = append(w.pools[pool], s)
	}
	return s
}

func (w *World) nextName(pool string) string {
	return fmt.Sprintf("%s-%d", pool, len(w.pools[pool])+1)
}

// AddServer registers a server in the default pool.
func (w *World) AddServer(program Program) *Server {
	w.checkConfigurable("adding a server")
	return w.register(w.nextName(DefaultServerPool), DefaultServerPool, KindServer, program)
}

// AddServers registers n servers in the default pool.
func (w *World) AddServers(n int, program Program) []*Server {
	servers := make([]*Server, n)
	for i := range servers {
		servers[i] = w.AddServer(program)
	}
	return servers
}

// AddClient registers a client.  Clients start after a random prologue.
func (w *World) AddClient(program Program) *Server {
	w.checkConfigurable("adding a client")
	return w.register(w.nextName(DefaultClientPool), DefaultClientPool, KindClient, program)
}

// MakePool registers size servers in the named pool.  nameTemplate is
// formatted with the one-based index in the pool.
func (w *World) MakePool(pool string, program Program, size int, nameTemplate string) []*Server {
	w.checkConfigurable("making a pool")
	if pool == "" {
		panic("pools must be named")
	}
	servers := make([]*Server, size)
	for i := range servers {
		name := fmt.Sprintf(nameTemplate, len(w.pools[pool])+1)
		servers[i] = w.register(name, pool, KindServer, program)
	}
	return servers
}

// SetAdversary installs the program injecting faults.  It runs as an
// actor of its own, stepped after all others on ties.
func (w *World) SetAdversary(program Program) {
	w.checkConfigurable("setting the adversary")
	if w.adversaryProgram != nil {
		panic("adversary set twice")
	}
	w.adversaryProgram = program
}

// SetGlobal makes a value visible to all actors.
func (w *World) SetGlobal(key string, value interface{}) {
	w.globals[key] = value
}

// GetGlobal returns nil for unknown keys.
func (w *World) GetGlobal(key string) interface{} {
	return w.globals[key]
}

// Counter is a named progress counter shared by all actors.
type Counter struct {
	value int64
}

func (c *Counter) Increment() {
	c.value++
}

func (c *Counter) Add(n int64) {
	c.value += n
}

func (c *Counter) Value() int64 {
	return c.value
}

func (w *World) counter(name string) *Counter {
	c, ok := w.counters[name]
	if !ok {
		c = &Counter{}
		w.counters[name] = c
	}
	return c
}

func (w *World) InitCounter(name string, value int64) {
	w.counter(name).value = value
}

func (w *World) GetCounter(name string) int64 {
	return w.counter(name).value
}

// Start starts every actor in registration order, except those crashed
// beforehand.
func (w *World) Start() {
	w.checkConfigurable("starting")
	w.started = true

	if w.adversaryProgram != nil {
		w.adversary = w.register("Adversary", "", KindAdversary, w.adversaryProgram)
	}
	for _, s := range w.actors {
		w.steppables = append(w.steppables, s)
	}

	w.logger.Log(logging.LevelInfo, "starting world", "seed", w.seed, "actors", len(w.actors))
	for _, s := range w.actors {
		if s.state == StateInitial {
			s.start()
		}
	}
}

// Step runs the earliest pending callback of all runnable actors.  It
// returns false when no actor is runnable.
func (w *World) Step() bool {
	if !w.started || w.stopped {
		panic("stepping a world which is not running")
	}

	var next Steppable
	var nextTime clock.Time
	for _, a := range w.steppables {
		if !a.IsRunnable() {
			continue
		}
		if t := a.NextStepTime(); next == nil || t < nextTime {
			next, nextTime = a, t
		}
	}
	if next == nil {
		return false
	}

	if nextTime < w.now {
		panic(fmt.Sprintf("%s has a step at %s in the past of %s", next.Name(), nextTime, w.now))
	}
	w.now = nextTime
	w.steps++
	next.Step()
	return true
}

// MakeSteps runs n steps, it returns false if the world deadlocked first.
func (w *World) MakeSteps(n int) bool {
	for i := 0; i < n; i++ {
		if !w.Step() {
			return false
		}
	}
	return true
}

// RunUntil steps until done returns true or maxSteps steps were taken,
// whichever comes first.  A step due after timeLimit is not taken.  Zero
// limits are ignored.
func (w *World) RunUntil(done func() bool, maxSteps uint64, timeLimit clock.Time) Outcome {
	for taken := uint64(0); maxSteps == 0 || taken < maxSteps; taken++ {
		if done != nil && done() {
			return OutcomeCompleted
		}
		if timeLimit != 0 && w.nextTime() > timeLimit {
			w.logger.Log(logging.LevelWarn, "time limit exceeded", "limit", timeLimit)
			return OutcomeTimeLimitExceeded
		}
		if !w.Step() {
			w.logger.Log(logging.LevelWarn, "deadlock, no actor is runnable")
			return OutcomeDeadlock
		}
	}
	return OutcomeCompleted
}

// nextTime is the deadline of the next step, the current time when there
// is none.
func (w *World) nextTime() clock.Time {
	t := w.now
	found := false
	for _, a := range w.steppables {
		if a.IsRunnable() && (!found || a.NextStepTime() < t) {
			t, found = a.NextStepTime(), true
		}
	}
	return t
}

// Stop computes the digest, shuts every actor down and freezes the event
// log.  Stopping twice returns the same digest.
func (w *World) Stop() uint64 {
	if w.stopped {
		return w.digest
	}
	if !w.started {
		panic("stopping a world which never started")
	}

	digest, err := w.computeDigest()
	if err != nil {
		panic(fmt.Sprintf("could not compute digest: %s", err))
	}
	w.digest = digest

	for _, s := range w.actors {
		s.Shutdown()
	}
	for _, s := range w.actors {
		if s.db == nil {
			continue
		}
		if err := s.db.Close(); err != nil {
			w.logger.Log(logging.LevelError, "could not close database", "server", s.name, "err", err)
		}
	}

	w.logger.Log(logging.LevelInfo, "stopped world", "digest", fmt.Sprintf("%016x", digest), "steps", w.steps, "time", w.now)
	w.stopped = true
	w.log.Freeze()
	return digest
}

// Digest is the digest computed by Stop.
func (w *World) Digest() uint64 {
	return w.digest
}

// computeDigest hashes the arena high-water marks and the database
// contents of all actors which are not crashed.
func (w *World) computeDigest() (uint64, error) {
	h := xxhash.New()
	var buf [8]byte
	for _, s := range w.actors {
		if s.state == StateCrashed || s.state == StateInitial {
			continue
		}
		h.WriteString(s.name)
		binary.LittleEndian.PutUint64(buf[:], s.arena.BytesAllocated())
		h.Write(buf[:])
		if s.db == nil {
			continue
		}
		dbDigest, err := s.db.Digest()
		if err != nil {
			return 0, errors.WithMessagef(err, "digest of database of %s", s.name)
		}
		binary.LittleEndian.PutUint64(buf[:], dbDigest)
		h.Write(buf[:])
	}
	return h.Sum64(), nil
}
