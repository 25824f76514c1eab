/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package fiber runs application logic as cooperatively scheduled fibers.
//
// Every fiber is backed by a goroutine, but control is handed over
// explicitly so exactly one goroutine of the simulation runs at any time.
// A fiber which awaits a pending future parks, returning control to the
// step which resumed it.  When the future completes, the continuation is
// scheduled as a new step of the owning actor, so resumption order is
// decided by the event queue and never by the Go scheduler.
package fiber

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/hyperledger-labs/mirsim/pkg/future"
)

// Scheduler schedules a continuation as a step of the owning actor at the
// current virtual time.
type Scheduler interface {
	Schedule(tag string, action func())
}

// Panic carries a panic raised inside a fiber over to the goroutine which
// resumed it.
type Panic struct {
	Fiber string
	Value interface{}
	Stack []byte
}

func (p *Panic) Error() string {
	return fmt.Sprintf("fiber %s panicked: %v\n%s", p.Fiber, p.Value, p.Stack)
}

type Fiber struct {
	id      uint64
	name    string
	manager *Manager
	body    func()

	resume  chan bool
	started bool
	done    bool
}

func (f *Fiber) ID() uint64 {
	return f.id
}

func (f *Fiber) Name() string {
	return f.name
}

func (f *Fiber) Done() bool {
	return f.done
}

// Manager owns the fibers of one actor.
type Manager struct {
	scheduler Scheduler
	fibers    map[uint64]*Fiber
	nextID    uint64
	current   *Fiber
	yield     chan struct{}
	panicked  *Panic
}

func NewManager(scheduler Scheduler) *Manager {
	return &Manager{
		scheduler: scheduler,
		fibers:    map[uint64]*Fiber{},
		yield:     make(chan struct{}),
	}
}

// Go creates a fiber which starts running in a step of its own.
func (m *Manager) Go(name string, body func()) *Fiber {
	m.nextID++
	f := &Fiber{
		id:      m.nextID,
		name:    name,
		manager: m,
		body:    body,
		resume:  make(chan bool),
	}
	m.fibers[f.id] = f
	m.scheduler.Schedule("start fiber "+name, func() { m.switchTo(f) })
	return f
}

// Current returns the running fiber, nil when control is outside of this
// manager's fibers.
func (m *Manager) Current() *Fiber {
	return m.current
}

// Live is the number of fibers which have not terminated.
func (m *Manager) Live() int {
	return len(m.fibers)
}

// Yield reschedules the running fiber at the current time, letting every
// step already due run first.
func (m *Manager) Yield() {
	f := m.mustCurrent("yield")
	m.scheduler.Schedule("yield "+f.name, func() { m.switchTo(f) })
	f.park()
}

// Kill unwinds all fibers in creation order.  Deferred functions of parked
// fibers run, their bodies never continue.  Panics raised while unwinding
// are discarded.
func (m *Manager) Kill() {
	if m.current != nil {
		panic(fmt.Sprintf("fiber %s attempted to kill the fibers of its own actor", m.current.name))
	}

	ids := maps.Keys(m.fibers)
	slices.Sort(ids)
	for _, id := range ids {
		f := m.fibers[id]
		if !f.started {
			f.done = true
			continue
		}
		if f.done {
			continue
		}
		f.resume <- false
		<-m.yield
	}
	m.fibers = map[uint64]*Fiber{}

	// killed fibers are abandoned, nothing they do while unwinding is
	// observed
	m.panicked = nil
}

func (m *Manager) switchTo(f *Fiber) {
	if f.done {
		return
	}

	prev := m.current
	m.current = f
	if !f.started {
		f.started = true
		go f.run()
	} else {
		f.resume <- true
	}
	<-m.yield
	m.current = prev

	if p := m.panicked; p != nil {
		m.panicked = nil
		panic(p)
	}
}

func (m *Manager) mustCurrent(op string) *Fiber {
	if m.current == nil {
		panic(op + " outside of a fiber")
	}
	return m.current
}

func (f *Fiber) run() {
	defer func() {
		if r := recover(); r != nil {
			f.manager.panicked = &Panic{
				Fiber: f.name,
				Value: r,
				Stack: debug.Stack(),
			}
		}
		f.done = true
		delete(f.manager.fibers, f.id)
		f.manager.yield <- struct{}{}
	}()

	f.body()
}

// park hands control back to the goroutine which resumed f and blocks until
// f is resumed or killed.
func (f *Fiber) park() {
	f.manager.yield <- struct{}{}
	if alive := <-f.resume; !alive {
		runtime.Goexit()
	}
}

// Await suspends the running fiber until fut completes.  A completed future
// is returned without suspending.
func Await[T any](m *Manager, fut future.Future[T]) (T, error) {
	if fut.IsReady() {
		return fut.Result()
	}

	f := m.mustCurrent("await")
	fut.Subscribe(func(T, error) {
		m.scheduler.Schedule("resume "+f.name, func() { m.switchTo(f) })
	})
	f.park()
	return fut.Result()
}
