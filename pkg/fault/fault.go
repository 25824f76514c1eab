/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package fault provides adversary programs which inject faults at random
// times drawn from the seed of the world.
package fault

import (
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

// Schedule paces a strategy.  A fault is injected on average every Every
// time units, held for Hold time units, and then repaired.
type Schedule struct {
	// Pool is the pool whose hosts are targeted, all servers when empty.
	Pool  string
	Every clock.Duration
	Hold  clock.Duration

	// Rounds bounds the number of faults, zero means no bound.
	Rounds int
}

// DefaultSchedule targets all servers.
var DefaultSchedule = Schedule{
	Every: 500,
	Hold:  200,
}

func (s Schedule) targets(rt *world.Runtime) []string {
	if s.Pool == "" {
		return rt.Faults().Servers()
	}
	return rt.Discovery().ListPool(s.Pool)
}

// rounds calls inject once per round after a random pause, and repair
// after the hold time.
func (s Schedule) rounds(rt *world.Runtime, inject func(targets []string) func()) {
	if s.Every < 2 {
		panic(fmt.Sprintf("fault interval %d too short", s.Every))
	}
	for i := 0; s.Rounds == 0 || i < s.Rounds; i++ {
		rt.SleepFor(clock.Duration(rt.RandomRange(int64(s.Every/2), int64(s.Every*3/2))))
		targets := s.targets(rt)
		if len(targets) == 0 {
			return
		}
		repair := inject(targets)
		rt.SleepFor(s.Hold)
		if repair != nil {
			repair()
		}
	}
}

func pick(rt *world.Runtime, targets []string) string {
	return targets[rt.Intn(len(targets))]
}

// StarPartitions partitions the targets around a random center and heals
// the network afterwards.
func StarPartitions(s Schedule) world.Program {
	return func(rt *world.Runtime) {
		s.rounds(rt, func(targets []string) func() {
			rt.Faults().MakeStar(targets, pick(rt, targets))
			return func() { rt.Faults().Heal() }
		})
	}
}

// Isolations cuts a random target off the network.
func Isolations(s Schedule) world.Program {
	return func(rt *world.Runtime) {
		s.rounds(rt, func(targets []string) func() {
			rt.Faults().Isolate(pick(rt, targets))
			return func() { rt.Faults().Heal() }
		})
	}
}

// CrashReboots crashes a random target and reboots it after the hold
// time.
func CrashReboots(s Schedule) world.Program {
	return func(rt *world.Runtime) {
		s.rounds(rt, func(targets []string) func() {
			target := pick(rt, targets)
			if rt.Faults().Target(target).State() != world.StateRunning {
				return nil
			}
			rt.Faults().Crash(target)
			return func() { rt.Faults().Reboot(target) }
		})
	}
}

// PauseResumes pauses a random target for the hold time.
func PauseResumes(s Schedule) world.Program {
	return func(rt *world.Runtime) {
		s.rounds(rt, func(targets []string) func() {
			target := pick(rt, targets)
			if rt.Faults().Target(target).State() != world.StateRunning {
				return nil
			}
			rt.Faults().Pause(target)
			return func() {
				if rt.Faults().Target(target).State() == world.StatePaused {
					rt.Faults().Resume(target)
				}
			}
		})
	}
}

// ClockSkews resamples the wall clock offset of a random target.
func ClockSkews(s Schedule) world.Program {
	return func(rt *world.Runtime) {
		s.rounds(rt, func(targets []string) func() {
			rt.Faults().AdjustWallClock(pick(rt, targets))
			return nil
		})
	}
}

// LossyLinks makes the links between a random target and the other
// targets drop a percentage of packets, and delays the packets the target
// sends by up to the hold time.  The repair restores only those links and
// removes only that mangler.
func LossyLinks(s Schedule, percent int) world.Program {
	return func(rt *world.Runtime) {
		s.rounds(rt, func(targets []string) func() {
			target := pick(rt, targets)
			for _, other := range targets {
				if other != target {
					rt.Faults().SetLossy(target, other, percent)
				}
			}
			remove := rt.Faults().AddMangler(net.For(net.MatchPackets().FromHost(target)).Jitter(s.Hold))
			return func() {
				for _, other := range targets {
					if other != target {
						rt.Faults().HealLinks(target, other)
					}
				}
				remove()
			}
		})
	}
}

// Compose runs every program in a fiber of its own.
func Compose(programs ...world.Program) world.Program {
	return func(rt *world.Runtime) {
		for i, p := range programs {
			p := p
			rt.Go(fmt.Sprintf("strategy-%d", i), func() { p(rt) })
		}
	}
}
