/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package world

import (
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/net"
)

// Faults injects faults into the simulation.  It may only be used from
// within a step of the adversary.
type Faults struct {
	world   *World
	runtime *Runtime
}

func (f *Faults) check(op string) *World {
	f.runtime.check()
	w := f.world
	if w.current != f.runtime.server {
		panic(fmt.Sprintf("fault %s injected outside of a step of the adversary", op))
	}
	f.runtime.Logger("Faults").Log(logging.LevelInfo, op)
	return w
}

// Servers lists the hosts of the server pools in registration order.
func (f *Faults) Servers() []string {
	var names []string
	for _, s := range f.world.actors {
		if s.kind == KindServer {
			names = append(names, s.name)
		}
	}
	return names
}

// Clients lists the client hosts in registration order.
func (f *Faults) Clients() []string {
	var names []string
	for _, s := range f.world.actors {
		if s.kind == KindClient {
			names = append(names, s.name)
		}
	}
	return names
}

// Target returns the fault interface of a server or client.
func (f *Faults) Target(name string) Faultable {
	s, ok := f.world.byName[name]
	if !ok || s.kind == KindAdversary {
		panic(fmt.Sprintf("no fault target named %q", name))
	}
	return s
}

func (f *Faults) Pause(name string) {
	f.check("pause " + name)
	f.Target(name).Pause()
}

func (f *Faults) Resume(name string) {
	f.check("resume " + name)
	f.Target(name).Resume()
}

func (f *Faults) Crash(name string) {
	f.check("crash " + name)
	f.Target(name).Crash()
}

func (f *Faults) Reboot(name string) {
	f.check("reboot " + name)
	f.Target(name).Reboot()
}

func (f *Faults) AdjustWallClock(name string) {
	f.check("adjust wall clock of " + name)
	f.Target(name).AdjustWallClock()
}

// MakeStar partitions hosts so that only center reaches everybody.
func (f *Faults) MakeStar(hosts []string, center string) {
	f.check("star partition around "+center).network.MakeStar(hosts, center)
}

func (f *Faults) Split(left, right []string) {
	f.check(fmt.Sprintf("split %v from %v", left, right)).network.Split(left, right)
}

func (f *Faults) Isolate(host string) {
	f.check("isolate " + host).network.Isolate(host)
}

func (f *Faults) SetLossy(a, b string, percent int) {
	f.check(fmt.Sprintf("lossy link %s-%s at %d%%", a, b, percent)).network.SetLossy(a, b, percent)
}

// HealLinks restores the links between a and b, whatever fault they carry.
func (f *Faults) HealLinks(a, b string) {
	f.check(fmt.Sprintf("heal link %s-%s", a, b)).network.HealLinks(a, b)
}

// AddMangler installs m until the returned function is called from a later
// step of the adversary.
func (f *Faults) AddMangler(m net.Mangler) (remove func()) {
	remove = f.check("add mangler").network.AddMangler(m)
	return func() {
		f.check("remove mangler")
		remove()
	}
}

// Heal restores every link.  It also removes all manglers, including those
// installed by other strategies, so that afterwards every send behaves as
// on a fresh network.
func (f *Faults) Heal() {
	w := f.check("heal")
	w.network.Heal()
	w.network.ClearManglers()
}
