/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package net

import (
	"github.com/hyperledger-labs/mirsim/pkg/clock"
)

// Delivery is a packet together with the time it arrives at its destination.
type Delivery struct {
	Packet *Packet
	At     clock.Time
}

// Mangler rewrites a delivery into any number of deliveries.  Returning no
// delivery drops the packet.
type Mangler interface {
	Mangle(random int, d Delivery) []Delivery
}

// MangleMatcher decides which deliveries a mangling applies to.  Matchings
// chain, for instance
//
//	For(MatchPackets().FromHost("Server-1").AtPercent(10)).Drop()
//
// drops ten percent of the packets Server-1 sends to other hosts.
type MangleMatcher interface {
	Matches(random int, d Delivery) bool
}

// Until applies a mangling until the first delivery matching matcher.  This
// is useful for healing a fault once the system reached some state.
func Until(matcher MangleMatcher) *Mangling {
	matched := false
	return &Mangling{
		Filter: InlineMatcher(func(random int, d Delivery) bool {
			if matched || matcher.Matches(random, d) {
				matched = true
				return false
			}

			return true
		}),
	}
}

// After applies a mangling starting with the first delivery matching
// matcher.  This is useful for letting the system get into a desired state
// before injecting a fault.
func After(matcher MangleMatcher) *Mangling {
	matched := false
	return &Mangling{
		Filter: InlineMatcher(func(random int, d Delivery) bool {
			if matched || matcher.Matches(random, d) {
				matched = true
				return true
			}

			return false
		}),
	}
}

// For applies a mangling whenever matcher matches.
func For(matcher MangleMatcher) *Mangling {
	return &Mangling{
		Filter: matcher,
	}
}

// Mangling is usually constructed via For/After/Until and is used to
// conditionally apply a Mangler.
type Mangling struct {
	Filter MangleMatcher
}

func (m *Mangling) Do(mangler Mangler) Mangler {
	return InlineMangler(func(random int, d Delivery) []Delivery {
		if !m.Filter.Matches(random, d) {
			return []Delivery{d}
		}

		return mangler.Mangle(random, d)
	})
}

func (m *Mangling) Drop() Mangler {
	return m.Do(DropMangler{})
}

func (m *Mangling) Jitter(maxDelay clock.Duration) Mangler {
	return m.Do(&JitterMangler{MaxDelay: maxDelay})
}

func (m *Mangling) Duplicate(maxDelay clock.Duration) Mangler {
	return m.Do(&DuplicateMangler{MaxDelay: maxDelay})
}

func (m *Mangling) Delay(delay clock.Duration) Mangler {
	return m.Do(&DelayMangler{Delay: delay})
}

// MatchPackets starts a matching which selects every packet.
func MatchPackets() *PacketMatching {
	return &PacketMatching{}
}

type InlineMatcher func(random int, d Delivery) bool

func (im InlineMatcher) Matches(random int, d Delivery) bool {
	return im(random, d)
}

type InlineMangler func(random int, d Delivery) []Delivery

func (im InlineMangler) Mangle(random int, d Delivery) []Delivery {
	return im(random, d)
}

type packetFilter func(random int, d Delivery) bool

// PacketMatching selects the packets passing all of its filters.  Every
// method returns a new matching, the receiver is left unchanged.
type PacketMatching struct {
	filters []packetFilter
}

func (pm *PacketMatching) with(filter packetFilter) *PacketMatching {
	filters := make([]packetFilter, 0, len(pm.filters)+1)
	filters = append(filters, pm.filters...)
	return &PacketMatching{filters: append(filters, filter)}
}

func (pm *PacketMatching) Matches(random int, d Delivery) bool {
	for _, filter := range pm.filters {
		if !filter(random, d) {
			return false
		}
	}
	return true
}

// FromHost ignores loopback packets, links of a host to itself stay
// reliable.
func (pm *PacketMatching) FromHost(host string) *PacketMatching {
	return pm.FromHosts(host)
}

// FromHosts ignores loopback packets.
func (pm *PacketMatching) FromHosts(hosts ...string) *PacketMatching {
	return pm.with(func(_ int, d Delivery) bool {
		return d.Packet.Source.Host != d.Packet.Dest.Host && containsHost(hosts, d.Packet.Source.Host)
	})
}

func (pm *PacketMatching) ToHost(host string) *PacketMatching {
	return pm.ToHosts(host)
}

func (pm *PacketMatching) ToHosts(hosts ...string) *PacketMatching {
	return pm.with(func(_ int, d Delivery) bool {
		return containsHost(hosts, d.Packet.Dest.Host)
	})
}

func (pm *PacketMatching) ToPort(port uint16) *PacketMatching {
	return pm.with(func(_ int, d Delivery) bool {
		return d.Packet.Dest.Port == port
	})
}

func (pm *PacketMatching) OfType(pt PacketType) *PacketMatching {
	return pm.with(func(_ int, d Delivery) bool {
		return d.Packet.Type == pt
	})
}

// AtPercent selects packets at random, percent out of a hundred.
func (pm *PacketMatching) AtPercent(percent int) *PacketMatching {
	return pm.with(func(random int, _ Delivery) bool {
		return random%100 < percent
	})
}

func containsHost(hosts []string, host string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}

type DropMangler struct{}

func (DropMangler) Mangle(random int, d Delivery) []Delivery {
	return nil
}

// DuplicateMangler delivers a copy of the packet up to MaxDelay after the
// original.
type DuplicateMangler struct {
	MaxDelay clock.Duration
}

func (dm *DuplicateMangler) Mangle(random int, d Delivery) []Delivery {
	clone := Delivery{
		Packet: d.Packet.clone(),
		At:     d.At.Add(clock.Duration(random) % (dm.MaxDelay + 1)),
	}
	return []Delivery{d, clone}
}

// JitterMangler delays packets a random amount of time, up to MaxDelay.
type JitterMangler struct {
	MaxDelay clock.Duration
}

func (jm *JitterMangler) Mangle(random int, d Delivery) []Delivery {
	d.At = d.At.Add(clock.Duration(random) % (jm.MaxDelay + 1))
	return []Delivery{d}
}

// DelayMangler delays packets by a fixed amount of time.
type DelayMangler struct {
	Delay clock.Duration
}

func (dm *DelayMangler) Mangle(random int, d Delivery) []Delivery {
	d.At = d.At.Add(dm.Delay)
	return []Delivery{d}
}
