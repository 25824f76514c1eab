/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package net simulates the network connecting the servers of a world.
// Delivery is at most once: packets may be dropped, delayed or duplicated
// by faults but are never corrupted.  Faults only affect packets sent after
// they were injected, packets in flight are delivered as scheduled.
package net

import (
	"fmt"
	"math/rand"

	"golang.org/x/exp/slices"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
)

type linkKey struct {
	from, to string
}

type Stats struct {
	Sent      uint64
	Delivered uint64
	Dropped   uint64
}

// Network is shared by all servers of a world.  It is only ever mutated from
// within a step.
type Network struct {
	clock  clock.Source
	model  clock.TimeModel
	rand   *rand.Rand
	logger logging.Logger

	hosts      []string
	transports map[string]*Transport
	links      map[linkKey]*Link
	manglers   []*installedMangler

	nextPacketID uint64
	stats        Stats
}

func New(source clock.Source, model clock.TimeModel, rng *rand.Rand, logger logging.Logger) *Network {
	return &Network{
		clock:      source,
		model:      model,
		rand:       rng,
		logger:     logger,
		transports: map[string]*Transport{},
		links:      map[linkKey]*Link{},
	}
}

// AddHost creates the transport of a new host.  Hosts are listed in the
// order they were added.
func (n *Network) AddHost(name string, scheduler Scheduler, heap Allocator) *Transport {
	if _, ok := n.transports[name]; ok {
		panic(fmt.Sprintf("host %s added twice", name))
	}

	t := newTransport(n, name, scheduler, heap)
	n.hosts = append(n.hosts, name)
	n.transports[name] = t
	return t
}

func (n *Network) Hosts() []string {
	return slices.Clone(n.hosts)
}

func (n *Network) Transport(host string) *Transport {
	return n.transports[host]
}

func (n *Network) Stats() Stats {
	return n.stats
}

// Link returns the directed link between two known hosts.
func (n *Network) Link(from, to string) *Link {
	if _, ok := n.transports[from]; !ok {
		panic(fmt.Sprintf("unknown host %s", from))
	}
	if _, ok := n.transports[to]; !ok {
		panic(fmt.Sprintf("unknown host %s", to))
	}

	key := linkKey{from: from, to: to}
	link, ok := n.links[key]
	if !ok {
		link = &Link{From: from, To: to}
		n.links[key] = link
	}
	return link
}

// Partition drops all packets between a and b in both directions.
// Loopback links are never partitioned.
func (n *Network) Partition(a, b string) {
	if a == b {
		return
	}
	n.Link(a, b).State = LinkPartitioned
	n.Link(b, a).State = LinkPartitioned
	n.logger.Log(logging.LevelInfo, "partitioned link", "a", a, "b", b)
}

// SetLossy makes both directions between a and b drop packets at the given
// percentage.
func (n *Network) SetLossy(a, b string, percent int) {
	if a == b {
		return
	}
	if percent < 0 || percent > 100 {
		panic(fmt.Sprintf("loss of %d%% out of range", percent))
	}
	for _, link := range []*Link{n.Link(a, b), n.Link(b, a)} {
		link.State = LinkLossy
		link.LossPercent = percent
	}
	n.logger.Log(logging.LevelInfo, "made link lossy", "a", a, "b", b, "percent", percent)
}

// MakeStar partitions every pair of hosts of which neither is the center.
// The center keeps healthy links to all hosts.
func (n *Network) MakeStar(hosts []string, center string) {
	for i, a := range hosts {
		for _, b := range hosts[i+1:] {
			if a == center || b == center {
				continue
			}
			n.Link(a, b).State = LinkPartitioned
			n.Link(b, a).State = LinkPartitioned
		}
	}
	n.logger.Log(logging.LevelInfo, "made star", "center", center, "hosts", len(hosts))
}

// Split partitions every host of one group from every host of the other.
func (n *Network) Split(left, right []string) {
	for _, a := range left {
		for _, b := range right {
			if a == b {
				continue
			}
			n.Link(a, b).State = LinkPartitioned
			n.Link(b, a).State = LinkPartitioned
		}
	}
	n.logger.Log(logging.LevelInfo, "split network", "left", left, "right", right)
}

// Isolate partitions host from every other host.
func (n *Network) Isolate(host string) {
	n.Split([]string{host}, n.hosts)
}

// Heal restores every link to healthy.  It does not remove manglers.
func (n *Network) Heal() {
	for _, link := range n.links {
		link.heal()
	}
	n.logger.Log(logging.LevelInfo, "healed network")
}

// HealLinks restores the links between a and b in both directions.
func (n *Network) HealLinks(a, b string) {
	n.Link(a, b).heal()
	n.Link(b, a).heal()
	n.logger.Log(logging.LevelInfo, "healed link", "a", a, "b", b)
}

type installedMangler struct {
	Mangler
}

// AddMangler appends a mangler applied to every packet sent from now on.
// Manglers are applied in the order they were added.  The returned function
// removes this mangler and leaves the others in place.
func (n *Network) AddMangler(m Mangler) (remove func()) {
	installed := &installedMangler{Mangler: m}
	n.manglers = append(n.manglers, installed)
	return func() {
		i := slices.Index(n.manglers, installed)
		if i >= 0 {
			n.manglers = slices.Delete(n.manglers, i, i+1)
		}
	}
}

func (n *Network) ClearManglers() {
	n.manglers = nil
}

// PartitionedPairs lists the directed links currently partitioned, sorted.
func (n *Network) PartitionedPairs() []string {
	var pairs []string
	for _, link := range n.links {
		if link.State == LinkPartitioned {
			pairs = append(pairs, link.From+"->"+link.To)
		}
	}
	slices.Sort(pairs)
	return pairs
}

func (n *Network) send(packet *Packet) {
	n.nextPacketID++
	packet.ID = n.nextPacketID
	packet.SendTime = n.clock.Now()
	n.stats.Sent++

	dest, ok := n.transports[packet.Dest.Host]
	if !ok {
		n.drop(packet, "unknown host")
		return
	}
	if !dest.up {
		n.drop(packet, "host down")
		return
	}

	link := n.Link(packet.Source.Host, packet.Dest.Host)
	if !link.loopback() {
		switch link.State {
		case LinkPartitioned:
			n.drop(packet, "partitioned")
			return
		case LinkLossy:
			if n.rand.Intn(100) < link.LossPercent {
				n.drop(packet, "lossy link")
				return
			}
		}
	}

	flight := n.model.FlightTime(packet.Source.Host, packet.Dest.Host)
	deliveries := []Delivery{{
		Packet: packet,
		At:     link.nextDelivery(packet.SendTime.Add(flight)),
	}}
	for _, m := range n.manglers {
		var mangled []Delivery
		for _, d := range deliveries {
			mangled = append(mangled, m.Mangle(n.rand.Int(), d)...)
		}
		deliveries = mangled
	}

	if len(deliveries) == 0 {
		n.drop(packet, "mangled")
		return
	}

	n.logger.Log(logging.LevelDebug, "sent packet", "packet", packet)
	for _, d := range deliveries {
		n.schedule(dest, d)
	}
}

func (n *Network) schedule(dest *Transport, d Delivery) {
	if d.At < n.clock.Now() {
		d.At = n.clock.Now()
	}
	packet := d.Packet
	dest.scheduler.At(d.At, "deliver packet", func() {
		n.stats.Delivered++
		n.logger.Log(logging.LevelDebug, "delivered packet", "packet", packet)
		dest.handlePacket(packet)
	})
}

func (n *Network) drop(packet *Packet, reason string) {
	n.stats.Dropped++
	n.logger.Log(logging.LevelDebug, "dropped packet", "packet", packet, "reason", reason)
}
