/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package net

import (
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/memory"
)

const firstEphemeralPort = 49152

// Scheduler schedules a callback on the event queue of the host.
type Scheduler interface {
	At(t clock.Time, tag string, action func())
}

// Allocator provides receive buffers from the heap of the host.
type Allocator interface {
	Allocate(n int) memory.Block
	Free(b memory.Block)
}

// Handler receives the traffic of an endpoint.  The payload of a packet is
// only valid for the duration of HandlePacket.
type Handler interface {
	HandlePacket(e *Endpoint, packet *Packet)
	HandleDisconnect(e *Endpoint, peer Address)
}

// HandlerFuncs adapts functions to the Handler interface, nil functions
// ignore their events.
type HandlerFuncs struct {
	OnPacket     func(e *Endpoint, packet *Packet)
	OnDisconnect func(e *Endpoint, peer Address)
}

func (hf HandlerFuncs) HandlePacket(e *Endpoint, packet *Packet) {
	if hf.OnPacket != nil {
		hf.OnPacket(e, packet)
	}
}

func (hf HandlerFuncs) HandleDisconnect(e *Endpoint, peer Address) {
	if hf.OnDisconnect != nil {
		hf.OnDisconnect(e, peer)
	}
}

// Endpoint is bound to a port of a transport.  Endpoints created by
// ConnectTo have a peer, listening endpoints reply to the source of the
// packets they receive.
type Endpoint struct {
	transport *Transport
	local     Address
	peer      *Address
	handler   Handler
	closed    bool
}

func (e *Endpoint) Local() Address {
	return e.local
}

// Peer returns the address this endpoint connected to.
func (e *Endpoint) Peer() (Address, bool) {
	if e.peer == nil {
		return Address{}, false
	}
	return *e.peer, true
}

func (e *Endpoint) Closed() bool {
	return e.closed
}

// Send sends payload to the peer of a connected endpoint.
func (e *Endpoint) Send(payload []byte) {
	if e.peer == nil {
		panic(fmt.Sprintf("endpoint %s is not connected", e.local))
	}
	e.SendTo(*e.peer, payload)
}

// SendTo sends payload to dest.  Sends on closed endpoints are ignored.
func (e *Endpoint) SendTo(dest Address, payload []byte) {
	if e.closed {
		return
	}
	e.transport.network.send(&Packet{
		Type:    PacketData,
		Source:  e.local,
		Dest:    dest,
		Payload: append([]byte(nil), payload...),
	})
}

// Reply answers packet from the endpoint it was delivered to.
func (e *Endpoint) Reply(packet *Packet, payload []byte) {
	e.SendTo(packet.Source, payload)
}

// Close unbinds the port.  The peer is not notified.
func (e *Endpoint) Close() {
	if e.closed {
		return
	}
	e.closed = true
	delete(e.transport.endpoints, e.local.Port)
}

// Transport is the network stack of one host.  It survives crashes of its
// host, but loses all endpoints when reset.
type Transport struct {
	network   *Network
	host      string
	scheduler Scheduler
	heap      Allocator

	up        bool
	endpoints map[uint16]*Endpoint
	nextPort  uint16
}

func newTransport(network *Network, host string, scheduler Scheduler, heap Allocator) *Transport {
	return &Transport{
		network:   network,
		host:      host,
		scheduler: scheduler,
		heap:      heap,
		endpoints: map[uint16]*Endpoint{},
		nextPort:  firstEphemeralPort,
	}
}

func (t *Transport) Host() string {
	return t.host
}

func (t *Transport) IsUp() bool {
	return t.up
}

// Start brings the host online.
func (t *Transport) Start() {
	t.up = true
}

// Reset takes the host offline and drops all endpoints, as happens when
// the host crashes.  Ephemeral ports are not reused by later incarnations.
func (t *Transport) Reset() {
	t.up = false
	for _, e := range t.endpoints {
		e.closed = true
	}
	t.endpoints = map[uint16]*Endpoint{}
}

// Serve binds handler to port.
func (t *Transport) Serve(port uint16, handler Handler) *Endpoint {
	t.checkUp()
	if port >= firstEphemeralPort {
		panic(fmt.Sprintf("%s: port %d is in the ephemeral range", t.host, port))
	}
	if _, ok := t.endpoints[port]; ok {
		panic(fmt.Sprintf("%s: port %d already bound", t.host, port))
	}

	e := &Endpoint{
		transport: t,
		local:     Address{Host: t.host, Port: port},
		handler:   handler,
	}
	t.endpoints[port] = e
	return e
}

// ConnectTo binds an ephemeral port whose traffic goes to dest.
// Connecting never fails, an unreachable peer shows as lost packets or as
// a disconnect.
func (t *Transport) ConnectTo(dest Address, handler Handler) *Endpoint {
	t.checkUp()
	for {
		port := t.nextPort
		t.nextPort++
		if t.nextPort == 0 {
			t.nextPort = firstEphemeralPort
		}
		if _, ok := t.endpoints[port]; ok {
			continue
		}

		peer := dest
		e := &Endpoint{
			transport: t,
			local:     Address{Host: t.host, Port: port},
			peer:      &peer,
			handler:   handler,
		}
		t.endpoints[port] = e
		return e
	}
}

func (t *Transport) checkUp() {
	if !t.up {
		panic(fmt.Sprintf("transport of %s is down", t.host))
	}
}

func (t *Transport) handlePacket(packet *Packet) {
	if !t.up {
		t.network.drop(packet, "host down")
		return
	}

	e, ok := t.endpoints[packet.Dest.Port]
	if !ok {
		if packet.Type == PacketData {
			t.network.logger.Log(logging.LevelDebug, "resetting packet to unbound port", "packet", packet)
			t.network.send(&Packet{
				Type:   PacketReset,
				Source: packet.Dest,
				Dest:   packet.Source,
			})
		}
		return
	}

	if packet.Type == PacketReset {
		e.handler.HandleDisconnect(e, packet.Source)
		return
	}

	if t.heap == nil || len(packet.Payload) == 0 {
		e.handler.HandlePacket(e, packet)
		return
	}

	buf := t.heap.Allocate(len(packet.Payload))
	defer func() {
		if buf.Live() {
			t.heap.Free(buf)
		}
	}()
	received := *packet
	received.Payload = buf.Bytes()
	copy(received.Payload, packet.Payload)
	e.handler.HandlePacket(e, &received)
}
