/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"google.golang.org/grpc/codes"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/future"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/net"
)

type CallOptions struct {
	// Timeout bounds a single attempt in local time, zero waits forever.
	Timeout clock.Duration

	// Attempts limits retrying channels, zero retries forever.
	Attempts int

	TraceID uint64
}

// Channel carries calls to one or more peers.
type Channel interface {
	Call(method string, args []byte, opts CallOptions) future.Future[[]byte]
	Peer() string
	Close()
}

// Timers create futures completing after a local duration.
type Timers interface {
	After(d clock.Duration) future.Future[struct{}]
}

// TransportChannel sends calls over a connection to a single peer.  A reset
// from the peer fails all outstanding calls as Unavailable and the next
// call connects anew.
type TransportChannel struct {
	transport *net.Transport
	timers    Timers
	logger    logging.Logger
	peer      net.Address

	endpoint *net.Endpoint
	nextID   uint64
	pending  map[uint64]future.Promise[[]byte]
	closed   bool
}

func Dial(transport *net.Transport, timers Timers, logger logging.Logger, peer net.Address) *TransportChannel {
	return &TransportChannel{
		transport: transport,
		timers:    timers,
		logger:    logger,
		peer:      peer,
		pending:   map[uint64]future.Promise[[]byte]{},
	}
}

func (c *TransportChannel) Peer() string {
	return c.peer.String()
}

func (c *TransportChannel) Call(method string, args []byte, opts CallOptions) future.Future[[]byte] {
	if c.closed {
		return future.Failed[[]byte](statusErrorf(codes.Canceled, "channel to %s closed", c.peer))
	}

	if c.endpoint == nil || c.endpoint.Closed() {
		c.endpoint = c.transport.ConnectTo(c.peer, c)
	}

	c.nextID++
	id := c.nextID
	f, p := future.NewContract[[]byte]()
	c.pending[id] = p

	c.endpoint.Send(encodeRequest(&request{
		id:      id,
		method:  method,
		args:    args,
		traceID: opts.TraceID,
	}))

	if opts.Timeout > 0 {
		c.timers.After(opts.Timeout).Subscribe(func(struct{}, error) {
			c.fail(id, statusErrorf(codes.DeadlineExceeded, "%s to %s timed out", method, c.peer))
		})
	}

	return f
}

// Close fails all outstanding calls.
func (c *TransportChannel) Close() {
	c.closed = true
	c.failAll(statusErrorf(codes.Canceled, "channel to %s closed", c.peer))
	if c.endpoint != nil {
		c.endpoint.Close()
		c.endpoint = nil
	}
}

func (c *TransportChannel) HandlePacket(e *net.Endpoint, packet *net.Packet) {
	_, resp, err := decodeFrame(packet.Payload)
	if err != nil || resp == nil {
		c.logger.Log(logging.LevelWarn, "ignoring malformed response", "from", packet.Source, "error", err)
		return
	}

	p, ok := c.pending[resp.id]
	if !ok {
		// late response to a call which timed out
		return
	}
	delete(c.pending, resp.id)

	if resp.code != codes.OK {
		p.Fail(statusErrorf(resp.code, "%s", resp.message))
		return
	}
	p.Set(resp.result)
}

func (c *TransportChannel) HandleDisconnect(e *net.Endpoint, peer net.Address) {
	if e != c.endpoint {
		return
	}
	c.logger.Log(logging.LevelDebug, "peer reset connection", "peer", peer, "pending", len(c.pending))
	c.endpoint.Close()
	c.endpoint = nil
	c.failAll(statusErrorf(codes.Unavailable, "connection to %s reset", peer))
}

func (c *TransportChannel) fail(id uint64, err error) {
	p, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	p.Fail(err)
}

// failAll fails outstanding calls in the order they were issued.
func (c *TransportChannel) failAll(err error) {
	ids := maps.Keys(c.pending)
	slices.Sort(ids)
	for _, id := range ids {
		c.fail(id, err)
	}
}
