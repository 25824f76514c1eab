/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"strings"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/future"
	"github.com/hyperledger-labs/mirsim/pkg/history"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
)

// RetriesChannel retries calls which failed because a request or response
// may have been lost, so calls are executed at least once.  The backoff
// doubles after every attempt up to MaxBackoff.
type RetriesChannel struct {
	inner      Channel
	timers     Timers
	logger     logging.Logger
	Backoff    clock.Duration
	MaxBackoff clock.Duration
}

func WithRetries(inner Channel, timers Timers, logger logging.Logger) *RetriesChannel {
	return &RetriesChannel{
		inner:      inner,
		timers:     timers,
		logger:     logger,
		Backoff:    50,
		MaxBackoff: 1000,
	}
}

func (r *RetriesChannel) Peer() string {
	return r.inner.Peer()
}

func (r *RetriesChannel) Close() {
	r.inner.Close()
}

func (r *RetriesChannel) Call(method string, args []byte, opts CallOptions) future.Future[[]byte] {
	result, p := future.NewContract[[]byte]()

	var attempt func(n int, backoff clock.Duration)
	attempt = func(n int, backoff clock.Duration) {
		r.inner.Call(method, args, opts).Subscribe(func(value []byte, err error) {
			if err == nil || !Retriable(err) || (opts.Attempts > 0 && n >= opts.Attempts) {
				p.Complete(value, err)
				return
			}

			r.logger.Log(logging.LevelDebug, "retrying call", "method", method, "peer", r.inner.Peer(), "attempt", n, "error", err)
			next := 2 * backoff
			if next > r.MaxBackoff {
				next = r.MaxBackoff
			}
			r.timers.After(backoff).Subscribe(func(struct{}, error) {
				attempt(n+1, next)
			})
		})
	}
	attempt(1, r.Backoff)

	return result
}

// Random picks channels uniformly.
type Random interface {
	Intn(n int) int
}

// RandomChannel sends every call over a channel picked at random.
type RandomChannel struct {
	channels []Channel
	random   Random
}

func NewRandomChannel(channels []Channel, random Random) *RandomChannel {
	if len(channels) == 0 {
		panic("random channel over no channels")
	}
	return &RandomChannel{
		channels: channels,
		random:   random,
	}
}

func (rc *RandomChannel) Peer() string {
	peers := make([]string, 0, len(rc.channels))
	for _, ch := range rc.channels {
		peers = append(peers, ch.Peer())
	}
	return "random(" + strings.Join(peers, ",") + ")"
}

func (rc *RandomChannel) Close() {
	for _, ch := range rc.channels {
		ch.Close()
	}
}

func (rc *RandomChannel) Call(method string, args []byte, opts CallOptions) future.Future[[]byte] {
	return rc.channels[rc.random.Intn(len(rc.channels))].Call(method, args, opts)
}

// LoggingChannel logs every call and its outcome.
type LoggingChannel struct {
	inner  Channel
	logger logging.Logger
}

func WithLogging(inner Channel, logger logging.Logger) *LoggingChannel {
	return &LoggingChannel{
		inner:  inner,
		logger: logger,
	}
}

func (lc *LoggingChannel) Peer() string {
	return lc.inner.Peer()
}

func (lc *LoggingChannel) Close() {
	lc.inner.Close()
}

func (lc *LoggingChannel) Call(method string, args []byte, opts CallOptions) future.Future[[]byte] {
	peer := lc.inner.Peer()
	lc.logger.Log(logging.LevelDebug, "call started", "method", method, "peer", peer, "trace", opts.TraceID)
	f := lc.inner.Call(method, args, opts)
	f.Subscribe(func(_ []byte, err error) {
		if err != nil {
			lc.logger.Log(logging.LevelInfo, "call failed", "method", method, "peer", peer, "trace", opts.TraceID, "error", err)
			return
		}
		lc.logger.Log(logging.LevelDebug, "call completed", "method", method, "peer", peer, "trace", opts.TraceID)
	})
	return f
}

// HistoryChannel records calls in a history.  Calls failing in a way which
// guarantees they had no effect are removed from the history, calls which
// may have taken effect without a response are recorded as lost.
type HistoryChannel struct {
	inner    Channel
	recorder *history.Recorder
	client   string
}

func WithHistory(inner Channel, recorder *history.Recorder, client string) *HistoryChannel {
	return &HistoryChannel{
		inner:    inner,
		recorder: recorder,
		client:   client,
	}
}

func (hc *HistoryChannel) Peer() string {
	return hc.inner.Peer()
}

func (hc *HistoryChannel) Close() {
	hc.inner.Close()
}

func (hc *HistoryChannel) Call(method string, args []byte, opts CallOptions) future.Future[[]byte] {
	id := hc.recorder.CallStarted(hc.client, method, args)
	f := hc.inner.Call(method, args, opts)
	f.Subscribe(func(value []byte, err error) {
		switch {
		case err == nil:
			hc.recorder.CallCompleted(id, value, nil)
		case Retriable(err):
			hc.recorder.CallLost(id)
		case MaybeExecuted(err):
			hc.recorder.CallCompleted(id, value, err)
		default:
			hc.recorder.RemoveCall(id)
		}
	})
	return f
}
