/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kv

import (
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/rpc"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

const (
	requestTimeout = 1000

	// CounterCompleted counts requests answered without error.
	CounterCompleted = "completed"
)

// Client talks to the KV service through coordinators.  Its calls are
// recorded in the history of the world.
type Client struct {
	rt     *world.Runtime
	ch     rpc.Channel
	logger logging.Logger
}

// Connect builds a client whose requests go to a random coordinator, or
// to the given ones only.
func Connect(rt *world.Runtime, coordinators ...string) *Client {
	if len(coordinators) == 0 {
		coordinators = rt.Discovery().ListPool(Pool)
	}
	var channels []rpc.Channel
	for _, host := range coordinators {
		channels = append(channels, rt.Dial(net.Address{Host: host, Port: Port}))
	}

	return &Client{
		rt:     rt,
		ch:     rpc.WithHistory(rpc.NewRandomChannel(channels, rt), rt.History(), rt.Name()),
		logger: rt.Logger("Client"),
	}
}

func (c *Client) Put(key string, value int) error {
	_, err := world.Await(c.rt, rpc.Call[PutRequest, PutResponse](c.ch, rpc.JSONCodec{}, "KV.Put", PutRequest{Key: key, Value: value}, rpc.CallOptions{
		Timeout: requestTimeout,
	}))
	c.done("put", key, err)
	return err
}

func (c *Client) Get(key string) (int, bool, error) {
	resp, err := world.Await(c.rt, rpc.Call[GetRequest, GetResponse](c.ch, rpc.JSONCodec{}, "KV.Get", GetRequest{Key: key}, rpc.CallOptions{
		Timeout: requestTimeout,
	}))
	c.done("get", key, err)
	return resp.Value, resp.Found, err
}

func (c *Client) done(op, key string, err error) {
	if err != nil {
		c.logger.Log(logging.LevelInfo, op+" failed", "key", key, "err", err)
		return
	}
	c.rt.Counter(CounterCompleted).Increment()
}

// Workload issues random puts and gets on a few keys forever.
func Workload(keys int) world.Program {
	return func(rt *world.Runtime) {
		c := Connect(rt)
		for {
			key := fmt.Sprintf("k%d", rt.Intn(keys))
			if rt.Either() {
				c.Put(key, int(rt.RandomRange(1, 1000)))
			} else {
				c.Get(key)
			}
			rt.SleepFor(clock.Duration(rt.RandomRange(1, 50)))
		}
	}
}
