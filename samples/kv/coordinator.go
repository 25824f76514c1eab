/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kv

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hyperledger-labs/mirsim/pkg/future"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/rpc"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

const replicaTimeout = 200

type PutRequest struct {
	Key   string
	Value int
}

type PutResponse struct{}

type GetRequest struct {
	Key string
}

type GetResponse struct {
	Value int
	Found bool
}

// coordinator serves the KV service on top of majorities of replicas.
// Writes are stamped with the latest bound of TrueTime and acknowledged
// only once that bound has definitely passed, so a write starting after
// another one finished always carries a larger stamp.
type coordinator struct {
	rt       *world.Runtime
	replicas []rpc.Channel
	seq      uint64
	logger   logging.Logger
}

func newCoordinator(rt *world.Runtime) *coordinator {
	c := &coordinator{
		rt:     rt,
		logger: rt.Logger("Coordinator"),
	}
	for _, host := range rt.Discovery().ListPool(Pool) {
		c.replicas = append(c.replicas, rt.Dial(net.Address{Host: host, Port: Port}))
	}
	return c
}

func (c *coordinator) majority() int {
	return len(c.replicas)/2 + 1
}

func (c *coordinator) writeQuorum(key string, entry Stamped) error {
	var writes []future.Future[Stamped]
	for _, ch := range c.replicas {
		writes = append(writes, rpc.Call[ReplicaWrite, Stamped](ch, rpc.JSONCodec{}, "Replica.Write", ReplicaWrite{Key: key, Entry: entry}, rpc.CallOptions{
			Timeout: replicaTimeout,
		}))
	}
	_, err := world.Await(c.rt, future.Quorum(writes, c.majority()))
	return err
}

func (c *coordinator) put(req PutRequest) (PutResponse, error) {
	tt := c.rt.TrueTime()
	c.seq++
	stamp := Stamp{
		Time:   tt.Now().Latest,
		Writer: c.rt.Name(),
		Seq:    c.seq,
	}
	for !tt.After(stamp.Time) {
		c.rt.SleepFor(stamp.Time.Sub(tt.Now().Earliest) + 1)
	}

	if err := c.writeQuorum(req.Key, Stamped{Value: req.Value, Stamp: stamp, Found: true}); err != nil {
		c.logger.Log(logging.LevelWarn, "put failed", "key", req.Key, "err", err)
		return PutResponse{}, status.Errorf(codes.Unavailable, "put of %q: %v", req.Key, err)
	}
	return PutResponse{}, nil
}

// get reads a majority and writes the newest entry back to a majority
// before answering, so no later read can return an older entry.
func (c *coordinator) get(req GetRequest) (GetResponse, error) {
	var reads []future.Future[Stamped]
	for _, ch := range c.replicas {
		reads = append(reads, rpc.Call[ReplicaRead, Stamped](ch, rpc.JSONCodec{}, "Replica.Read", ReplicaRead{Key: req.Key}, rpc.CallOptions{
			Timeout: replicaTimeout,
		}))
	}
	entries, err := world.Await(c.rt, future.Quorum(reads, c.majority()))
	if err != nil {
		c.logger.Log(logging.LevelWarn, "get failed", "key", req.Key, "err", err)
		return GetResponse{}, status.Errorf(codes.Unavailable, "get of %q: %v", req.Key, err)
	}

	var newest Stamped
	for _, e := range entries {
		if e.Found && (!newest.Found || newest.Stamp.Less(e.Stamp)) {
			newest = e
		}
	}
	if !newest.Found {
		return GetResponse{}, nil
	}

	if err := c.writeQuorum(req.Key, newest); err != nil {
		c.logger.Log(logging.LevelWarn, "write back failed", "key", req.Key, "err", err)
		return GetResponse{}, status.Errorf(codes.Unavailable, "get of %q: %v", req.Key, err)
	}
	return GetResponse{Value: newest.Value, Found: true}, nil
}

func (c *coordinator) service() *rpc.Service {
	b := rpc.NewService("KV", rpc.JSONCodec{})
	rpc.Method(b, "Put", c.put)
	rpc.Method(b, "Get", c.get)
	return b.Build()
}

// Server runs a replica which also coordinates requests.
func Server(rt *world.Runtime) {
	r := newReplica(rt)
	c := newCoordinator(rt)
	rt.Serve(Port, r.service(), c.service())
	rt.Logger("KV").Log(logging.LevelInfo, "serving", "replicas", len(c.replicas))
}
