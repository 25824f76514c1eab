/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kv is a replicated key/value store.  Every replica stores
// timestamped values in its database, any replica coordinates client
// requests by reading and writing majorities of the replicas.
package kv

import (
	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/memory"
	"github.com/hyperledger-labs/mirsim/pkg/rpc"
	"github.com/hyperledger-labs/mirsim/pkg/storage"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

const (
	Pool = "KV"
	Port = 8

	namespace = "kv"
)

// Stamp orders writes.  Writers break ties of times, and a writer numbers
// the writes it stamps within the same time.
type Stamp struct {
	Time   clock.Time
	Writer string
	Seq    uint64
}

func (s Stamp) Less(o Stamp) bool {
	switch {
	case s.Time != o.Time:
		return s.Time < o.Time
	case s.Writer != o.Writer:
		return s.Writer < o.Writer
	default:
		return s.Seq < o.Seq
	}
}

type Stamped struct {
	Value int
	Stamp Stamp
	Found bool
}

type ReplicaWrite struct {
	Key   string
	Entry Stamped
}

type ReplicaRead struct {
	Key string
}

// replica holds the durable state of a server.  Entries read from the
// database are cached in memory until the server crashes.
type replica struct {
	name   string
	store  *storage.KVStore[Stamped]
	heap   world.Heap
	cache  map[string]Stamped
	blocks map[string]memory.Block
	logger logging.Logger
}

func newReplica(rt *world.Runtime) *replica {
	return &replica{
		name:   rt.Name(),
		store:  storage.NewKVStore[Stamped](rt.Database(), namespace),
		heap:   rt.Heap(),
		cache:  map[string]Stamped{},
		blocks: map[string]memory.Block{},
		logger: rt.Logger("Replica"),
	}
}

func (r *replica) load(key string) (Stamped, error) {
	if entry, ok := r.cache[key]; ok {
		return entry, nil
	}
	entry, _, err := r.store.Get(key)
	if err != nil {
		return Stamped{}, err
	}
	r.remember(key, entry)
	return entry, nil
}

func (r *replica) remember(key string, entry Stamped) {
	if b, ok := r.blocks[key]; ok {
		r.heap.Free(b)
	}
	r.blocks[key] = r.heap.Allocate(len(key) + 24)
	r.cache[key] = entry
}

// write keeps the newer of the stored and the written entry.
func (r *replica) write(req ReplicaWrite) (Stamped, error) {
	current, err := r.load(req.Key)
	if err != nil {
		return Stamped{}, err
	}
	if current.Found && !current.Stamp.Less(req.Entry.Stamp) {
		return current, nil
	}

	entry := req.Entry
	entry.Found = true
	if err := r.store.Put(req.Key, entry); err != nil {
		return Stamped{}, err
	}
	r.remember(req.Key, entry)
	r.logger.Log(logging.LevelDebug, "stored", "key", req.Key, "value", entry.Value, "time", entry.Stamp.Time, "writer", entry.Stamp.Writer)
	return entry, nil
}

func (r *replica) service() *rpc.Service {
	b := rpc.NewService("Replica", rpc.JSONCodec{})
	rpc.Method(b, "Write", r.write)
	rpc.Method(b, "Read", func(req ReplicaRead) (Stamped, error) {
		return r.load(req.Key)
	})
	return b.Build()
}
