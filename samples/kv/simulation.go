/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kv

import (
	"github.com/hyperledger-labs/mirsim/pkg/config"
	"github.com/hyperledger-labs/mirsim/pkg/driver"
	"github.com/hyperledger-labs/mirsim/pkg/fault"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

const (
	Replicas = 5
	Clients  = 3
	Keys     = 3
)

// Faults paces the adversary, which only targets replicas.
var Faults = fault.Schedule{
	Pool:  Pool,
	Every: 600,
	Hold:  300,
}

// Simulation runs five replicas and three clients against an adversary,
// and checks the resulting history for linearizability.
func Simulation() driver.Simulation {
	return driver.Simulation{
		Name: "kv",
		Setup: func(w *world.World) {
			w.MakePool(Pool, Server, Replicas, "KV-%d")
			for i := 0; i < Clients; i++ {
				w.AddClient(Workload(Keys))
			}
			w.InitCounter(CounterCompleted, 0)
			w.SetAdversary(fault.Compose(
				fault.StarPartitions(Faults),
				fault.CrashReboots(Faults),
				fault.ClockSkews(Faults),
				fault.LossyLinks(Faults, 20),
			))
		},
		Check: Check,
	}
}

// Defaults bound the simulation to 20000 steps.
func Defaults() *config.Config {
	c := config.Default()
	c.MaxSteps = 20000
	return c
}
