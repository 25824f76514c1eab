/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package echo is the smallest simulation: clients call servers which
// answer with the request.
package echo

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/config"
	"github.com/hyperledger-labs/mirsim/pkg/driver"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/rpc"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

const (
	Port    = 7
	Method  = "Echo.Echo"
	Payload = "Hello"

	// CounterEchoed counts responses equal to their request,
	// CounterMismatched all others.
	CounterEchoed     = "echoed"
	CounterMismatched = "mismatched"
)

type Message struct {
	Text string
}

// Server serves the Echo service.
func Server(rt *world.Runtime) {
	logger := rt.Logger("Echo")
	b := rpc.NewService("Echo", rpc.JSONCodec{})
	rpc.Method(b, "Echo", func(req Message) (Message, error) {
		logger.Log(logging.LevelDebug, "echoing", "text", req.Text)
		return req, nil
	})
	rt.Serve(Port, b.Build())
	logger.Log(logging.LevelInfo, "serving", "port", Port)
}

// Client calls random servers forever.
func Client(rt *world.Runtime) {
	logger := rt.Logger("Client")

	var channels []rpc.Channel
	for _, host := range rt.Discovery().ListPool(world.DefaultServerPool) {
		channels = append(channels, rt.Dial(net.Address{Host: host, Port: Port}))
	}
	retries := rpc.WithRetries(rpc.NewRandomChannel(channels, rt), rt, logger)
	ch := rpc.WithHistory(retries, rt.History(), rt.Name())

	for {
		resp, err := world.Await(rt, rpc.Call[Message, Message](ch, rpc.JSONCodec{}, Method, Message{Text: Payload}, rpc.CallOptions{
			Timeout:  500,
			Attempts: 3,
		}))
		switch {
		case err != nil:
			logger.Log(logging.LevelWarn, "echo failed", "err", err)
		case resp.Text != Payload:
			logger.Log(logging.LevelError, "echo mismatch", "got", resp.Text)
			rt.Counter(CounterMismatched).Increment()
		default:
			rt.Counter(CounterEchoed).Increment()
		}
		rt.SleepFor(clock.Duration(rt.RandomRange(1, 20)))
	}
}

// Simulation runs three servers and one client without faults.
func Simulation() driver.Simulation {
	return driver.Simulation{
		Name: "echo",
		Setup: func(w *world.World) {
			w.AddServers(3, Server)
			w.AddClient(Client)
			w.InitCounter(CounterEchoed, 0)
			w.InitCounter(CounterMismatched, 0)
		},
		Check: func(w *world.World) error {
			if n := w.GetCounter(CounterMismatched); n != 0 {
				return errors.Errorf("%d responses differ from their request", n)
			}
			if w.GetCounter(CounterEchoed) == 0 {
				return errors.Errorf("no request was echoed")
			}
			return nil
		},
	}
}

// Defaults bound the simulation to 256 steps.
func Defaults() *config.Config {
	c := config.Default()
	c.MaxSteps = 256
	return c
}
