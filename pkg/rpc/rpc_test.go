/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/fiber"
	"github.com/hyperledger-labs/mirsim/pkg/future"
	"github.com/hyperledger-labs/mirsim/pkg/history"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/net"
	"github.com/hyperledger-labs/mirsim/pkg/rpc"
)

type echoRequest struct {
	Data string
}

type echoResponse struct {
	Data string
	Host string
}

var _ = Describe("RPC", func() {
	var (
		c      *cluster
		client *host
	)

	startEcho := func(name string) {
		h := c.hosts[name]
		b := rpc.NewService("Echo", nil)
		rpc.Method(b, "Echo", func(req echoRequest) (echoResponse, error) {
			return echoResponse{Data: req.Data, Host: name}, nil
		})
		rpc.Method(b, "Slow", func(req echoRequest) (echoResponse, error) {
			fiber.Await(h.fibers, h.After(100))
			return echoResponse{Data: req.Data, Host: name}, nil
		})
		rpc.Method(b, "Fail", func(req echoRequest) (echoResponse, error) {
			return echoResponse{}, status.Error(codes.FailedPrecondition, "not today")
		})
		server := rpc.NewServer(h.transport, h.fibers, logging.NilLogger)
		server.Register(b.Build())
		server.Start(42)
	}

	dial := func(name string) rpc.Channel {
		return rpc.Dial(client.transport, client, logging.NilLogger, net.Address{Host: name, Port: 42})
	}

	echo := func(ch rpc.Channel, method, data string, opts rpc.CallOptions) future.Future[echoResponse] {
		return rpc.Call[echoRequest, echoResponse](ch, nil, "Echo."+method, echoRequest{Data: data}, opts)
	}

	BeforeEach(func() {
		c = newCluster("client", "s1", "s2", "s3")
		client = c.hosts["client"]
		for _, name := range []string{"s1", "s2", "s3"} {
			startEcho(name)
		}
	})

	It("round trips typed calls", func() {
		f := echo(dial("s1"), "Echo", "Hello", rpc.CallOptions{})
		c.runUntil(100)
		resp, err := f.Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(resp).To(Equal(echoResponse{Data: "Hello", Host: "s1"}))
	})

	It("lets handlers suspend", func() {
		f := echo(dial("s1"), "Slow", "later", rpc.CallOptions{})
		c.runUntil(100)
		Expect(f.IsReady()).To(BeFalse())
		c.runUntil(200)
		resp, err := f.Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Data).To(Equal("later"))
	})

	It("reports unknown methods as unimplemented", func() {
		f := echo(dial("s1"), "Missing", "x", rpc.CallOptions{})
		c.runUntil(100)
		_, err := f.Result()
		Expect(status.Code(err)).To(Equal(codes.Unimplemented))
	})

	It("passes handler errors through", func() {
		f := echo(dial("s1"), "Fail", "x", rpc.CallOptions{})
		c.runUntil(100)
		_, err := f.Result()
		Expect(status.Code(err)).To(Equal(codes.FailedPrecondition))
		Expect(status.Convert(err).Message()).To(Equal("not today"))
	})

	It("times out calls to unreachable peers", func() {
		c.network.Isolate("s1")
		f := echo(dial("s1"), "Echo", "x", rpc.CallOptions{Timeout: 50})
		c.runUntil(49)
		Expect(f.IsReady()).To(BeFalse())
		c.runUntil(50)
		_, err := f.Result()
		Expect(status.Code(err)).To(Equal(codes.DeadlineExceeded))
		Expect(rpc.Retriable(err)).To(BeTrue())
	})

	It("fails calls to peers without a server as unavailable", func() {
		ch := rpc.Dial(client.transport, client, logging.NilLogger, net.Address{Host: "s2", Port: 7})
		f := rpc.Call[echoRequest, echoResponse](ch, nil, "Echo.Echo", echoRequest{Data: "x"}, rpc.CallOptions{})
		c.runUntil(100)
		_, err := f.Result()
		Expect(status.Code(err)).To(Equal(codes.Unavailable))
	})

	It("retries until the peer becomes reachable", func() {
		c.network.Isolate("s1")
		client.At(300, "heal", func() { c.network.Heal() })

		ch := rpc.WithRetries(dial("s1"), client, logging.NilLogger)
		f := echo(ch, "Echo", "persistent", rpc.CallOptions{Timeout: 50})
		c.runUntil(2000)
		resp, err := f.Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Data).To(Equal("persistent"))
	})

	It("gives up after the attempt limit", func() {
		c.network.Isolate("s1")
		ch := rpc.WithRetries(dial("s1"), client, logging.NilLogger)
		f := echo(ch, "Echo", "x", rpc.CallOptions{Timeout: 50, Attempts: 2})
		c.runUntil(1000)
		_, err := f.Result()
		Expect(status.Code(err)).To(Equal(codes.DeadlineExceeded))
	})

	It("spreads calls over random peers", func() {
		ch := rpc.NewRandomChannel([]rpc.Channel{dial("s1"), dial("s2"), dial("s3")}, rand.New(rand.NewSource(5)))
		var fs []future.Future[echoResponse]
		for i := 0; i < 30; i++ {
			fs = append(fs, echo(ch, "Echo", "x", rpc.CallOptions{}))
		}
		c.runUntil(100)

		seen := map[string]bool{}
		for _, f := range fs {
			resp, err := f.Result()
			Expect(err).NotTo(HaveOccurred())
			seen[resp.Host] = true
		}
		Expect(seen).To(HaveLen(3))
	})

	It("records calls in the history", func() {
		rec := history.NewRecorder(c)
		ch := rpc.WithHistory(rpc.WithLogging(dial("s1"), logging.NilLogger), rec, "client")
		echo(ch, "Echo", "kept", rpc.CallOptions{})
		echo(ch, "Missing", "removed", rpc.CallOptions{})
		c.runUntil(100)

		c.network.Isolate("s1")
		echo(ch, "Echo", "lost", rpc.CallOptions{Timeout: 10})
		c.runUntil(200)

		calls := rec.Calls()
		Expect(calls).To(HaveLen(2))
		Expect(calls[0].Status).To(Equal(history.StatusCompleted))
		Expect(calls[0].Start).To(Equal(clock.Time(0)))
		Expect(calls[0].End).To(Equal(clock.Time(20)))
		Expect(calls[1].Status).To(Equal(history.StatusLost))
		Expect(rec.NumCompleted()).To(Equal(1))
	})
})
