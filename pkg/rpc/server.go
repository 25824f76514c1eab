/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"

	"github.com/hyperledger-labs/mirsim/pkg/fiber"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/net"
)

// Spawner starts fibers of the actor running the server.
type Spawner interface {
	Go(name string, body func()) *fiber.Fiber
}

// Server dispatches requests arriving on a port to registered services.
// Every request is handled in a fiber of its own.
type Server struct {
	transport *net.Transport
	spawner   Spawner
	logger    logging.Logger
	services  map[string]*Service
	endpoint  *net.Endpoint
}

func NewServer(transport *net.Transport, spawner Spawner, logger logging.Logger) *Server {
	return &Server{
		transport: transport,
		spawner:   spawner,
		logger:    logger,
		services:  map[string]*Service{},
	}
}

func (s *Server) Register(service *Service) {
	if _, ok := s.services[service.name]; ok {
		panic(fmt.Sprintf("service %s registered twice", service.name))
	}
	s.services[service.name] = service
}

// Start begins serving port.
func (s *Server) Start(port uint16) {
	if s.endpoint != nil {
		panic("server already started")
	}
	s.endpoint = s.transport.Serve(port, s)
	s.logger.Log(logging.LevelInfo, "rpc server started", "port", port)
}

func (s *Server) Stop() {
	if s.endpoint == nil {
		return
	}
	s.endpoint.Close()
	s.endpoint = nil
}

func (s *Server) HandlePacket(e *net.Endpoint, packet *net.Packet) {
	req, _, err := decodeFrame(packet.Payload)
	if err != nil || req == nil {
		s.logger.Log(logging.LevelWarn, "ignoring malformed request", "from", packet.Source, "error", err)
		return
	}

	caller := packet.Source
	s.spawner.Go("rpc "+req.method, func() {
		result, err := s.dispatch(&Invocation{
			Caller:  caller,
			Method:  req.method,
			Args:    req.args,
			TraceID: req.traceID,
		})
		code, message := toStatus(err)
		e.SendTo(caller, encodeResponse(&response{
			id:      req.id,
			result:  result,
			code:    code,
			message: message,
		}))
	})
}

// HandleDisconnect is never invoked for listening endpoints in practice, a
// reset is only sent in reply to data.
func (s *Server) HandleDisconnect(e *net.Endpoint, peer net.Address) {}

func (s *Server) dispatch(inv *Invocation) ([]byte, error) {
	i := strings.LastIndex(inv.Method, ".")
	if i < 0 {
		return nil, statusErrorf(codes.Unimplemented, "malformed method name %q", inv.Method)
	}

	service, ok := s.services[inv.Method[:i]]
	if !ok {
		return nil, statusErrorf(codes.Unimplemented, "unknown service %q", inv.Method[:i])
	}
	handler, ok := service.methods[inv.Method[i+1:]]
	if !ok {
		return nil, statusErrorf(codes.Unimplemented, "unknown method %q", inv.Method)
	}

	s.logger.Log(logging.LevelDebug, "handling request", "method", inv.Method, "caller", inv.Caller, "trace", inv.TraceID)
	return handler(inv)
}
