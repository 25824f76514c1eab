/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hyperledger-labs/mirsim/pkg/net"
)

// Invocation is a request as seen by a method handler.
type Invocation struct {
	Caller  net.Address
	Method  string
	Args    []byte
	TraceID uint64
}

// MethodHandler runs in a fiber of its own and may suspend.
type MethodHandler func(inv *Invocation) ([]byte, error)

// Service maps method names to handlers.
type Service struct {
	name    string
	codec   Codec
	methods map[string]MethodHandler
}

func (s *Service) Name() string {
	return s.name
}

type ServiceBuilder struct {
	service *Service
	built   bool
}

// NewService starts building the service with the given name.  A nil codec
// selects the JSONCodec.
func NewService(name string, codec Codec) *ServiceBuilder {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &ServiceBuilder{
		service: &Service{
			name:    name,
			codec:   codec,
			methods: map[string]MethodHandler{},
		},
	}
}

// Handle registers a raw handler for method.
func (b *ServiceBuilder) Handle(method string, handler MethodHandler) *ServiceBuilder {
	if b.built {
		panic("service already built")
	}
	if _, ok := b.service.methods[method]; ok {
		panic(fmt.Sprintf("method %s.%s registered twice", b.service.name, method))
	}
	b.service.methods[method] = handler
	return b
}

func (b *ServiceBuilder) Build() *Service {
	b.built = true
	return b.service
}

// Method registers a typed handler whose argument and result are
// serialized with the codec of the service.
func Method[Req, Resp any](b *ServiceBuilder, method string, fn func(req Req) (Resp, error)) *ServiceBuilder {
	codec := b.service.codec
	return b.Handle(method, func(inv *Invocation) ([]byte, error) {
		var req Req
		if err := codec.Unmarshal(inv.Args, &req); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "%s: %v", inv.Method, err)
		}
		resp, err := fn(req)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(resp)
	})
}
