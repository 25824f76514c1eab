/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"google.golang.org/grpc/codes"

	"github.com/hyperledger-labs/mirsim/pkg/future"
)

// Call issues a typed call over ch.  Arguments and results are serialized
// with codec, nil selects the JSONCodec.
func Call[Req, Resp any](ch Channel, codec Codec, method string, req Req, opts CallOptions) future.Future[Resp] {
	if codec == nil {
		codec = JSONCodec{}
	}

	args, err := codec.Marshal(req)
	if err != nil {
		return future.Failed[Resp](statusErrorf(codes.InvalidArgument, "%s: %v", method, err))
	}

	return future.Then(ch.Call(method, args, opts), func(data []byte) (Resp, error) {
		var resp Resp
		if err := codec.Unmarshal(data, &resp); err != nil {
			return resp, statusErrorf(codes.Internal, "%s: %v", method, err)
		}
		return resp, nil
	})
}
