/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Retriable reports whether a call failed in a way which justifies another
// attempt: the request or its response may have been lost.
func Retriable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// MaybeExecuted reports whether a failed call may still have taken effect
// on the server.
func MaybeExecuted(err error) bool {
	switch status.Code(err) {
	case codes.OK, codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal, codes.Unknown:
		return true
	default:
		return false
	}
}

func toStatus(err error) (codes.Code, string) {
	if err == nil {
		return codes.OK, ""
	}
	if s, ok := status.FromError(err); ok {
		return s.Code(), s.Message()
	}
	return codes.Internal, err.Error()
}

func statusErrorf(code codes.Code, format string, args ...interface{}) error {
	return status.Errorf(code, format, args...)
}
