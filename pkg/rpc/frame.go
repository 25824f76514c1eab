/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/encoding/protowire"
)

// Frames are protobuf wire encoded:
//
//	frame    { 1: request, 2: response }
//	request  { 1: id, 2: method, 3: args, 4: trace id }
//	response { 1: id, 2: result, 3: code, 4: message }

const (
	frameRequest  protowire.Number = 1
	frameResponse protowire.Number = 2
)

type request struct {
	id      uint64
	method  string
	args    []byte
	traceID uint64
}

type response struct {
	id      uint64
	result  []byte
	code    codes.Code
	message string
}

func encodeRequest(req *request) []byte {
	var body []byte
	body = protowire.AppendTag(body, 1, protowire.VarintType)
	body = protowire.AppendVarint(body, req.id)
	body = protowire.AppendTag(body, 2, protowire.BytesType)
	body = protowire.AppendString(body, req.method)
	body = protowire.AppendTag(body, 3, protowire.BytesType)
	body = protowire.AppendBytes(body, req.args)
	body = protowire.AppendTag(body, 4, protowire.VarintType)
	body = protowire.AppendVarint(body, req.traceID)

	var frame []byte
	frame = protowire.AppendTag(frame, frameRequest, protowire.BytesType)
	return protowire.AppendBytes(frame, body)
}

func encodeResponse(resp *response) []byte {
	var body []byte
	body = protowire.AppendTag(body, 1, protowire.VarintType)
	body = protowire.AppendVarint(body, resp.id)
	body = protowire.AppendTag(body, 2, protowire.BytesType)
	body = protowire.AppendBytes(body, resp.result)
	body = protowire.AppendTag(body, 3, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(resp.code))
	body = protowire.AppendTag(body, 4, protowire.BytesType)
	body = protowire.AppendString(body, resp.message)

	var frame []byte
	frame = protowire.AppendTag(frame, frameResponse, protowire.BytesType)
	return protowire.AppendBytes(frame, body)
}

// decodeFrame returns exactly one of request and response.  Decoded slices
// never alias data.
func decodeFrame(data []byte) (*request, *response, error) {
	num, typ, n := protowire.ConsumeTag(data)
	if n < 0 {
		return nil, nil, errors.WithMessage(protowire.ParseError(n), "could not read frame tag")
	}
	if typ != protowire.BytesType {
		return nil, nil, errors.Errorf("unexpected frame wire type %d", typ)
	}
	body, m := protowire.ConsumeBytes(data[n:])
	if m < 0 {
		return nil, nil, errors.WithMessage(protowire.ParseError(m), "could not read frame body")
	}

	switch num {
	case frameRequest:
		req := &request{}
		err := consumeFields(body, func(num protowire.Number, v uint64, b []byte) {
			switch num {
			case 1:
				req.id = v
			case 2:
				req.method = string(b)
			case 3:
				req.args = append([]byte(nil), b...)
			case 4:
				req.traceID = v
			}
		})
		return req, nil, errors.WithMessage(err, "could not decode request")
	case frameResponse:
		resp := &response{}
		err := consumeFields(body, func(num protowire.Number, v uint64, b []byte) {
			switch num {
			case 1:
				resp.id = v
			case 2:
				resp.result = append([]byte(nil), b...)
			case 3:
				resp.code = codes.Code(v)
			case 4:
				resp.message = string(b)
			}
		})
		return nil, resp, errors.WithMessage(err, "could not decode response")
	default:
		return nil, nil, errors.Errorf("unknown frame type %d", num)
	}
}

// consumeFields visits the varint and bytes fields of a message, other
// fields are skipped.
func consumeFields(data []byte, visit func(num protowire.Number, v uint64, b []byte)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			visit(num, v, nil)
			data = data[m:]
		case protowire.BytesType:
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			visit(num, 0, b)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			data = data[m:]
		}
	}
	return nil
}
