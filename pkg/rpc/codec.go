/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Codec serializes the arguments and results of typed calls.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSONCodec is the default codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	return data, errors.WithMessage(err, "could not marshal")
}

func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return errors.WithMessage(json.Unmarshal(data, v), "could not unmarshal")
}
