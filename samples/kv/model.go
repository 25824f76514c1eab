/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kv

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/anishathalye/porcupine"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/hyperledger-labs/mirsim/pkg/history"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

type register struct {
	Value int
	Found bool
}

func callKey(call *history.Call) string {
	var req GetRequest
	if err := json.Unmarshal(call.Input, &req); err != nil {
		panic(errors.WithMessagef(err, "could not decode input of call %d", call.ID))
	}
	return req.Key
}

// partition splits the history by key.  A call which failed after it was
// sent may still take effect, so it is treated as if it never returned.
func partition(ops []porcupine.Operation) [][]porcupine.Operation {
	byKey := map[string][]porcupine.Operation{}
	for _, op := range ops {
		call := op.Input.(*history.Call)
		if call.Err != "" {
			op.Return = math.MaxInt64
		}
		key := callKey(call)
		byKey[key] = append(byKey[key], op)
	}

	keys := maps.Keys(byKey)
	slices.Sort(keys)
	result := make([][]porcupine.Operation, 0, len(keys))
	for _, key := range keys {
		result = append(result, byKey[key])
	}
	return result
}

// Model is a map of registers, checked one key at a time.
var Model = porcupine.Model{
	Partition: partition,
	Init:      func() interface{} { return register{} },
	Step: func(state, input, output interface{}) (bool, interface{}) {
		call := input.(*history.Call)
		switch call.Method {
		case "KV.Put":
			var req PutRequest
			if err := json.Unmarshal(call.Input, &req); err != nil {
				panic(err)
			}
			return true, register{Value: req.Value, Found: true}
		case "KV.Get":
			if call.Status != history.StatusCompleted || call.Err != "" {
				return true, state
			}
			var resp GetResponse
			if err := json.Unmarshal(call.Output, &resp); err != nil {
				panic(err)
			}
			return register{Value: resp.Value, Found: resp.Found} == state.(register), state
		default:
			panic(fmt.Sprintf("unexpected method %s", call.Method))
		}
	},
	Equal: func(a, b interface{}) bool { return a == b },
}

// Check fails unless the calls recorded in the world are linearizable.
func Check(w *world.World) error {
	calls := w.History().Calls()
	if !history.IsLinearizable(Model, calls) {
		return errors.Errorf("history of %d calls is not linearizable", len(calls))
	}
	return nil
}
