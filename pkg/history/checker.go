/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package history

import (
	"math"

	"github.com/anishathalye/porcupine"
	"golang.org/x/exp/slices"
)

// Operations converts calls into a porcupine history.  Lost calls never
// return, so they may take effect at any point after they started.  The
// input and the output of each operation is the *Call itself.
func Operations(calls []Call) []porcupine.Operation {
	var clients []string
	for _, call := range calls {
		if !slices.Contains(clients, call.Client) {
			clients = append(clients, call.Client)
		}
	}
	slices.Sort(clients)

	ops := make([]porcupine.Operation, 0, len(calls))
	for i := range calls {
		call := &calls[i]
		ret := int64(math.MaxInt64)
		if call.Status == StatusCompleted {
			ret = int64(call.End)
		}
		ops = append(ops, porcupine.Operation{
			ClientId: slices.Index(clients, call.Client),
			Input:    call,
			Call:     int64(call.Start),
			Output:   call,
			Return:   ret,
		})
	}
	return ops
}

// IsLinearizable checks the calls against a sequential model.
func IsLinearizable(model porcupine.Model, calls []Call) bool {
	return porcupine.CheckOperations(model, Operations(calls))
}
