/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package world

import (
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
)

// StepError carries a panic raised while executing a step together with
// the context it was raised in.  The World re-panics with it, it is never
// returned as a value.
type StepError struct {
	Actor string
	Time  clock.Time
	Step  uint64
	Cause interface{}
}

func (se *StepError) Error() string {
	return fmt.Sprintf("step %d of %s at %s failed: %v", se.Step, se.Actor, se.Time, se.Cause)
}

// Unwrap exposes causes which are errors, such as fiber panics.
func (se *StepError) Unwrap() error {
	if err, ok := se.Cause.(error); ok {
		return err
	}
	return nil
}
