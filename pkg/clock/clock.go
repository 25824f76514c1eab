/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package clock models the clocks observed by simulated actors.  All clocks
// are pure functions of the global virtual time which is advanced by the
// step loop only, never by the real wall clock.
package clock

import (
	"fmt"
)

// Time is a point in virtual time, an integer count of abstract time units
// since the beginning of the simulation.
type Time int64

// Duration is a span of virtual time.
type Duration int64

func (t Time) Add(d Duration) Time {
	return t + Time(d)
}

func (t Time) Sub(o Time) Duration {
	return Duration(t - o)
}

func (t Time) String() string {
	return fmt.Sprintf("%d", int64(t))
}

// Source exposes the global virtual clock and the number of steps executed
// so far.  The World implements it.
type Source interface {
	Now() Time
	StepCount() uint64
}

// Drift is a fixed multiplicative skew of an actor's local clock relative to
// global virtual time, expressed in parts per thousand.  A drift of 10 makes
// the local clock run 1% faster than global time, -10 makes it run 1% slower.
type Drift struct {
	permille int64
}

// NewDrift panics for drifts of -1000 permille or less, such a clock would
// stand still or run backwards.
func NewDrift(permille int64) Drift {
	if permille <= -1000 {
		panic(fmt.Sprintf("clock drift of %d permille would stop the clock", permille))
	}
	return Drift{permille: permille}
}

func (d Drift) Permille() int64 {
	return d.permille
}

// Elapsed converts a span of global time to the span observed locally.
func (d Drift) Elapsed(global Duration) Duration {
	return global * Duration(1000+d.permille) / 1000
}

// SleepOrTimeout converts a local duration requested by a timer into the
// global duration after which the local clock has advanced by at least the
// requested amount.
func (d Drift) SleepOrTimeout(local Duration) Duration {
	if local <= 0 {
		return 0
	}
	rate := Duration(1000 + d.permille)
	return (local*1000 + rate - 1) / rate
}
