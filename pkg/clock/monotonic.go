/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package clock

// MonotonicClock measures drifted time since the owning process last
// started.  Offset adjustments of the wall clock never affect it.
type MonotonicClock struct {
	source    Source
	model     TimeModel
	drift     Drift
	lastReset Time
}

func NewMonotonicClock(source Source, model TimeModel) *MonotonicClock {
	mc := &MonotonicClock{
		source: source,
		model:  model,
	}
	mc.Reset()
	return mc
}

func (mc *MonotonicClock) Reset() {
	mc.drift = mc.model.InitClockDrift()
	mc.lastReset = mc.source.Now()
}

func (mc *MonotonicClock) Now() Time {
	return Time(mc.drift.Elapsed(mc.source.Now().Sub(mc.lastReset)))
}

// SleepOrTimeout returns the global duration after which this clock has
// advanced by d.
func (mc *MonotonicClock) SleepOrTimeout(d Duration) Duration {
	return mc.drift.SleepOrTimeout(d)
}

func (mc *MonotonicClock) Drift() Drift {
	return mc.drift
}
