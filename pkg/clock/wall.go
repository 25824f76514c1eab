/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package clock

// WallClock is the local, adjustable, real-time clock of a server.  Its
// reading is the global time of its last reset, plus the drifted time
// elapsed since, plus an additive offset modelling clock skew.
type WallClock struct {
	source Source
	model  TimeModel

	drift     Drift
	lastReset Time
	offset    Duration

	// adjustedAt is one more than the step count of the last offset
	// adjustment, zero when the offset was never adjusted.
	adjustedAt uint64
}

func NewWallClock(source Source, model TimeModel) *WallClock {
	wc := &WallClock{
		source: source,
		model:  model,
	}
	wc.Reset()
	return wc
}

// Reset resamples the drift and the initial offset, as happens when the
// owning process starts.
func (wc *WallClock) Reset() {
	wc.drift = wc.model.InitClockDrift()
	wc.offset = wc.model.InitLocalClockOffset()
	wc.lastReset = wc.source.Now()
	wc.adjustedAt = 0
}

func (wc *WallClock) Now() Time {
	elapsed := wc.source.Now().Sub(wc.lastReset)
	return wc.model.GlobalStartTime().
		Add(Duration(wc.lastReset)).
		Add(wc.drift.Elapsed(elapsed)).
		Add(wc.offset)
}

// AdjustOffset resamples the offset, modelling a clock synchronization.
// Wall time is constant within a step, so only the first adjustment within
// a step has an effect.
func (wc *WallClock) AdjustOffset() {
	step := wc.source.StepCount() + 1
	if wc.adjustedAt == step {
		return
	}
	wc.adjustedAt = step
	wc.offset = wc.model.InitLocalClockOffset()
}

func (wc *WallClock) Offset() Duration {
	return wc.offset
}

func (wc *WallClock) Drift() Drift {
	return wc.drift
}
