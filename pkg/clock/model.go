/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package clock

import (
	"math/rand"

	"github.com/pkg/errors"
)

// TimeModel decides every time related quantity in the simulation which is
// not a direct consequence of the step loop.  All its answers must be drawn
// from the simulation's seeded randomness.
type TimeModel interface {
	// GlobalStartTime is the wall time of the world at virtual time zero.
	GlobalStartTime() Time

	// InitClockDrift samples the drift of a freshly reset clock.
	InitClockDrift() Drift

	// InitLocalClockOffset samples the offset of a wall clock, both at
	// reset and on every clock synchronization.
	InitLocalClockOffset() Duration

	// TrueTimeUncertainty is half the width of the TrueTime interval.
	TrueTimeUncertainty() Duration

	// FlightTime is the latency of a packet sent from one host to another.
	FlightTime(from, to string) Duration
}

// ModelParams configure the RandomModel.
type ModelParams struct {
	StartTime           Time
	MaxDriftPermille    int64
	MaxClockOffset      Duration
	TrueTimeUncertainty Duration
	MinFlightTime       Duration
	MaxFlightTime       Duration
}

// DefaultModelParams are reasonable defaults for small clusters.
var DefaultModelParams = ModelParams{
	StartTime:           1000000,
	MaxDriftPermille:    10,
	MaxClockOffset:      100,
	TrueTimeUncertainty: 20,
	MinFlightTime:       10,
	MaxFlightTime:       50,
}

func (mp ModelParams) Validate() error {
	switch {
	case mp.StartTime < 0:
		return errors.Errorf("start time must not be negative, got %d", mp.StartTime)
	case mp.MaxDriftPermille < 0 || mp.MaxDriftPermille >= 1000:
		return errors.Errorf("max drift must be within [0, 1000) permille, got %d", mp.MaxDriftPermille)
	case mp.MaxClockOffset < 0:
		return errors.Errorf("max clock offset must not be negative, got %d", mp.MaxClockOffset)
	case mp.TrueTimeUncertainty < 0:
		return errors.Errorf("true time uncertainty must not be negative, got %d", mp.TrueTimeUncertainty)
	case mp.MinFlightTime < 1:
		return errors.Errorf("min flight time must be positive, got %d", mp.MinFlightTime)
	case mp.MinFlightTime > mp.MaxFlightTime:
		return errors.Errorf("min flight time %d exceeds max flight time %d", mp.MinFlightTime, mp.MaxFlightTime)
	}
	return nil
}

// RandomModel samples drifts, offsets and latencies uniformly from the
// bounds given by its parameters.
type RandomModel struct {
	Rand   *rand.Rand
	Params ModelParams
}

func NewRandomModel(rng *rand.Rand, params ModelParams) *RandomModel {
	return &RandomModel{
		Rand:   rng,
		Params: params,
	}
}

func (rm *RandomModel) GlobalStartTime() Time {
	return rm.Params.StartTime
}

func (rm *RandomModel) InitClockDrift() Drift {
	return NewDrift(rm.symmetric(rm.Params.MaxDriftPermille))
}

func (rm *RandomModel) InitLocalClockOffset() Duration {
	return Duration(rm.symmetric(int64(rm.Params.MaxClockOffset)))
}

func (rm *RandomModel) TrueTimeUncertainty() Duration {
	return rm.Params.TrueTimeUncertainty
}

func (rm *RandomModel) FlightTime(from, to string) Duration {
	if from == to {
		return rm.Params.MinFlightTime
	}
	spread := int64(rm.Params.MaxFlightTime - rm.Params.MinFlightTime)
	return rm.Params.MinFlightTime + Duration(rm.Rand.Int63n(spread+1))
}

// symmetric samples uniformly from [-bound, bound].
func (rm *RandomModel) symmetric(bound int64) int64 {
	if bound == 0 {
		return 0
	}
	return rm.Rand.Int63n(2*bound+1) - bound
}
