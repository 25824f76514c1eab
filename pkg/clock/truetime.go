/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package clock

import (
	"fmt"
)

// Interval brackets the true time.
type Interval struct {
	Earliest Time
	Latest   Time
}

func (i Interval) String() string {
	return fmt.Sprintf("[%d, %d]", i.Earliest, i.Latest)
}

// TrueTime answers uncertainty bounded questions about the current time.
// The interval always contains the true global time, so two actors may
// compare the timestamps they derive from it.
type TrueTime struct {
	source Source
	model  TimeModel
}

func NewTrueTime(source Source, model TimeModel) *TrueTime {
	return &TrueTime{
		source: source,
		model:  model,
	}
}

func (tt *TrueTime) Now() Interval {
	now := tt.model.GlobalStartTime().Add(Duration(tt.source.Now()))
	u := tt.model.TrueTimeUncertainty()
	return Interval{
		Earliest: now.Add(-u),
		Latest:   now.Add(u),
	}
}

// After reports whether t has definitely passed.
func (tt *TrueTime) After(t Time) bool {
	return tt.Now().Earliest > t
}

// Before reports whether t has definitely not arrived yet.
func (tt *TrueTime) Before(t Time) bool {
	return tt.Now().Latest < t
}
