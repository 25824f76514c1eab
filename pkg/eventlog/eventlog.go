/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package eventlog keeps the ordered record of everything observed during
// a simulation, for post-mortem inspection.
package eventlog

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
)

type Entry struct {
	Time      clock.Time
	Step      uint64
	Actor     string
	Component string
	Level     logging.LogLevel
	Message   string
}

func (e *Entry) String() string {
	return fmt.Sprintf("[T %d | %d]\t[%-15s]\t[%-12s]\t%s", e.Time, e.Step, e.Actor, e.Component, e.Message)
}

// Sink receives entries as they are appended, for instance to record them
// on disk.
type Sink interface {
	Record(entry *Entry) error
}

// Log is append only until it is frozen.
type Log struct {
	entries []*Entry
	frozen  bool
	sinks   []Sink
	sinkErr error
}

func (l *Log) AddSink(s Sink) {
	l.sinks = append(l.sinks, s)
}

func (l *Log) Append(entry *Entry) {
	if l.frozen {
		panic(fmt.Sprintf("append to frozen event log: %s", entry))
	}
	l.entries = append(l.entries, entry)
	for _, s := range l.sinks {
		if err := s.Record(entry); err != nil && l.sinkErr == nil {
			l.sinkErr = errors.WithMessage(err, "could not record event")
		}
	}
}

// Err returns the first error any sink returned.
func (l *Log) Err() error {
	return l.sinkErr
}

func (l *Log) Freeze() {
	l.frozen = true
}

func (l *Log) Frozen() bool {
	return l.frozen
}

func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns the entries in the order they were appended.  The slice
// must not be modified.
func (l *Log) Entries() []*Entry {
	return l.entries
}

// Filter selects entries, the zero Filter selects all entries.
type Filter struct {
	Actors     []string
	Components []string
	MinLevel   logging.LogLevel
	From       clock.Time
	Until      clock.Time
}

func (f *Filter) Matches(e *Entry) bool {
	if e.Level < f.MinLevel {
		return false
	}
	if e.Time < f.From || (f.Until != 0 && e.Time > f.Until) {
		return false
	}
	return matchesAny(f.Actors, e.Actor) && matchesAny(f.Components, e.Component)
}

func matchesAny(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// Render writes one line per entry selected by filter, nil selects all.
func Render(w io.Writer, entries []*Entry, filter *Filter) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if filter != nil && !filter.Matches(e) {
			continue
		}
		if _, err := fmt.Fprintln(bw, e.String()); err != nil {
			return errors.WithMessage(err, "could not write event")
		}
	}
	return errors.WithMessage(bw.Flush(), "could not flush events")
}
