/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package driver runs simulations for a range of seeds and reports how
// they ended.
package driver

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/config"
	"github.com/hyperledger-labs/mirsim/pkg/eventlog"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/world"
)

// Simulation describes a scenario.  Setup registers the actors of a fresh
// world.  Done, when set, ends a run early.  Check, when set, judges the
// world after a completed run.
type Simulation struct {
	Name  string
	Setup func(w *world.World)
	Done  func(w *world.World) bool
	Check func(w *world.World) error
}

type Outcome int

const (
	Completed Outcome = iota
	Deadlock
	TimeLimitExceeded
	SafetyViolation
	NonDeterministic
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "Completed"
	case Deadlock:
		return "Deadlock"
	case TimeLimitExceeded:
		return "TimeLimitExceeded"
	case SafetyViolation:
		return "SafetyViolation"
	case NonDeterministic:
		return "NonDeterministic"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Report is the result of the simulation of one seed.
type Report struct {
	Seed        int64
	Outcome     Outcome
	Digest      uint64
	TimeElapsed clock.Duration
	Steps       uint64

	// Err explains safety violations and non-determinism.
	Err error

	Log []*eventlog.Entry
}

func (r *Report) Failed() bool {
	return r.Outcome != Completed
}

func (r *Report) String() string {
	s := fmt.Sprintf("seed %d: %s digest=%016x time=%d steps=%d", r.Seed, r.Outcome, r.Digest, r.TimeElapsed, r.Steps)
	if r.Err != nil {
		s += ": " + r.Err.Error()
	}
	return s
}

type Driver struct {
	config     *config.Config
	simulation Simulation
	out        io.Writer
}

func New(c *config.Config, simulation Simulation, out io.Writer) *Driver {
	return &Driver{
		config:     c,
		simulation: simulation,
		out:        out,
	}
}

// RunOne simulates seed once, recording into the named subdirectory of
// the log directory if one is configured.  Panics of the engine are re-raised after
// the event log was printed.
func (d *Driver) RunOne(seed int64, recording string) (report *Report, err error) {
	opts := world.Options{
		Seed:          seed,
		TimeModel:     d.config.ModelParams(),
		ArenaSize:     d.config.ArenaSize,
		StorageLogger: logging.NilLogger,
	}
	if d.config.Verbose {
		// badger logs from its own goroutines, so the console is shared under a lock
		console := logging.Synchronize(logging.NewStreamLogger(d.out, d.config.Level()))
		opts.Console = console
		opts.StorageLogger = logging.AtLeast(console, logging.LevelWarn)
	}

	var recorder *eventlog.Recorder
	if d.config.LogDir != "" {
		if recording == "" {
			recording = fmt.Sprintf("%s-%d", d.simulation.Name, seed)
		}
		recorder, err = eventlog.CreateRecorder(filepath.Join(d.config.LogDir, recording))
		if err != nil {
			return nil, errors.WithMessagef(err, "could not record seed %d", seed)
		}
		opts.Sinks = append(opts.Sinks, recorder)
		defer func() {
			if cerr := recorder.Close(); cerr != nil && err == nil {
				err = errors.WithMessage(cerr, "could not close recording")
			}
		}()
	}

	w := world.New(opts)
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(d.out, "simulation of seed %d failed: %v\n", seed, r)
			eventlog.Render(d.out, w.EventLog().Entries(), nil)
			panic(r)
		}
	}()

	d.simulation.Setup(w)
	w.Start()

	var done func() bool
	if d.simulation.Done != nil {
		done = func() bool { return d.simulation.Done(w) }
	}
	outcome := w.RunUntil(done, d.config.MaxSteps, clock.Time(d.config.TimeLimit))

	report = &Report{Seed: seed}
	switch outcome {
	case world.OutcomeDeadlock:
		report.Outcome = Deadlock
	case world.OutcomeTimeLimitExceeded:
		report.Outcome = TimeLimitExceeded
	default:
		report.Outcome = Completed
		if d.simulation.Check != nil {
			if cerr := d.simulation.Check(w); cerr != nil {
				report.Outcome = SafetyViolation
				report.Err = cerr
				w.Logger().Log(logging.LevelError, "safety violation", "err", cerr)
			}
		}
	}

	report.Digest = w.Stop()
	report.TimeElapsed = w.TimeElapsed()
	report.Steps = w.StepCount()
	report.Log = w.EventLog().Entries()
	if lerr := w.EventLog().Err(); lerr != nil {
		return report, lerr
	}
	return report, nil
}

// Run simulates every configured seed, twice when checking determinism.
func (d *Driver) Run() ([]*Report, error) {
	var reports []*Report
	for i := 0; i < d.config.Sims; i++ {
		seed := d.config.Seed + int64(i)
		report, err := d.RunOne(seed, fmt.Sprintf("%s-%d", d.simulation.Name, seed))
		if err != nil {
			return reports, err
		}

		if d.config.Det && !report.Failed() {
			again, err := d.RunOne(seed, fmt.Sprintf("%s-%d-rerun", d.simulation.Name, seed))
			if err != nil {
				return reports, err
			}
			if derr := compare(report, again); derr != nil {
				report.Outcome = NonDeterministic
				report.Err = derr
			}
		}

		reports = append(reports, report)
		fmt.Fprintln(d.out, report)
		if report.Failed() {
			eventlog.Render(d.out, report.Log, nil)
		}
	}
	return reports, nil
}

// compare explains how two runs of the same seed diverged.
func compare(first, second *Report) error {
	for i := 0; i < len(first.Log) && i < len(second.Log); i++ {
		a, b := first.Log[i].String(), second.Log[i].String()
		if a != b {
			return errors.Errorf("event logs diverge at entry %d:\n  %s\n  %s", i, a, b)
		}
	}
	if len(first.Log) != len(second.Log) {
		return errors.Errorf("event logs have %d and %d entries", len(first.Log), len(second.Log))
	}
	if first.Digest != second.Digest {
		return errors.Errorf("digests %016x and %016x differ", first.Digest, second.Digest)
	}
	return nil
}

// Main loads the configuration from args and the environment, runs the
// simulations and returns the exit code of the process.
func Main(simulation Simulation, defaults *config.Config, args []string, out io.Writer) int {
	c, err := config.Load(simulation.Name, defaults, args, nil)
	if err != nil {
		fmt.Fprintf(out, "%s: %s, try --help\n", simulation.Name, err)
		return 2
	}

	reports, err := New(c, simulation, out).Run()
	if err != nil {
		fmt.Fprintf(out, "%s: %s\n", simulation.Name, err)
		return 1
	}
	for _, r := range reports {
		if r.Failed() {
			return 1
		}
	}
	return 0
}
