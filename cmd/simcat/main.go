/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// simcat is a utility for reviewing simulation recordings.  It reads the
// event logs written by the drivers when a log directory is configured
// and filters them by actor, component, level and virtual time.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/eventlog"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
)

var allLevels = []string{"debug", "info", "warn", "error"}

// excludeByName is used for --actor/--notActor.  The assumption is that
// at least one of include or exclude is empty.
func excludeByName(value string, include []string, exclude []string) bool {
	if len(include) > 0 {
		for _, includeName := range include {
			if includeName == value {
				return false
			}
		}

		return true
	}

	for _, excludeName := range exclude {
		if excludeName == value {
			return true
		}
	}

	return false
}

type arguments struct {
	dir       string
	actors    []string
	notActors []string
	filter    eventlog.Filter
	count     bool
}

func (a *arguments) execute(output io.Writer) error {
	var selected []*eventlog.Entry
	err := eventlog.ReadAll(a.dir, func(entry *eventlog.Entry) error {
		if excludeByName(entry.Actor, a.actors, a.notActors) {
			return nil
		}
		if !a.filter.Matches(entry) {
			return nil
		}
		selected = append(selected, entry)
		return nil
	})
	if err != nil {
		return errors.WithMessage(err, "failed reading recording")
	}

	if a.count {
		fmt.Fprintf(output, "%d entries\n", len(selected))
		return nil
	}
	return eventlog.Render(output, selected, nil)
}

func parseArgs(args []string) (*arguments, error) {
	app := kingpin.New("simcat", "Utility for reviewing simulation event logs.")
	dir := app.Flag("dir", "The recording directory to read.").Required().ExistingDir()
	actors := app.Flag("actor", "Report entries of this actor only, may be repeated.").Strings()
	notActors := app.Flag("notActor", "Which actors to exclude. (Cannot combine with --actor)").Strings()
	components := app.Flag("component", "Report entries of this component only, may be repeated.").Strings()
	level := app.Flag("level", "The minimum level to report.").Default("debug").Enum(allLevels...)
	from := app.Flag("from", "Skip entries before this virtual time.").Default("0").Int64()
	until := app.Flag("until", "Skip entries after this virtual time, zero for no bound.").Default("0").Int64()
	count := app.Flag("count", "Only print the number of selected entries.").Default("false").Bool()

	_, err := app.Parse(args)
	if err != nil {
		return nil, err
	}

	switch {
	case len(*actors) > 0 && len(*notActors) > 0:
		return nil, errors.Errorf("cannot set both --actor and --notActor")
	case *from < 0 || *until < 0:
		return nil, errors.Errorf("virtual times must not be negative")
	case *until != 0 && *until < *from:
		return nil, errors.Errorf("--until %d is before --from %d", *until, *from)
	}

	minLevel, err := logging.ParseLevel(*level)
	if err != nil {
		return nil, err
	}

	return &arguments{
		dir:       *dir,
		actors:    *actors,
		notActors: *notActors,
		filter: eventlog.Filter{
			Components: *components,
			MinLevel:   minLevel,
			From:       clock.Time(*from),
			Until:      clock.Time(*until),
		},
		count: *count,
	}, nil
}

func main() {
	kingpin.Version("0.0.1")
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("failed to parse arguments, %s, try --help", err)
	}
	err = args.execute(os.Stdout)
	if err != nil {
		fmt.Println("")
		kingpin.Fatalf("%s", err)
	}
}
