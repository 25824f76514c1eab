/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package world

import (
	"github.com/hyperledger-labs/mirsim/pkg/eventlog"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
)

// Longer messages would not be recycled by the arena.
const maxPooledMessage = 16384

// worldLogger stamps records with the virtual time, the step and their
// origin and appends them to the event log of the world.  Records of
// loggers without an actor are attributed to the stepping actor.
type worldLogger struct {
	world     *World
	actor     string
	component string
}

func (w *World) loggerFor(actor, component string) logging.Logger {
	return &worldLogger{
		world:     w,
		actor:     actor,
		component: component,
	}
}

func (wl *worldLogger) Log(level logging.LogLevel, text string, args ...interface{}) {
	w := wl.world
	if w.log.Frozen() {
		return
	}

	// the message is formatted on the heap of the world, not of the actor
	// which happens to be stepping
	release := w.scope.Enter(w.arena)
	defer release()

	message := logging.FormatArgs(text, args...)
	if len(message) <= maxPooledMessage {
		buf := w.scope.Allocate(len(message))
		copy(buf.Bytes(), message)
		message = string(buf.Bytes())
		w.arena.Free(buf)
	}

	actor := wl.actor
	if actor == "" {
		actor = "World"
		if w.current != nil {
			actor = w.current.name
		}
	}

	entry := &eventlog.Entry{
		Time:      w.now,
		Step:      w.steps,
		Actor:     actor,
		Component: wl.component,
		Level:     level,
		Message:   message,
	}

	w.log.Append(entry)
	if w.console != nil {
		w.console.Log(level, entry.String())
	}
}
