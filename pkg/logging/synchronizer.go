/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import "sync"

type synchronizedLogger struct {
	logger Logger
	mutex  sync.Mutex
}

func (sl *synchronizedLogger) Log(level LogLevel, text string, args ...interface{}) {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	sl.logger.Log(level, text, args...)
}

// Synchronize makes logger safe for use by components that log from their own goroutines,
// such as the storage engine's background compaction.  Loggers which are
// synchronized already are returned as they are, so all wrappers of one
// logger share a single lock.
func Synchronize(logger Logger) Logger {
	if sl, ok := logger.(*synchronizedLogger); ok {
		return sl
	}
	return &synchronizedLogger{
		logger: logger,
	}
}
