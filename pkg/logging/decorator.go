/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

type decoratedLogger struct {
	logger Logger
	prefix string
	args   []interface{}
}

func (dl *decoratedLogger) Log(level LogLevel, text string, args ...interface{}) {
	passedArgs := make([]interface{}, 0, len(dl.args)+len(args))
	passedArgs = append(passedArgs, dl.args...)
	passedArgs = append(passedArgs, args...)
	dl.logger.Log(level, dl.prefix+text, passedArgs...)
}

// Decorate returns a Logger that prefixes every message with prefix and
// prepends args to the key/value pairs of every message.
func Decorate(logger Logger, prefix string, args ...interface{}) Logger {
	return &decoratedLogger{
		prefix: prefix,
		logger: logger,
		args:   args,
	}
}

type leveledLogger struct {
	logger Logger
	level  LogLevel
}

func (ll *leveledLogger) Log(level LogLevel, text string, args ...interface{}) {
	if level < ll.level {
		return
	}
	ll.logger.Log(level, text, args...)
}

// AtLeast drops every message below level before passing it on to logger.
func AtLeast(logger Logger, level LogLevel) Logger {
	return &leveledLogger{
		logger: logger,
		level:  level,
	}
}
