/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0

Refactored: 1
*/

package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Logger is minimal logging interface designed to be easily adaptable to any
// logging library.
type Logger interface {
	// Log is invoked with the log level, the log message, and key/value pairs
	// of any relevant log details. The keys are always strings, while the
	// values are unspecified.
	Log(level LogLevel, text string, args ...interface{})
}

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel accepts the level names as printed by LogLevel.String, in any case.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, errors.Errorf("unknown log level %q", name)
	}
}

// FormatArgs renders text followed by the key/value pairs in args.
// Byte slices are printed in base 16, a key without a value is marked %MISSING%.
func FormatArgs(text string, args ...interface{}) string {
	if len(args) == 0 {
		return text
	}

	var buf bytes.Buffer
	buf.WriteString(text)
	for i := 0; i < len(args); i++ {
		if i+1 < len(args) {
			switch args[i+1].(type) {
			case []byte:
				fmt.Fprintf(&buf, " %s=%x", args[i], args[i+1])
			default:
				fmt.Fprintf(&buf, " %s=%v", args[i], args[i+1])
			}
			i++
		} else {
			fmt.Fprintf(&buf, " %s=%%MISSING%%", args[i])
		}
	}
	return buf.String()
}

// streamLogger writes log messages to an io.Writer, one line per message.
type streamLogger struct {
	level  LogLevel
	output io.Writer
}

// NewStreamLogger returns a Logger writing all messages of at least the given level to w.
func NewStreamLogger(w io.Writer, level LogLevel) Logger {
	return &streamLogger{
		level:  level,
		output: w,
	}
}

func (sl *streamLogger) Log(level LogLevel, text string, args ...interface{}) {
	if level < sl.level {
		return
	}

	fmt.Fprintln(sl.output, FormatArgs(text, args...))
}

// The nil logger drops all messages.
type nilLogger struct{}

// The Log method of the nilLogger does nothing, effectively dropping every log message.
func (nl *nilLogger) Log(level LogLevel, text string, args ...interface{}) {
	// Do nothing.
}

var (
	// ConsoleDebugLogger implements Logger and writes all log messages to stdout.
	ConsoleDebugLogger = NewStreamLogger(os.Stdout, LevelDebug)

	// ConsoleInfoLogger implements Logger and writes all LevelInfo and above log messages to stdout.
	ConsoleInfoLogger = NewStreamLogger(os.Stdout, LevelInfo)

	// ConsoleWarnLogger implements Logger and writes all LevelWarn and above log messages to stdout.
	ConsoleWarnLogger = NewStreamLogger(os.Stdout, LevelWarn)

	// ConsoleErrorLogger implements Logger and writes all LevelError log messages to stdout.
	ConsoleErrorLogger = NewStreamLogger(os.Stdout, LevelError)

	// NilLogger drops all log messages.
	NilLogger Logger = &nilLogger{}
)
