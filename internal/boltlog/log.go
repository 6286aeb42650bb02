// Package boltlog is the leveled logger shared by every component of the
// driver. It keeps the shape of the teacher driver's own log package: a
// package-level level switch and four severities, always writing to stderr.
// The level comes from BOLT_DRIVER_LOG (read once, at package init) or a
// SetLevel call, rather than from a logging interface wired through every
// constructor.
package boltlog

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
)

// Level controls which severities are emitted.
type Level int

const (
	// NoneLevel silences all logging output. Default.
	NoneLevel Level = iota
	// ErrorLevel logs only errors.
	ErrorLevel
	// InfoLevel logs state transitions and pool/txn lifecycle events.
	InfoLevel
	// TraceLevel additionally logs raw wire bytes (hex dumped).
	TraceLevel
)

var (
	current = NoneLevel

	traceLog = stdlog.New(os.Stderr, "[bolt][trace] ", stdlog.LstdFlags)
	infoLog  = stdlog.New(os.Stderr, "[bolt][info] ", stdlog.LstdFlags)
	warnLog  = stdlog.New(os.Stderr, "[bolt][warn] ", stdlog.LstdFlags)
	errorLog = stdlog.New(os.Stderr, "[bolt][error] ", stdlog.LstdFlags)
)

func init() {
	if v := os.Getenv("BOLT_DRIVER_LOG"); v != "" {
		SetLevel(v)
	}
}

// SetLevel parses "trace", "info", "error", or anything else as "none".
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		current = TraceLevel
	case "info":
		current = InfoLevel
	case "error":
		current = ErrorLevel
	default:
		current = NoneLevel
	}
}

// Trace logs wire-level detail: chunk boundaries, raw bytes, PULL/DISCARD
// bookkeeping. Expensive formatting should be guarded by Enabled(TraceLevel)
// at the call site before building the message.
func Trace(args ...interface{}) {
	if current >= TraceLevel {
		traceLog.Println(args...)
	}
}

// Tracef is Trace with Printf-style formatting.
func Tracef(msg string, args ...interface{}) {
	if current >= TraceLevel {
		traceLog.Printf(msg, args...)
	}
}

// Info logs session state transitions and pool/txn lifecycle events.
func Info(args ...interface{}) {
	if current >= InfoLevel {
		infoLog.Println(args...)
	}
}

// Infof is Info with Printf-style formatting.
func Infof(msg string, args ...interface{}) {
	if current >= InfoLevel {
		infoLog.Printf(msg, args...)
	}
}

// Warn logs a non-fatal condition the caller should be aware of, such as a
// configuration choice accepted for compatibility rather than acted on
// (e.g. the neo4j:// scheme, handled identically to bolt:// since this
// driver core isn't routing-aware). Visible at ErrorLevel and above, same
// as Error; at NoneLevel (logging off) it is silenced like everything else.
func Warn(args ...interface{}) {
	if current >= ErrorLevel {
		warnLog.Println(args...)
	}
}

// Warnf is Warn with Printf-style formatting.
func Warnf(msg string, args ...interface{}) {
	if current >= ErrorLevel {
		warnLog.Printf(msg, args...)
	}
}

// Error logs a recoverable or terminal failure.
func Error(args ...interface{}) {
	if current >= ErrorLevel {
		errorLog.Println(args...)
	}
}

// Errorf is Error with Printf-style formatting.
func Errorf(msg string, args ...interface{}) {
	if current >= ErrorLevel {
		errorLog.Printf(msg, args...)
	}
}

// Enabled reports whether the given level would currently be emitted, so
// callers can skip building an expensive trace message (e.g. a hex dump).
func Enabled(level Level) bool {
	return current >= level
}

// SprintByteHex formats a byte slice the way the teacher's TraceLogger did,
// for wire-level trace lines.
func SprintByteHex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 && i%16 == 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%02x ", c)
	}
	return sb.String()
}
