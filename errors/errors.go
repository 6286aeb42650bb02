// Package errors is the driver's error type. It keeps the teacher driver's
// stack-capturing wrap/new error (errors.New, errors.Wrap, Inner/InnerMost)
// and adds the typed Kind/Classification needed to drive the managed-retry
// and FAILED/DEFUNCT transition decisions described in the driver's error
// handling design.
package errors

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Kind classifies an Error for the purposes of retry and connection
// lifecycle decisions.
type Kind int

const (
	// KindUnknown is the zero value: an error with no driver-specific
	// classification (e.g. a plain wrapped stdlib error).
	KindUnknown Kind = iota
	// KindConnection covers DNS/TCP/TLS failures and EOF. Retryable at
	// the pool level for managed transactions.
	KindConnection
	// KindProtocol covers framing/PackStream violations, unexpected
	// message tags, and handshake/version-negotiation failures.
	// Non-retryable; the owning connection becomes DEFUNCT.
	KindProtocol
	// KindAuth covers HELLO/LOGON FAILURE. Non-retryable.
	KindAuth
	// KindNeo4j covers a server FAILURE response; see Classification.
	KindNeo4j
	// KindDeserialization covers a value that cannot be coerced to a
	// requested shape.
	KindDeserialization
	// KindPoolExhausted covers an acquire-timeout from the connection
	// pool.
	KindPoolExhausted
	// KindCancelled covers an operation aborted by the caller's context.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "ConnectionError"
	case KindProtocol:
		return "ProtocolError"
	case KindAuth:
		return "AuthError"
	case KindNeo4j:
		return "Neo4jError"
	case KindDeserialization:
		return "DeserializationError"
	case KindPoolExhausted:
		return "PoolExhausted"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Error"
	}
}

// Classification is the server's own retry guidance for a KindNeo4j error,
// parsed from the second dot-segment of its error code
// (Neo.<Classification>.<Category>.<Title>).
type Classification int

const (
	// ClassificationNone applies to non-KindNeo4j errors.
	ClassificationNone Classification = iota
	// ClassificationClientError is the caller's fault (bad Cypher,
	// constraint violation) — never retried.
	ClassificationClientError
	// ClassificationTransientError may succeed if retried (deadlock,
	// leader switch, service unavailable).
	ClassificationTransientError
	// ClassificationDatabaseError is an internal server fault — not
	// retried by the managed-transaction runner.
	ClassificationDatabaseError
)

// Error is the driver's error type: a message, an optional wrapped cause,
// a capture of the stack at the outermost New/Wrap call, and a
// classification used by connection-state and retry logic.
type Error struct {
	msg            string
	wrapped        error
	stack          []byte
	kind           Kind
	classification Classification
	code           string
}

// New creates a new unclassified Error with a captured stack trace.
func New(msg string, args ...interface{}) *Error {
	return &Error{
		msg:   fmt.Sprintf(msg, args...),
		stack: debug.Stack(),
	}
}

// Wrap wraps err with an additional message. If err is already an *Error
// its Kind is carried forward and no new stack is captured (the outermost
// frame is the interesting one); otherwise a fresh stack is captured here.
func Wrap(err error, msg string, args ...interface{}) *Error {
	if e, ok := err.(*Error); ok {
		return &Error{
			msg:     fmt.Sprintf(msg, args...),
			wrapped: e,
			kind:    e.kind,
		}
	}
	return &Error{
		msg:     fmt.Sprintf(msg, args...),
		wrapped: err,
		stack:   debug.Stack(),
	}
}

// Classify wraps err and attaches kind, for the boundary where a raw I/O
// or protocol failure is first recognised as one of the driver's kinds.
func Classify(err error, kind Kind) *Error {
	e := Wrap(err, "%s", err.Error())
	e.kind = kind
	return e
}

// NewNeo4j builds a KindNeo4j error from a FAILURE message's code and
// message fields, classifying it from the code's second dot-segment.
func NewNeo4j(code, message string) *Error {
	return &Error{
		msg:            fmt.Sprintf("%s: %s", code, message),
		stack:          debug.Stack(),
		kind:           KindNeo4j,
		classification: classify(code),
		code:           code,
	}
}

func classify(code string) Classification {
	parts := strings.Split(code, ".")
	if len(parts) < 2 {
		return ClassificationDatabaseError
	}
	switch parts[1] {
	case "ClientError":
		return ClassificationClientError
	case "TransientError":
		return ClassificationTransientError
	default:
		return ClassificationDatabaseError
	}
}

// Error implements the error interface.
func (e *Error) Error() string { return e.error(0) }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Classification returns the Neo4j-server classification, valid only when
// Kind() == KindNeo4j.
func (e *Error) Classification() Classification { return e.classification }

// Code returns the raw Neo4j error code (e.g.
// "Neo.TransientError.Transaction.LockClientStopped"), empty for
// non-KindNeo4j errors.
func (e *Error) Code() string { return e.code }

// Inner returns the inner error wrapped by this error
func (e *Error) Inner() error {
	return e.wrapped
}

// InnerMost returns the innermost error wrapped by this error
func (e *Error) InnerMost() error {
	if e.wrapped == nil {
		return e
	}

	if inner, ok := e.wrapped.(*Error); ok {
		return inner.InnerMost()
	}

	return e.wrapped
}

func (e *Error) error(level int) string {
	msg := fmt.Sprintf("%s%s", strings.Repeat("\t", level), e.msg)
	if e.wrapped != nil {
		if wrappedErr, ok := e.wrapped.(*Error); ok {
			msg += fmt.Sprintf("\n%s", wrappedErr.error(level+1))
		} else {
			msg += fmt.Sprintf("\nInternal Error(%T):%s", e.wrapped, e.wrapped.Error())
		}
	}

	if level == 0 && len(e.stack) > 0 {
		msg += fmt.Sprintf("\n\n Stack Trace:\n\n%s", e.stack)
	}

	return msg
}

// IsRetryable reports whether a managed transaction runner should retry
// the operation that produced err: KindConnection errors (connection loss
// during BEGIN/RUN), and KindNeo4j errors classified as transient by the
// server. Client errors, auth failures, protocol violations,
// deserialization errors, and cancellation are never retried.
func IsRetryable(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	switch e.kind {
	case KindConnection:
		return true
	case KindNeo4j:
		return e.classification == ClassificationTransientError
	default:
		return false
	}
}

// KindOf extracts the Kind from err, or KindUnknown if err is not an
// *Error produced by this package.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.kind
	}
	return KindUnknown
}
