// Package enginerr provides the engine's error taxonomy and wrapping helpers.
package enginerr

import (
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies an engine error per the failure taxonomy the scheduler,
// generator, and persistence bridge use to decide how to react.
type Kind string

const (
	// ConfigInvalid marks a nonsensical session configuration. Fatal before start.
	ConfigInvalid Kind = "ConfigInvalid"
	// StructureBuildFailed marks exhausted random atom placement. Non-fatal, counted.
	StructureBuildFailed Kind = "StructureBuildFailed"
	// OperatorFailed marks a genetic operator that exhausted its retry budget.
	OperatorFailed Kind = "OperatorFailed"
	// ConnectionFault marks a remote-exec pool setup or teardown failure.
	ConnectionFault Kind = "ConnectionFault"
	// PluginFailure marks an optimizer plugin rejecting input or output.
	PluginFailure Kind = "PluginFailure"
	// CorruptState marks a persistence bridge load that cannot be trusted.
	CorruptState Kind = "CorruptState"
	// TransportFailure marks a remote-exec I/O failure.
	TransportFailure Kind = "TransportFailure"
)

// ConnectionFaultKind further classifies a ConnectionFault error.
type ConnectionFaultKind string

const (
	ConnError    ConnectionFaultKind = "ConnectionError"
	UnknownHost  ConnectionFaultKind = "UnknownHost"
	BadPassword  ConnectionFaultKind = "BadPassword"
	UnknownError ConnectionFaultKind = "UnknownError"
)

// Error is the engine's single error type: a Kind, an optional nested
// ConnectionFaultKind, contextual Op/Component strings, a wrapped cause, and
// a captured stack trace.
type Error struct {
	Kind      Kind
	ConnKind  ConnectionFaultKind
	Message   string
	Op        string
	Component string
	Err       error
	Stack     []string
}

func (e *Error) Error() string {
	var b strings.Builder

	if e.Kind != "" {
		b.WriteString(string(e.Kind))
		if e.ConnKind != "" {
			b.WriteString("/")
			b.WriteString(string(e.ConnKind))
		}
	}

	writeField := func(label, val string) {
		if val == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(label)
		b.WriteString("=")
		b.WriteString(val)
	}
	writeField("component", e.Component)
	writeField("op", e.Op)

	if e.Message != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Message)
	}

	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying error, letting errors.Is/errors.As traverse
// the chain with the standard library.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

func (e *Error) WithConnKind(k ConnectionFaultKind) *Error {
	e.ConnKind = k
	return e
}

// StackTrace returns the stack trace captured at construction time.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New creates a new Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Stack: getStackTrace()}
}

// Newf creates a new Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Stack: getStackTrace()}
}

// Wrap wraps err as an Error of the given kind, preserving its message if one
// already exists on err.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err, Message: msg, Stack: getStackTrace()}
}

// Wrapf wraps err as an Error of the given kind with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err, Message: fmt.Sprintf(format, args...), Stack: getStackTrace()}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok=true.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}

func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/enginerr") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}

	return stack
}
