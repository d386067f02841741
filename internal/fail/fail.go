// Package fail defines the failures reported by output verification.
// Every failure is immediate and final; nothing here is retried.
package fail

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a Failure.
type Kind int

const (
	// Match means an actual line or value did not satisfy an expectation.
	Match Kind = iota + 1
	// Timeout means no qualifying line arrived before a deadline, or the
	// program stayed silent past its silence window.
	Timeout
	// Process means the child exited unexpectedly, with an unexpected code,
	// or did not exit within its termination deadline.
	Process
	// Exhausted means output was left over when none was allowed, or an
	// expectation needed a line after the stream had ended.
	Exhausted
)

func (k Kind) String() string {
	switch k {
	case Match:
		return "mismatch"
	case Timeout:
		return "timeout"
	case Process:
		return "process"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Failure is a verification failure.
type Failure struct {
	Kind     Kind
	Op       string
	Message  string
	Actual   string
	Expected string
	// Detail carries extra diagnostics, such as recent output or a diff.
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	var b strings.Builder
	if f.Op != "" {
		b.WriteString(f.Op)
		b.WriteString(": ")
	}
	b.WriteString(f.Kind.String())
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	if f.Kind == Match || f.Expected != "" {
		fmt.Fprintf(&b, "\n    actual:   %q\n    expected: %s", f.Actual, f.Expected)
	} else if f.Actual != "" {
		fmt.Fprintf(&b, "\n    actual:   %q", f.Actual)
	}
	if f.Detail != "" {
		b.WriteString("\n")
		b.WriteString(f.Detail)
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Mismatch returns a Match failure for an actual value and its expectation.
func Mismatch(op, actual, expected string) *Failure {
	return &Failure{Kind: Match, Op: op, Actual: actual, Expected: expected}
}

// Timeoutf returns a Timeout failure.
func Timeoutf(op, format string, args ...any) *Failure {
	return &Failure{Kind: Timeout, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Processf returns a Process failure.
func Processf(op, format string, args ...any) *Failure {
	return &Failure{Kind: Process, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Exhaustedf returns an Exhausted failure.
func Exhaustedf(op, format string, args ...any) *Failure {
	return &Failure{Kind: Exhausted, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is or wraps a Failure of the given kind.
func Is(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// IsFailure reports whether err is or wraps any Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
