//go:build linux || darwin

package outcheck

import (
	"context"
	"testing"
	"time"

	"github.com/cboone/outcheck/internal/proc"
	"github.com/cboone/outcheck/internal/session"
)

// Result is the outcome of a command run to completion by RunCommand.
type Result struct {
	// Code is the exit code. A command killed by a signal reports the
	// negated signal number.
	Code     int
	Stdout   *Output
	Stderr   *Output
	Duration time.Duration

	res *proc.Result
}

// Want is the expected outcome of a command checked by CheckCommand.
//
// Stdout and Stderr may be nil (not checked), a string (exact text) or a
// []string or []any of line expectations. StdoutIgnore lists expectations
// for stdout lines both checks skip.
type Want = session.Want

// RunCommand runs the binary to completion, feeding it the WithStdin input,
// and returns its exit code and output. WithTimeout bounds the whole run.
// A non-zero exit does not fail the test.
func RunCommand(t testing.TB, binary string, userOpts ...Option) *Result {
	t.Helper()
	r, _ := runCommand(t, binary, userOpts)
	return r
}

func runCommand(t testing.TB, binary string, userOpts []Option) (*Result, options) {
	t.Helper()

	opts := buildOptions(t, "run", userOpts)
	path := resolveBinary(t, binary)

	ctx := context.Background()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	res, err := session.RunCommand(ctx, proc.Config{
		Binary: path,
		Args:   opts.args,
		Dir:    opts.dir,
		Env:    opts.env,
		Stdin:  opts.stdin,
		Logger: opts.logger,
	})
	if err != nil {
		t.Fatalf("outcheck: run: %v", err)
	}
	return &Result{
		Code:     res.Code,
		Stdout:   newOutput(res.Stdout),
		Stderr:   newOutput(res.Stderr),
		Duration: res.Duration,
		res:      res,
	}, opts
}

// CheckCommand runs the binary to completion and verifies its exit code and
// output against want. The exit code is checked first.
func CheckCommand(t testing.TB, binary string, want Want, userOpts ...Option) *Result {
	t.Helper()

	r, opts := runCommand(t, binary, userOpts)
	if err := session.CheckResult(r.res, want, opts.format); err != nil {
		fatal(t, "check-command", err)
	}
	return r
}

// CheckTests runs a unit test binary and verifies its exit code and the
// final lines of its report, such as:
//
//	outcheck.CheckTests(t, "./my-tests", 0, []string{
//		"TEST RESULTS:",
//		"",
//		"<RE>SUMMARY: 0 FAILED / \\d+ PASSED / \\d+ TOTAL \\(.*\\)",
//		"",
//		"***** OK *****",
//	})
func CheckTests(t testing.TB, binary string, code int, expected []string, userOpts ...Option) *Result {
	t.Helper()

	r, opts := runCommand(t, binary, userOpts)
	values := make([]any, len(expected))
	for i, e := range expected {
		values[i] = e
	}
	if err := session.CheckTests(r.res, code, values, opts.format); err != nil {
		fatal(t, "check-tests", err)
	}
	return r
}
