//go:build linux || darwin

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cboone/outcheck/internal/fail"
	"github.com/cboone/outcheck/internal/proc"
	"github.com/cboone/outcheck/internal/verify"
	"github.com/cboone/outcheck/match"
)

// Want is the expected outcome of a command run to completion.
//
// Stdout and Stderr may be nil (not checked), a string (exact text) or a
// []string or []any of line expectations. StdoutIgnore lists expectations
// for stdout lines that both checks skip.
type Want struct {
	Code         int
	Stdout       any
	Stderr       any
	StdoutIgnore []any
}

// RunCommand runs cfg to completion and captures its output.
func RunCommand(ctx context.Context, cfg proc.Config) (*proc.Result, error) {
	return proc.Run(ctx, cfg)
}

// CheckResult verifies res against want. Log expectations use format, nil
// selecting match.Default.
func CheckResult(res *proc.Result, want Want, format *match.LogFormat) error {
	ignore := verify.NewIgnoreSet(format)
	for _, e := range want.StdoutIgnore {
		if err := ignore.Register(e); err != nil {
			return err
		}
	}
	if res.Code != want.Code {
		f := fail.Processf("check-command", "exit code %d, expected %d", res.Code, want.Code)
		f.Detail = outputDetail(res)
		return f
	}
	if err := checkStream("stdout", res.Stdout, want.Stdout, ignore, format); err != nil {
		return err
	}
	return checkStream("stderr", res.Stderr, want.Stderr, nil, format)
}

// CheckTests verifies a test run: the exit code, then the last
// len(expected) lines of stdout. Earlier output, such as the log of
// individual tests, is not checked.
func CheckTests(res *proc.Result, code int, expected []any, format *match.LogFormat) error {
	if res.Code != code {
		f := fail.Processf("check-tests", "exit code %d, expected %d", res.Code, code)
		f.Detail = outputDetail(res)
		return f
	}
	ms, err := parseAll(expected, format)
	if err != nil {
		return err
	}
	lines := verify.SplitLines(res.Stdout)
	if len(lines) < len(ms) {
		f := fail.Exhaustedf("check-tests", "output has %d lines, expected at least %d", len(lines), len(ms))
		f.Detail = outputDetail(res)
		return f
	}
	err = verify.MatchLines(lines[len(lines)-len(ms):], ms)
	var f *fail.Failure
	if errors.As(err, &f) {
		f.Op = "check-tests"
		f.Detail = outputDetail(res)
	}
	return err
}

func checkStream(name, actual string, want any, ignore *verify.IgnoreSet, format *match.LogFormat) error {
	var err error
	switch w := want.(type) {
	case nil:
		return nil
	case string:
		err = verify.CheckText(actual, w, ignore)
	case []string:
		var ms []match.Matcher
		if ms, err = match.ParseAll(w, format); err == nil {
			err = verify.CheckLines(actual, ms, ignore)
		}
	case []any:
		var ms []match.Matcher
		if ms, err = parseAll(w, format); err == nil {
			err = verify.CheckLines(actual, ms, ignore)
		}
	default:
		return fmt.Errorf("%s: unsupported expectation type %T", name, want)
	}
	var f *fail.Failure
	if errors.As(err, &f) {
		f.Op = f.Op + " " + name
	}
	return err
}

func parseAll(values []any, format *match.LogFormat) ([]match.Matcher, error) {
	ms := make([]match.Matcher, 0, len(values))
	for _, v := range values {
		m, err := match.ParseValue(v, format)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func outputDetail(res *proc.Result) string {
	var b strings.Builder
	for _, s := range []struct{ name, text string }{{"stdout", res.Stdout}, {"stderr", res.Stderr}} {
		lines := verify.SplitLines(s.text)
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "    %s:", s.name)
		for _, l := range lines {
			fmt.Fprintf(&b, "\n    | %s", l)
		}
	}
	return b.String()
}
