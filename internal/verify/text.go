package verify

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/cboone/outcheck/internal/fail"
	"github.com/cboone/outcheck/match"
)

// SplitLines splits captured output into lines. A final newline does not
// produce an empty trailing line, and carriage returns before a newline are
// dropped.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// CheckText compares captured output with expected after dropping ignored
// lines. The comparison is exact, newlines included.
func CheckText(actual, expected string, ignore *IgnoreSet) error {
	got := actual
	if ignore.Len() > 0 {
		got = strings.Join(ignore.Filter(strings.Split(actual, "\n")), "\n")
	}
	if got == expected {
		return nil
	}
	f := fail.Mismatch("check-text", got, fmt.Sprintf("%q", expected))
	f.Detail = "    diff (-expected +actual):\n" +
		cmp.Diff(strings.Split(expected, "\n"), strings.Split(got, "\n"))
	return f
}

// CheckLines matches the significant lines of captured output against
// expected in order. The output must contain exactly as many significant
// lines as there are expectations.
func CheckLines(actual string, expected []match.Matcher, ignore *IgnoreSet) error {
	return MatchLines(ignore.Filter(SplitLines(actual)), expected)
}

// MatchLines matches lines against expected one to one.
func MatchLines(lines []string, expected []match.Matcher) error {
	for i, m := range expected {
		if i >= len(lines) {
			f := fail.Exhaustedf("check-lines", "output has %d lines, expected %d", len(lines), len(expected))
			f.Expected = m.String()
			return f
		}
		if !m.Match(lines[i]) {
			f := fail.Mismatch("check-lines", lines[i], m.String())
			f.Message = fmt.Sprintf("line %d of %d", i+1, len(expected))
			return f
		}
	}
	if len(lines) > len(expected) {
		f := fail.Exhaustedf("check-lines", "unexpected trailing output")
		f.Actual = lines[len(expected)]
		return f
	}
	return nil
}
