package verify

import (
	"github.com/cboone/outcheck/match"
)

// IgnoreSet holds expectations for lines that ordered checks should skip.
// Rules are never used up: a line may be ignored any number of times.
type IgnoreSet struct {
	format   *match.LogFormat
	matchers []match.Matcher
}

// NewIgnoreSet returns an empty set that parses log expectations with
// format (nil selects match.Default).
func NewIgnoreSet(format *match.LogFormat) *IgnoreSet {
	if format == nil {
		format = match.Default
	}
	return &IgnoreSet{format: format}
}

// Register parses expectation (a string, *regexp.Regexp, or match.Matcher)
// and adds it to the set.
func (s *IgnoreSet) Register(expectation any) error {
	m, err := match.ParseValue(expectation, s.format)
	if err != nil {
		return err
	}
	s.matchers = append(s.matchers, m)
	return nil
}

// Ignored reports whether any registered rule matches line. A nil set
// ignores nothing.
func (s *IgnoreSet) Ignored(line string) bool {
	if s == nil {
		return false
	}
	for _, m := range s.matchers {
		if m.Match(line) {
			return true
		}
	}
	return false
}

// Filter returns lines without the ignored ones.
func (s *IgnoreSet) Filter(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !s.Ignored(l) {
			out = append(out, l)
		}
	}
	return out
}

// Len returns the number of registered rules.
func (s *IgnoreSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.matchers)
}

// Format returns the log format used to parse rules.
func (s *IgnoreSet) Format() *match.LogFormat { return s.format }
