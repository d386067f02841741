// Package match turns expectation strings into line matchers.
//
// An expectation is either literal text, a regular expression, or a log
// line described by level and message. The mini-language is:
//
//	text                  exact equality
//	<RE>pattern           full-string regular expression
//	<LOG:INFO>message     log line at INFO with a literal message
//	<LOG:WARN><RE>re      log line at WARN whose message matches re
//	<TEST>OK name         unit-test result line "OK name (0.123s)"
//
// Log expectations are expanded through a [LogFormat], which places the
// timestamp, level, and message the way the program under test prints them.
package match

import (
	"fmt"
	"regexp"
)

// A Matcher reports whether a single line satisfies an expectation.
// String returns a description for failure messages.
//
// The set of implementations is closed: [Exact], [*Regex], and [*Log].
type Matcher interface {
	Match(line string) bool
	String() string
	sealed()
}

// Exact matches a line that is character-for-character equal.
type Exact string

// Match implements Matcher.
func (e Exact) Match(line string) bool { return line == string(e) }

func (e Exact) String() string { return fmt.Sprintf("%q", string(e)) }

func (Exact) sealed() {}

// Regex matches a line that fully matches a regular expression.
// Partial matches do not count.
type Regex struct {
	source string
	re     *regexp.Regexp
}

// NewRegex compiles pattern anchored at both ends.
func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile(anchor(pattern))
	if err != nil {
		return nil, fmt.Errorf("match: invalid pattern %q: %w", pattern, err)
	}
	return &Regex{source: pattern, re: re}, nil
}

// MustRegex is like NewRegex but panics on an invalid pattern.
func MustRegex(pattern string) *Regex {
	r, err := NewRegex(pattern)
	if err != nil {
		panic(err)
	}
	return r
}

// FromRegexp wraps an already compiled expression. The expression is
// re-anchored so that it must match the whole line.
func FromRegexp(re *regexp.Regexp) *Regex {
	return MustRegex(re.String())
}

// Match implements Matcher.
func (r *Regex) Match(line string) bool { return r.re.MatchString(line) }

// Submatches returns the capture groups of a full match, or nil.
func (r *Regex) Submatches(line string) []string {
	m := r.re.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	return m[1:]
}

// Pattern returns the unanchored source pattern.
func (r *Regex) Pattern() string { return r.source }

func (r *Regex) String() string { return fmt.Sprintf("regexp %q", r.source) }

func (*Regex) sealed() {}

// Log matches a log line of a given level whose message matches a pattern,
// laid out by a LogFormat.
type Log struct {
	Level   Level
	Message string // message pattern, already escaped when literal
	Format  *LogFormat
	re      *regexp.Regexp
}

func newLog(format *LogFormat, level Level, message string) (*Log, error) {
	pattern := format.Pattern(level, message)
	re, err := regexp.Compile(anchor(pattern))
	if err != nil {
		return nil, fmt.Errorf("match: invalid log message pattern %q: %w", message, err)
	}
	return &Log{Level: level, Message: message, Format: format, re: re}, nil
}

// Match implements Matcher.
func (l *Log) Match(line string) bool { return l.re.MatchString(line) }

func (l *Log) String() string {
	return fmt.Sprintf("%s log line (%s) with message %q", l.Level, l.Format.Name(), l.Message)
}

func (*Log) sealed() {}

func anchor(pattern string) string {
	return `^(?:` + pattern + `)$`
}
