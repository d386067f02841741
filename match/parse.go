package match

import (
	"fmt"
	"regexp"
	"strings"
)

// Prefixes of the expectation mini-language.
const (
	RegexPrefix = "<RE>"
	TestPrefix  = "<TEST>"
	logPrefix   = "<LOG:"
)

// testDurationPattern matches the duration suffix of a unit-test result
// line: " (0s)" or " (1.234s)".
const testDurationPattern = ` \((?:0|\d+\.\d{3})s\)`

// Parse builds a Matcher from an expectation string. Log expectations are
// laid out using format; a nil format selects Default.
func Parse(raw string, format *LogFormat) (Matcher, error) {
	if format == nil {
		format = Default
	}

	rest := raw
	level, hasLevel := cutLevel(&rest)
	isTest := false
	if !hasLevel {
		rest, isTest = strings.CutPrefix(rest, TestPrefix)
	}
	rest, isRegex := strings.CutPrefix(rest, RegexPrefix)

	body := rest
	if !isRegex && (hasLevel || isTest) {
		body = regexp.QuoteMeta(rest)
	}

	switch {
	case hasLevel:
		return newLog(format, level, body)
	case isTest:
		r, err := NewRegex(`(?:` + body + `)` + testDurationPattern)
		if err != nil {
			return nil, fmt.Errorf("match: invalid test expectation %q: %w", raw, err)
		}
		return r, nil
	case isRegex:
		return NewRegex(body)
	default:
		return Exact(body), nil
	}
}

// MustParse is like Parse but panics on error.
func MustParse(raw string, format *LogFormat) Matcher {
	m, err := Parse(raw, format)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseValue builds a Matcher from a string, a compiled *regexp.Regexp, or
// an existing Matcher.
func ParseValue(v any, format *LogFormat) (Matcher, error) {
	switch x := v.(type) {
	case Matcher:
		return x, nil
	case *regexp.Regexp:
		return FromRegexp(x), nil
	case string:
		return Parse(x, format)
	default:
		return nil, fmt.Errorf("match: unsupported expectation type %T", v)
	}
}

// ParseAll parses each expectation in order.
func ParseAll(raws []string, format *LogFormat) ([]Matcher, error) {
	ms := make([]Matcher, 0, len(raws))
	for _, raw := range raws {
		m, err := Parse(raw, format)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// cutLevel strips a leading <LOG:LEVEL> token from *s. Tokens naming an
// unknown level are left in place.
func cutLevel(s *string) (Level, bool) {
	if !strings.HasPrefix(*s, logPrefix) {
		return "", false
	}
	end := strings.IndexByte(*s, '>')
	if end < 0 {
		return "", false
	}
	level, ok := ParseLevel((*s)[len(logPrefix):end])
	if !ok {
		return "", false
	}
	*s = (*s)[end+1:]
	return level, true
}
