package outcheck

import (
	"strings"
)

// Output is an immutable capture of a program's output lines.
type Output struct {
	lines []string
	raw   string
}

// newOutput creates an Output from raw stream text. It normalizes line
// endings and trims the final newline.
func newOutput(raw string) *Output {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimSuffix(raw, "\n")

	var lines []string
	if raw != "" {
		lines = strings.Split(raw, "\n")
	}
	return &Output{lines: lines, raw: raw}
}

func newOutputLines(lines []string) *Output {
	return &Output{lines: lines, raw: strings.Join(lines, "\n")}
}

// String returns the full output as a string, without the final newline.
func (o *Output) String() string {
	return o.raw
}

// Lines returns a copy of the output as a slice of strings, one per line.
func (o *Output) Lines() []string {
	cp := make([]string, len(o.lines))
	copy(cp, o.lines)
	return cp
}

// Line returns a single line (0-indexed).
// Panics if n is out of range.
func (o *Output) Line(n int) string {
	return o.lines[n]
}

// Len returns the number of lines.
func (o *Output) Len() int {
	return len(o.lines)
}

// Contains reports whether the output contains the substring.
func (o *Output) Contains(substr string) bool {
	return strings.Contains(o.raw, substr)
}
