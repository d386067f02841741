package match

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Level is a log level as printed by the program under test.
type Level string

// Levels recognized by the <LOG:LEVEL> prefix.
const (
	Debug Level = "DEBUG"
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

var levels = []Level{Debug, Info, Warn, Error}

// timePattern matches timestamps such as "2024-06-01 09:00:00.000".
const timePattern = `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}`

// tagPattern matches the inside of a bracketed chain tag.
const tagPattern = `[^\]]*`

// Built-in formats. TimeLevel is the default.
var (
	TimeLevel = MustLogFormat("time-level", "{time} {level:-5} {message}")
	LevelTime = MustLogFormat("level-time", "{level:-5} {time} [{tag}] {message}")
)

// Default is the format used when none is configured.
var Default = TimeLevel

// Formats lists the built-in formats by name.
func Formats() map[string]*LogFormat {
	return map[string]*LogFormat{
		TimeLevel.Name(): TimeLevel,
		LevelTime.Name(): LevelTime,
	}
}

// FormatByName returns a built-in format. An empty name selects Default.
func FormatByName(name string) (*LogFormat, error) {
	if name == "" {
		return Default, nil
	}
	if f, ok := Formats()[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("match: unknown log format %q", name)
}

// LogFormat is an immutable template describing how a log line is laid out.
// Slots are written as {time}, {level}, {message}, and {tag}; the level slot
// accepts a width, {level:-5}, which left-justifies the level to 5 columns.
type LogFormat struct {
	name     string
	template string
	segments []segment
}

type segment struct {
	literal string
	slot    string
	width   int
}

// NewLogFormat parses and validates a template. Validation renders a sample
// line and checks that the derived pattern matches it.
func NewLogFormat(name, template string) (*LogFormat, error) {
	segs, err := parseTemplate(template)
	if err != nil {
		return nil, fmt.Errorf("match: log format %q: %w", name, err)
	}
	f := &LogFormat{name: name, template: template, segments: segs}

	sample := f.render("2024-01-01 10:00:00.123", Info, "sample", "sample message (1+1)")
	re, err := regexp.Compile(anchor(f.Pattern(Info, regexp.QuoteMeta("sample message (1+1)"))))
	if err != nil {
		return nil, fmt.Errorf("match: log format %q: %w", name, err)
	}
	if !re.MatchString(sample) {
		return nil, fmt.Errorf("match: log format %q: derived pattern does not match sample line %q", name, sample)
	}
	return f, nil
}

// MustLogFormat is like NewLogFormat but panics on error.
func MustLogFormat(name, template string) *LogFormat {
	f, err := NewLogFormat(name, template)
	if err != nil {
		panic(err)
	}
	return f
}

// Name returns the format name.
func (f *LogFormat) Name() string { return f.name }

// Template returns the template text.
func (f *LogFormat) Template() string { return f.template }

// Pattern returns the unanchored regular expression for a line at level whose
// message matches messagePattern. The caller escapes literal messages.
func (f *LogFormat) Pattern(level Level, messagePattern string) string {
	var b strings.Builder
	for _, s := range f.segments {
		switch s.slot {
		case "":
			b.WriteString(regexp.QuoteMeta(s.literal))
		case "time":
			b.WriteString(timePattern)
		case "level":
			b.WriteString(regexp.QuoteMeta(pad(string(level), s.width)))
		case "tag":
			b.WriteString(tagPattern)
		case "message":
			b.WriteString(`(?:` + messagePattern + `)`)
		}
	}
	return b.String()
}

func (f *LogFormat) render(ts string, level Level, tag, message string) string {
	var b strings.Builder
	for _, s := range f.segments {
		switch s.slot {
		case "":
			b.WriteString(s.literal)
		case "time":
			b.WriteString(ts)
		case "level":
			b.WriteString(pad(string(level), s.width))
		case "tag":
			b.WriteString(tag)
		case "message":
			b.WriteString(message)
		}
	}
	return b.String()
}

func (f *LogFormat) String() string { return f.name }

func parseTemplate(template string) ([]segment, error) {
	var segs []segment
	seen := map[string]int{}
	rest := template
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			segs = append(segs, segment{literal: rest})
			break
		}
		if open > 0 {
			segs = append(segs, segment{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated slot in %q", template)
		}
		slot := rest[open+1 : open+end]
		rest = rest[open+end+1:]

		name, width := slot, 0
		if i := strings.IndexByte(slot, ':'); i >= 0 {
			name = slot[:i]
			w, err := strconv.Atoi(strings.TrimPrefix(slot[i+1:], "-"))
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("invalid width in slot {%s}", slot)
			}
			width = w
		}
		switch name {
		case "time", "level", "message", "tag":
		default:
			return nil, fmt.Errorf("unknown slot {%s}", slot)
		}
		seen[name]++
		segs = append(segs, segment{slot: name, width: width})
	}

	for _, required := range []string{"time", "level", "message"} {
		if seen[required] != 1 {
			return nil, fmt.Errorf("slot {%s} must appear exactly once, found %d", required, seen[required])
		}
	}
	if seen["tag"] > 1 {
		return nil, fmt.Errorf("slot {tag} may appear at most once")
	}
	return segs, nil
}

// pad left-justifies s to width columns, truncating when longer.
func pad(s string, width int) string {
	if width <= 0 {
		return s
	}
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// ParseLevel returns the Level named by s.
func ParseLevel(s string) (Level, bool) {
	for _, l := range levels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}
