// Package casefile loads declarative output checks from YAML or TOML files.
//
// A case either runs a command to completion and checks its exit code and
// output, or, when it has steps, drives an interactive session one step at
// a time.
package casefile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/cboone/outcheck/match"
)

// File is a parsed case file.
type File struct {
	Path     string   `yaml:"-" toml:"-"`
	Defaults Defaults `yaml:"defaults" toml:"defaults"`
	Cases    []Case   `yaml:"cases" toml:"cases"`
}

// Defaults apply to every case that does not set the field itself.
type Defaults struct {
	Dir     string   `yaml:"dir" toml:"dir"`
	Env     []string `yaml:"env" toml:"env"`
	Format  string   `yaml:"format" toml:"format"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// Case is one check.
type Case struct {
	Name    string   `yaml:"name" toml:"name"`
	Command []string `yaml:"command" toml:"command"`
	Dir     string   `yaml:"dir" toml:"dir"`
	Env     []string `yaml:"env" toml:"env"`
	Format  string   `yaml:"format" toml:"format"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
	PTY     bool     `yaml:"pty" toml:"pty"`

	// Run-to-completion checks.
	Stdin  string      `yaml:"stdin" toml:"stdin"`
	Code   int         `yaml:"code" toml:"code"`
	Stdout Expectation `yaml:"stdout" toml:"stdout"`
	Stderr Expectation `yaml:"stderr" toml:"stderr"`
	// Ignore lists stdout lines skipped by every check of the case.
	Ignore []string `yaml:"ignore" toml:"ignore"`

	// Steps turn the case into an interactive session.
	Steps []Step `yaml:"steps" toml:"steps"`
}

// Interactive reports whether the case drives a session.
func (c Case) Interactive() bool { return len(c.Steps) > 0 }

// Step is one action of an interactive case. Exactly one action is set.
type Step struct {
	Input      string   `yaml:"input" toml:"input"`
	Expect     []string `yaml:"expect" toml:"expect"`
	IgnoreRest bool     `yaml:"ignore_rest" toml:"ignore_rest"`
	Ignore     []string `yaml:"ignore" toml:"ignore"`
	Skip       bool     `yaml:"skip" toml:"skip"`
	WaitReady  bool     `yaml:"wait_ready" toml:"wait_ready"`
	Query      *Query   `yaml:"query" toml:"query"`
	Exit       *int     `yaml:"exit" toml:"exit"`
	Stop       bool     `yaml:"stop" toml:"stop"`
}

// Query posts a body to the session's query path.
type Query struct {
	Body     string `yaml:"body" toml:"body"`
	Status   int    `yaml:"status" toml:"status"`
	Response string `yaml:"response" toml:"response"`
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Input != "", s.Expect != nil, len(s.Ignore) > 0, s.Skip, s.WaitReady, s.Query != nil, s.Exit != nil, s.Stop,
	} {
		if set {
			n++
		}
	}
	return n
}

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Expectation is either a whole text or a list of line expectations.
type Expectation struct {
	Text  *string
	Lines []string
}

// IsSet reports whether the expectation was given.
func (e Expectation) IsSet() bool { return e.Text != nil || e.Lines != nil }

// Value returns nil, the text, or the lines.
func (e Expectation) Value() any {
	switch {
	case e.Text != nil:
		return *e.Text
	case e.Lines != nil:
		return e.Lines
	}
	return nil
}

func (e *Expectation) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		e.Text = &s
		return nil
	case yaml.SequenceNode:
		lines := []string{}
		if err := node.Decode(&lines); err != nil {
			return err
		}
		e.Lines = lines
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
}

func (e *Expectation) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case string:
		e.Text = &x
		return nil
	case []any:
		lines := make([]string, 0, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("item %d: expected a string, got %T", i, item)
			}
			lines = append(lines, s)
		}
		e.Lines = lines
		return nil
	}
	return fmt.Errorf("expected a string or an array of strings, got %T", v)
}

// Load reads a case file. The format is chosen by extension: .yaml, .yml
// or .toml. Unknown keys are errors.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading case file: %w", err)
	}

	f := &File{Path: path}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil {
			return nil, fmt.Errorf("parsing case file %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), f)
		if err != nil {
			return nil, fmt.Errorf("parsing case file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("parsing case file %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("case file %s: unsupported extension %q", path, ext)
	}

	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("case file %s: %w", path, err)
	}
	return f, nil
}

func (f *File) applyDefaults() {
	base := filepath.Dir(f.Path)
	for i := range f.Cases {
		c := &f.Cases[i]
		if c.Dir == "" {
			c.Dir = f.Defaults.Dir
		}
		if c.Dir != "" && !filepath.IsAbs(c.Dir) && f.Path != "" {
			c.Dir = filepath.Join(base, c.Dir)
		}
		c.Env = append(append([]string(nil), f.Defaults.Env...), c.Env...)
		if c.Format == "" {
			c.Format = f.Defaults.Format
		}
		if c.Timeout == 0 {
			c.Timeout = f.Defaults.Timeout
		}
	}
}

// Validate checks that every case can run.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, c := range f.Cases {
		name := c.Name
		if name == "" {
			errs = append(errs, fmt.Errorf("case %d: missing name", i+1))
			name = fmt.Sprintf("#%d", i+1)
		} else if seen[name] {
			errs = append(errs, fmt.Errorf("case %q: duplicate name", name))
		}
		seen[name] = true
		if len(c.Command) == 0 {
			errs = append(errs, fmt.Errorf("case %q: missing command", name))
		}
		if _, err := match.FormatByName(c.Format); err != nil {
			errs = append(errs, fmt.Errorf("case %q: %w", name, err))
		}
		if c.Interactive() && (c.Stdin != "" || c.Stdout.IsSet() || c.Stderr.IsSet()) {
			errs = append(errs, fmt.Errorf("case %q: stdin, stdout and stderr apply only to cases without steps", name))
		}
		for j, s := range c.Steps {
			if n := s.actions(); n != 1 {
				errs = append(errs, fmt.Errorf("case %q: step %d: %d actions, expected exactly one", name, j+1, n))
			}
			if s.IgnoreRest && s.Expect == nil {
				errs = append(errs, fmt.Errorf("case %q: step %d: ignore_rest needs expect", name, j+1))
			}
		}
	}
	if len(f.Cases) == 0 {
		errs = append(errs, errors.New("no cases"))
	}
	return errors.Join(errs...)
}
