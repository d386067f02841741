//go:build linux || darwin

package casefile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cboone/outcheck/internal/casefile"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const yamlCases = `
defaults:
  timeout: 3s
  env: ["GREETING=hello"]
cases:
  - name: text
    command: [/bin/sh, -c, 'echo "$GREETING"']
    stdout: "hello\n"
  - name: lines
    command: [/bin/sh, -c, 'echo "2026-01-01 10:00:00.000 DEBUG noise"; echo one; echo two >&2; exit 3']
    code: 3
    ignore: ["<LOG:DEBUG>noise"]
    stdout: [one]
    stderr: ["<RE>t.o"]
  - name: repl
    command: [/bin/sh, -c, 'while read l; do [ "$l" = quit ] && exit 0; echo "got:$l"; done']
    steps:
      - input: "a\n"
      - expect: ["got:a"]
      - input: "quit\n"
      - exit: 0
`

func TestLoadYAML(t *testing.T) {
	f, err := casefile.Load(writeFile(t, "cases.yaml", yamlCases))
	require.NoError(t, err)
	require.Len(t, f.Cases, 3)

	text := f.Cases[0]
	assert.Equal(t, "text", text.Name)
	assert.Equal(t, []string{"GREETING=hello"}, text.Env)
	assert.Equal(t, casefile.Duration(3*time.Second), text.Timeout)
	assert.Equal(t, "hello\n", text.Stdout.Value())
	assert.False(t, text.Stderr.IsSet())

	lines := f.Cases[1]
	assert.Equal(t, 3, lines.Code)
	assert.Equal(t, []string{"one"}, lines.Stdout.Value())

	repl := f.Cases[2]
	assert.True(t, repl.Interactive())
	require.Len(t, repl.Steps, 4)
	require.NotNil(t, repl.Steps[3].Exit)
	assert.Equal(t, 0, *repl.Steps[3].Exit)
}

const tomlCases = `
[defaults]
format = "level-time"

[[cases]]
name = "log"
command = ["/bin/sh", "-c", "echo 'INFO  2026-01-01 10:00:00.000 [main] started'"]
stdout = ["<LOG:INFO>started"]

[[cases]]
name = "text"
command = ["/bin/sh", "-c", "printf 'x\\n'"]
stdout = "x\n"
timeout = "2s"
`

func TestLoadTOML(t *testing.T) {
	f, err := casefile.Load(writeFile(t, "cases.toml", tomlCases))
	require.NoError(t, err)
	require.Len(t, f.Cases, 2)
	assert.Equal(t, "level-time", f.Cases[0].Format)
	assert.Equal(t, []string{"<LOG:INFO>started"}, f.Cases[0].Stdout.Value())
	assert.Equal(t, "x\n", f.Cases[1].Stdout.Value())
	assert.Equal(t, casefile.Duration(2*time.Second), f.Cases[1].Timeout)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"extension", "cases.json", `{}`, "unsupported extension"},
		{"unknown yaml key", "c.yaml", "cases:\n  - name: a\n    command: [x]\n    bogus: 1\n", "bogus"},
		{"unknown toml key", "c.toml", "[[cases]]\nname = \"a\"\ncommand = [\"x\"]\nbogus = 1\n", "unknown keys"},
		{"no cases", "c.yaml", "cases: []\n", "no cases"},
		{"missing command", "c.yaml", "cases:\n  - name: a\n", "missing command"},
		{"duplicate", "c.yaml", "cases:\n  - {name: a, command: [x]}\n  - {name: a, command: [x]}\n", "duplicate name"},
		{"format", "c.yaml", "cases:\n  - {name: a, command: [x], format: nope}\n", "nope"},
		{"two actions", "c.yaml", "cases:\n  - name: a\n    command: [x]\n    steps:\n      - {input: \"x\", skip: true}\n", "2 actions"},
		{"steps and stdout", "c.yaml", "cases:\n  - name: a\n    command: [x]\n    stdout: y\n    steps:\n      - skip: true\n", "only to cases without steps"},
		{"bad duration", "c.yaml", "cases:\n  - {name: a, command: [x], timeout: soon}\n", "soon"},
		{"bad stdout", "c.yaml", "cases:\n  - name: a\n    command: [x]\n    stdout: {a: b}\n", "string or a list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := casefile.Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := casefile.Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestRunFile(t *testing.T) {
	f, err := casefile.Load(writeFile(t, "cases.yaml", yamlCases))
	require.NoError(t, err)

	r := &casefile.Runner{Logger: zerolog.Nop()}
	results := r.RunFile(context.Background(), f)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, casefile.Passed, res.Status, "%s: %v", res.Case, res.Err)
		assert.Equal(t, f.Path, res.File)
	}
}

func TestRunTOMLFile(t *testing.T) {
	f, err := casefile.Load(writeFile(t, "cases.toml", tomlCases))
	require.NoError(t, err)

	r := &casefile.Runner{Logger: zerolog.Nop()}
	for _, res := range r.RunFile(context.Background(), f) {
		assert.Equal(t, casefile.Passed, res.Status, "%s: %v", res.Case, res.Err)
	}
}

func TestRunStatuses(t *testing.T) {
	r := &casefile.Runner{Logger: zerolog.Nop(), Timeout: 300 * time.Millisecond}

	failed := r.Run(context.Background(), casefile.Case{
		Name:    "wrong",
		Command: []string{"/bin/sh", "-c", "echo actual"},
		Stdout:  casefile.Expectation{Lines: []string{"expected"}},
	})
	assert.Equal(t, casefile.Failed, failed.Status)
	assert.Error(t, failed.Err)

	errored := r.Run(context.Background(), casefile.Case{
		Name:    "missing",
		Command: []string{"/nonexistent/outcheck-binary"},
	})
	assert.Equal(t, casefile.Errored, errored.Status)

	timedOut := r.Run(context.Background(), casefile.Case{
		Name:    "silent",
		Command: []string{"/bin/sh", "-c", "sleep 5"},
		Steps:   []casefile.Step{{Expect: []string{"never"}}},
	})
	assert.Equal(t, casefile.Failed, timedOut.Status)
	assert.Contains(t, timedOut.Err.Error(), "step 1")
}

func TestRunFileCancelled(t *testing.T) {
	f, err := casefile.Load(writeFile(t, "cases.yaml", yamlCases))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, res := range (&casefile.Runner{}).RunFile(ctx, f) {
		assert.Equal(t, casefile.Errored, res.Status)
	}
}

func TestRunSessionCancelled(t *testing.T) {
	r := &casefile.Runner{Logger: zerolog.Nop(), Timeout: 10 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	res := r.Run(ctx, casefile.Case{
		Name:    "stalled",
		Command: []string{"/bin/sh", "-c", "exec sleep 30"},
		Steps:   []casefile.Step{{Expect: []string{"never"}}},
	})
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, casefile.Errored, res.Status)
	assert.True(t, errors.Is(res.Err, context.Canceled), "got %v", res.Err)
}
