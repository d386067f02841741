//go:build linux || darwin

package session_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cboone/outcheck/internal/fail"
	"github.com/cboone/outcheck/internal/proc"
	"github.com/cboone/outcheck/internal/session"
)

func startShell(t *testing.T, script string, mutate ...func(*session.Config)) *session.Session {
	t.Helper()
	cfg := session.Config{
		Binary:       "/bin/sh",
		Args:         []string{"-c", script},
		Timeout:      3 * time.Second,
		PollInterval: 20 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := session.Start(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExpectWithIgnoredLogLines(t *testing.T) {
	s := startShell(t, `echo start
echo "2026-01-01 10:00:00.000 DEBUG tick"
echo "2026-01-01 10:00:00.001 INFO  ready 7"
echo "2026-01-01 10:00:00.002 DEBUG tick"`)

	require.NoError(t, s.Ignore("<LOG:DEBUG>tick"))
	require.NoError(t, s.Expect([]any{"start", `<LOG:INFO><RE>ready \d+`}, false, 0))
	_, err := s.WaitExit(0)
	require.NoError(t, err)
}

func TestInputAndExpect(t *testing.T) {
	s := startShell(t, `while read line; do echo "echo:$line"; done`)

	require.NoError(t, s.Input("one\n"))
	require.NoError(t, s.Expect([]any{"echo:one"}, false, 0))
	require.NoError(t, s.Input("two\nthree\n"))
	require.NoError(t, s.Expect([]any{"echo:two"}, true, 0))
	require.NoError(t, s.Expect([]any{"echo:three"}, false, 0))
}

func TestExpectMismatch(t *testing.T) {
	s := startShell(t, `echo actual; sleep 5`)

	err := s.Expect([]any{"expected"}, false, 0)
	require.Error(t, err)
	assert.True(t, fail.Is(err, fail.Match), "got %v", err)
}

func TestExpectTimeout(t *testing.T) {
	s := startShell(t, `sleep 5`)

	start := time.Now()
	err := s.Expect([]any{"never"}, false, 200*time.Millisecond)
	require.Error(t, err)
	assert.True(t, fail.Is(err, fail.Timeout), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExpectRejectsUnsupportedType(t *testing.T) {
	s := startShell(t, `sleep 5`)
	assert.Error(t, s.Expect([]any{42}, false, 0))
	assert.Error(t, s.Ignore(3.5))
}

func TestSkip(t *testing.T) {
	s := startShell(t, `echo a; echo b; echo c; sleep 5`)

	require.NoError(t, s.Expect([]any{"a"}, true, 0))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, s.Skip())

	err := s.Expect([]any{"b"}, false, 100*time.Millisecond)
	assert.True(t, fail.Is(err, fail.Timeout), "got %v", err)
}

func TestWaitReady(t *testing.T) {
	s := startShell(t, `echo booting; echo "Server listening on port 4321"; sleep 5`)

	groups, err := s.WaitReady()
	require.NoError(t, err)
	assert.Equal(t, []string{"4321"}, groups)
	assert.Equal(t, 4321, s.Port())
}

func TestWaitReadySilence(t *testing.T) {
	s := startShell(t, `exec sleep 30`, func(c *session.Config) {
		c.SilenceWindow = 300 * time.Millisecond
	})

	_, err := s.WaitReady()
	require.Error(t, err)
	assert.True(t, fail.Is(err, fail.Timeout), "got %v", err)
	assert.True(t, s.Process().PollStatus().Exited)
}

func TestWaitReadySilenceResetsOnEveryLine(t *testing.T) {
	s := startShell(t, `for i in 1 2 3 4 5 6; do echo tick; sleep 0.15; done
echo "listening on port 99"
sleep 5`, func(c *session.Config) {
		c.SilenceWindow = 300 * time.Millisecond
	})

	start := time.Now()
	groups, err := s.WaitReady()
	require.NoError(t, err)
	assert.Equal(t, []string{"99"}, groups)
	assert.Greater(t, time.Since(start), 600*time.Millisecond)
	assert.False(t, s.Process().PollStatus().Exited)
}

func TestWaitReadySilenceAfterOutput(t *testing.T) {
	s := startShell(t, `echo tick; echo tick; sleep 1; echo "listening on port 99"; sleep 5`, func(c *session.Config) {
		c.SilenceWindow = 300 * time.Millisecond
	})

	_, err := s.WaitReady()
	require.Error(t, err)
	assert.True(t, fail.Is(err, fail.Timeout), "got %v", err)
	assert.Contains(t, err.Error(), "| tick")
	assert.True(t, s.Process().PollStatus().Exited)
}

func TestHeavyStderrDoesNotStallExpect(t *testing.T) {
	s := startShell(t, `head -c 200000 /dev/zero | tr '\0' 'x' >&2; echo done`)

	require.NoError(t, s.Expect([]any{"done"}, false, 2*time.Second))
	require.NoError(t, s.ExpectExit(0, 2*time.Second))
}

func TestWaitReadyOutputEnds(t *testing.T) {
	s := startShell(t, `echo nope`)

	_, err := s.WaitReady()
	require.Error(t, err)
	assert.True(t, fail.Is(err, fail.Process), "got %v", err)
}

func TestWaitReadyCustomPattern(t *testing.T) {
	s := startShell(t, `echo "up"; sleep 5`, func(c *session.Config) {
		c.ReadyPattern = "up"
	})

	groups, err := s.WaitReady()
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Equal(t, 0, s.Port())

	_, err = s.Post("x", "{}")
	assert.Error(t, err)
}

func TestInvalidReadyPattern(t *testing.T) {
	_, err := session.Start(session.Config{Binary: "/bin/sh", ReadyPattern: "("})
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	var (
		mu               sync.Mutex
		gotPath, gotBody string
	)
	last := func() (string, string) {
		mu.Lock()
		defer mu.Unlock()
		return gotPath, gotBody
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotBody = r.URL.Path, string(b)
		mu.Unlock()
		if string(b) == `{"type":"bad"}` {
			w.WriteHeader(http.StatusBadRequest)
		}
		fmt.Fprintln(w, `"73fb9a5de29b"`)
	}))
	defer srv.Close()

	_, portText, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	s := startShell(t, `echo "listening on port $SERVER_PORT"; sleep 5`, func(c *session.Config) {
		c.Env = []string{"SERVER_PORT=" + portText}
	})
	_, err = s.WaitReady()
	require.NoError(t, err)
	port, _ := strconv.Atoi(portText)
	assert.Equal(t, port, s.Port())

	require.NoError(t, s.CheckQuery(`{"type":"sum"}`, 200, `"73fb9a5de29b"`))
	path, body := last()
	assert.Equal(t, "/query/iid_1", path)
	assert.Equal(t, `{"type":"sum"}`, body)

	err = s.CheckQuery(`{"type":"bad"}`, 200, `"73fb9a5de29b"`)
	require.Error(t, err)
	assert.True(t, fail.Is(err, fail.Match), "got %v", err)

	err = s.CheckQuery(`{"type":"sum"}`, 200, `<RE>"[0-9]+"`)
	require.Error(t, err)

	resp, err := s.Post("/other/path", "x")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	path, _ = last()
	assert.Equal(t, "/other/path", path)
}

func TestExpectExit(t *testing.T) {
	s := startShell(t, `echo bye; exit 4`)
	require.NoError(t, s.Expect([]any{"bye"}, false, 0))
	require.NoError(t, s.ExpectExit(4, 0))

	s = startShell(t, `exit 1`)
	err := s.ExpectExit(0, 0)
	require.Error(t, err)
	assert.True(t, fail.Is(err, fail.Process), "got %v", err)
}

func TestStop(t *testing.T) {
	s := startShell(t, `exec sleep 30`)
	require.NoError(t, s.Stop())
	assert.Equal(t, proc.Status{Exited: true, Code: -15}, s.Process().PollStatus())
	assert.NotEmpty(t, s.ID())
}

func TestCheckResult(t *testing.T) {
	res := &proc.Result{
		Code:   1,
		Stdout: "2026-01-01 10:00:00.000 INFO  upgrading to 3\nmain start\n",
		Stderr: "ERROR x must be positive\n\tat calc(main:7)\n",
	}

	require.NoError(t, session.CheckResult(res, session.Want{
		Code:         1,
		Stdout:       []string{"main start"},
		StdoutIgnore: []any{`<LOG:INFO><RE>upgrading to \d+`},
		Stderr:       []any{"ERROR x must be positive", "<RE>\tat calc\\(.*\\)"},
	}, nil))

	err := session.CheckResult(res, session.Want{Code: 0}, nil)
	require.Error(t, err)
	assert.True(t, fail.Is(err, fail.Process), "got %v", err)
	assert.Contains(t, err.Error(), "| main start")

	err = session.CheckResult(res, session.Want{Code: 1, Stderr: "other\n"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check-text stderr")

	err = session.CheckResult(res, session.Want{Code: 1, Stdout: 7}, nil)
	require.Error(t, err)
	assert.False(t, fail.IsFailure(err))
}

func TestCheckTests(t *testing.T) {
	expected := []any{
		"",
		"TEST RESULTS:",
		"",
		"<TEST>SUMMARY: 0 FAILED / 1 PASSED / 1 TOTAL",
		"",
		"***** OK *****",
	}
	res := &proc.Result{Stdout: "noise\nOK t1 (0.123s)\n\nTEST RESULTS:\n\nSUMMARY: 0 FAILED / 1 PASSED / 1 TOTAL (0.004s)\n\n***** OK *****\n"}
	require.NoError(t, session.CheckTests(res, 0, expected, nil))

	err := session.CheckTests(res, 1, expected, nil)
	assert.True(t, fail.Is(err, fail.Process), "got %v", err)

	err = session.CheckTests(&proc.Result{Stdout: "x\n"}, 0, expected, nil)
	assert.True(t, fail.Is(err, fail.Exhausted), "got %v", err)

	err = session.CheckTests(&proc.Result{Stdout: "a\nb\n"}, 0, []any{"a", "c"}, nil)
	assert.True(t, fail.Is(err, fail.Match), "got %v", err)
}

func TestRunCommand(t *testing.T) {
	res, err := session.RunCommand(context.Background(), proc.Config{
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo 73fb9a5de29b"},
	})
	require.NoError(t, err)
	assert.NoError(t, session.CheckResult(res, session.Want{Stdout: "73fb9a5de29b\n"}, nil))
}
