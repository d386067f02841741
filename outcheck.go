//go:build linux || darwin

package outcheck

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cboone/outcheck/internal/fail"
	"github.com/cboone/outcheck/internal/session"
)

// Session is a handle to a program whose output is being verified.
// It is created with Start and cleaned up automatically via t.Cleanup.
type Session struct {
	t    testing.TB
	s    *session.Session
	opts options
}

// Response is the status and body returned by the program's HTTP server.
type Response = session.Response

// Start launches the binary with stdin and stdout attached to the session.
// Cleanup is automatic via t.Cleanup: a program still running at the end of
// the test is killed.
func Start(t testing.TB, binary string, userOpts ...Option) *Session {
	t.Helper()

	opts := buildOptions(t, "start", userOpts)
	path := resolveBinary(t, binary)

	s, err := session.Start(session.Config{
		Binary:           path,
		Args:             opts.args,
		Dir:              opts.dir,
		Env:              opts.env,
		PTY:              opts.pty,
		Cols:             uint16(opts.width),
		Rows:             uint16(opts.height),
		Format:           opts.format,
		Timeout:          opts.timeout,
		PollInterval:     opts.pollInterval,
		SilenceWindow:    opts.silenceWindow,
		TerminateTimeout: opts.terminateTimeout,
		ReadyPattern:     opts.readyPattern,
		QueryPath:        opts.queryPath,
		Logger:           opts.logger,
	})
	if err != nil {
		t.Fatalf("outcheck: start: %v", err)
	}

	sess := &Session{t: t, s: s, opts: opts}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return sess
}

// Input writes text to the program's stdin. No newline is added.
func (sess *Session) Input(text string) {
	sess.t.Helper()
	if err := sess.s.Input(text); err != nil {
		sess.fatal("input", err)
	}
}

// Press sends special keys to a terminal session (see WithPTY).
func (sess *Session) Press(keys ...Key) {
	sess.t.Helper()
	if !sess.opts.pty {
		sess.t.Fatalf("outcheck: press: session has no terminal; start it WithPTY")
	}
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(string(k))
	}
	sess.Input(b.String())
}

// Ignore registers expectations for stdout lines that Expect and
// ExpectLines skip, for the rest of the session. Each expectation is a
// string in the expectation language, a *regexp.Regexp, or a match.Matcher.
func (sess *Session) Ignore(expectations ...any) {
	sess.t.Helper()
	if err := sess.s.Ignore(expectations...); err != nil {
		sess.t.Fatalf("outcheck: ignore: %v", err)
	}
}

// Expect verifies that the next significant stdout lines match expected in
// order and that no further significant line is available.
func (sess *Session) Expect(expected ...any) {
	sess.t.Helper()
	sess.expect(expected, nil)
}

// ExpectLines is like Expect with per-call options such as IgnoreRest.
func (sess *Session) ExpectLines(expected []string, copts ...CheckOption) {
	sess.t.Helper()
	values := make([]any, len(expected))
	for i, e := range expected {
		values[i] = e
	}
	sess.expect(values, copts)
}

func (sess *Session) expect(expected []any, copts []CheckOption) {
	sess.t.Helper()
	co := sess.checkOptions("expect", copts)
	if err := sess.s.Expect(expected, co.ignoreRest, co.timeout); err != nil {
		sess.fatal("expect", err)
	}
}

// SkipOutput discards the stdout lines available now and returns how many
// were dropped.
func (sess *Session) SkipOutput() int {
	return sess.s.Skip()
}

// Stderr returns the stderr lines available now. They are consumed.
func (sess *Session) Stderr() *Output {
	return newOutputLines(sess.s.Process().Stderr().Drain())
}

// WaitReady waits for the program to print a line matching the ready
// pattern (see WithReadyPattern) and returns its capture groups. If the
// program stays silent for the silence window it is stopped and the test
// fails.
func (sess *Session) WaitReady() []string {
	sess.t.Helper()
	groups, err := sess.s.WaitReady()
	if err != nil {
		sess.fatal("wait-ready", err)
	}
	return groups
}

// Port returns the HTTP port captured by WaitReady.
func (sess *Session) Port() int {
	return sess.s.Port()
}

// Post sends body to path on the program's HTTP port.
func (sess *Session) Post(path, body string) Response {
	sess.t.Helper()
	resp, err := sess.s.Post(path, body)
	if err != nil {
		sess.t.Fatalf("outcheck: post: %v", err)
	}
	return resp
}

// Query posts body to the query path (see WithQueryPath).
func (sess *Session) Query(body string) Response {
	sess.t.Helper()
	resp, err := sess.s.Query(body)
	if err != nil {
		sess.t.Fatalf("outcheck: query: %v", err)
	}
	return resp
}

// CheckQuery posts body to the query path and verifies the response status
// and body. The body expectation may use the expectation language.
func (sess *Session) CheckQuery(body string, status int, expected any) {
	sess.t.Helper()
	if err := sess.s.CheckQuery(body, status, expected); err != nil {
		sess.fatal("check-query", err)
	}
}

// WaitExit waits for the program to exit and returns its exit code.
// A program killed by a signal reports the negated signal number.
func (sess *Session) WaitExit(copts ...CheckOption) int {
	sess.t.Helper()
	co := sess.checkOptions("wait-exit", copts)
	code, err := sess.s.WaitExit(co.timeout)
	if err != nil {
		sess.fatal("wait-exit", err)
	}
	return code
}

// ExpectExit waits for the program to exit with code.
func (sess *Session) ExpectExit(code int, copts ...CheckOption) {
	sess.t.Helper()
	co := sess.checkOptions("expect-exit", copts)
	if err := sess.s.ExpectExit(code, co.timeout); err != nil {
		sess.fatal("expect-exit", err)
	}
}

// Stop sends SIGTERM and waits for the program to exit. A program that
// outlives the terminate timeout is killed and the test fails.
func (sess *Session) Stop() {
	sess.t.Helper()
	if err := sess.s.Stop(); err != nil {
		sess.fatal("stop", err)
	}
}

// ID returns the session id used in log entries.
func (sess *Session) ID() string {
	return sess.s.ID()
}

func (sess *Session) checkOptions(op string, copts []CheckOption) checkOptions {
	sess.t.Helper()
	co := checkOptions{}
	for _, o := range copts {
		o(&co)
	}
	if co.timeout < 0 {
		sess.t.Fatalf("outcheck: %s: negative timeout: %v", op, co.timeout)
	}
	return co
}

func (sess *Session) fatal(op string, err error) {
	sess.t.Helper()
	fatal(sess.t, op, err)
}

// fatal fails the test with err. Verification failures carry their own
// operation name.
func fatal(t testing.TB, op string, err error) {
	t.Helper()
	if fail.IsFailure(err) {
		t.Fatalf("outcheck: %v", err)
	}
	t.Fatalf("outcheck: %s: %v", op, err)
}

func buildOptions(t testing.TB, op string, userOpts []Option) options {
	t.Helper()

	opts := defaultOptions()
	for _, o := range userOpts {
		o(&opts)
	}
	if opts.timeout < 0 {
		t.Fatalf("outcheck: %s: negative timeout: %v", op, opts.timeout)
	}
	if opts.pollInterval < 0 {
		t.Fatalf("outcheck: %s: negative poll interval: %v", op, opts.pollInterval)
	}
	if opts.pollInterval < minPollInterval {
		opts.pollInterval = minPollInterval
	}
	if opts.width <= 0 || opts.height <= 0 || opts.width > 0xffff || opts.height > 0xffff {
		t.Fatalf("outcheck: %s: invalid terminal size %dx%d", op, opts.width, opts.height)
	}
	if opts.logger == nil {
		opts.logger = envLogger(t)
	}
	return opts
}

// envLogger returns a logger writing to the test log when OUTCHECK_LOG names
// a level, and nil otherwise.
func envLogger(t testing.TB) *zerolog.Logger {
	v := os.Getenv("OUTCHECK_LOG")
	if v == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(v))
	if err != nil {
		t.Logf("outcheck: ignoring OUTCHECK_LOG: %v", err)
		return nil
	}
	w := zerolog.ConsoleWriter{Out: zerolog.NewTestWriter(t), NoColor: true, TimeFormat: time.TimeOnly}
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &l
}

// resolveBinary returns binary as is when it contains a path separator and
// looks it up in PATH otherwise.
func resolveBinary(t testing.TB, binary string) string {
	t.Helper()

	if binary == "" {
		t.Fatalf("outcheck: start: no binary specified")
	}
	if strings.ContainsRune(binary, os.PathSeparator) {
		return binary
	}
	found, err := exec.LookPath(binary)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			t.Fatalf("outcheck: start: %q not found in PATH", binary)
		}
		t.Fatalf("outcheck: start: %v", err)
	}
	return found
}
