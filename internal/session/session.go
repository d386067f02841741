//go:build linux || darwin

// Package session drives an interactive child: it feeds input, verifies
// output in order, waits for a server to come up and talks to it over HTTP.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cboone/outcheck/internal/fail"
	"github.com/cboone/outcheck/internal/proc"
	"github.com/cboone/outcheck/internal/verify"
	"github.com/cboone/outcheck/match"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultSilenceWindow = 20 * time.Second
	DefaultReadyPattern  = `.*[Ll]istening on port ([0-9]+).*`
	DefaultQueryPath     = "query/iid_1"

	// httpTimeout bounds every request to the child.
	httpTimeout = 5 * time.Second
)

// Config describes a session.
type Config struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string

	PTY        bool
	Cols, Rows uint16

	// Format is used for <LOG:...> expectations; nil selects match.Default.
	Format *match.LogFormat
	// Timeout bounds the wait for each expected line.
	Timeout          time.Duration
	PollInterval     time.Duration
	SilenceWindow    time.Duration
	TerminateTimeout time.Duration

	ReadyPattern string
	QueryPath    string

	Logger *zerolog.Logger
}

// Response is the status and body of an HTTP exchange with the child.
type Response struct {
	Status int
	Body   string
}

// Session is a running child under verification. It is not safe for
// concurrent use.
type Session struct {
	cfg      Config
	id       string
	proc     *proc.Process
	ignore   *verify.IgnoreSet
	reader   *verify.Reader
	verifier *verify.Verifier
	ready    *match.Regex
	port     int
	client   *http.Client
	log      zerolog.Logger
}

// Start launches the child and prepares its stdout for verification.
func Start(cfg Config) (*Session, error) {
	if cfg.Format == nil {
		cfg.Format = match.Default
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = verify.DefaultPollInterval
	}
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	if cfg.ReadyPattern == "" {
		cfg.ReadyPattern = DefaultReadyPattern
	}
	if cfg.QueryPath == "" {
		cfg.QueryPath = DefaultQueryPath
	}
	ready, err := match.NewRegex(cfg.ReadyPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid ready pattern: %w", err)
	}

	id := uuid.NewString()
	base := zerolog.Nop()
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	log := base.With().Str("session", id).Logger()

	p, err := proc.Start(proc.Config{
		Binary:           cfg.Binary,
		Args:             cfg.Args,
		Dir:              cfg.Dir,
		Env:              cfg.Env,
		PTY:              cfg.PTY,
		Cols:             cfg.Cols,
		Rows:             cfg.Rows,
		PollInterval:     cfg.PollInterval,
		TerminateTimeout: cfg.TerminateTimeout,
		Logger:           &log,
	})
	if err != nil {
		return nil, err
	}

	ignore := verify.NewIgnoreSet(cfg.Format)
	reader := verify.NewReader(p.Stdout(), ignore,
		verify.WithPollInterval(cfg.PollInterval),
		verify.WithLogger(log),
	)
	s := &Session{
		cfg:      cfg,
		id:       id,
		proc:     p,
		ignore:   ignore,
		reader:   reader,
		verifier: verify.NewVerifier(reader, cfg.Timeout),
		ready:    ready,
		client:   &http.Client{Timeout: httpTimeout},
		log:      log,
	}
	s.log.Info().Str("binary", cfg.Binary).Strs("args", cfg.Args).Msg("session started")
	return s, nil
}

// ID returns the session id used in log entries.
func (s *Session) ID() string { return s.id }

// Process returns the supervised child.
func (s *Session) Process() *proc.Process { return s.proc }

// Format returns the log format of the session.
func (s *Session) Format() *match.LogFormat { return s.cfg.Format }

// Input writes text to the child's stdin as is.
func (s *Session) Input(text string) error {
	return s.proc.WriteStdin(text)
}

// Ignore registers expectations for lines that Expect skips.
func (s *Session) Ignore(expectations ...any) error {
	for _, e := range expectations {
		if err := s.ignore.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// Expect verifies the next significant stdout lines in order. Unless
// ignoreRest is set, no further significant line may be available. A
// non-positive timeout selects the session timeout.
func (s *Session) Expect(expected []any, ignoreRest bool, timeout time.Duration) error {
	ms := make([]match.Matcher, 0, len(expected))
	for _, e := range expected {
		m, err := match.ParseValue(e, s.cfg.Format)
		if err != nil {
			return err
		}
		ms = append(ms, m)
	}
	v := s.verifier
	if timeout > 0 {
		v = v.WithTimeout(timeout)
	}
	return v.CheckSequence(ms, ignoreRest)
}

// Skip discards the stdout lines available now.
func (s *Session) Skip() int {
	return s.verifier.Skip()
}

// WaitReady reads stdout until a line matches the ready pattern and returns
// its capture groups. If the child stays silent for longer than the silence
// window it is terminated and a timeout failure is returned.
func (s *Session) WaitReady() ([]string, error) {
	for {
		line, err := s.reader.Next(s.cfg.SilenceWindow, false)
		if err != nil {
			if fail.Is(err, fail.Timeout) {
				if terr := s.proc.Terminate(true); terr != nil {
					s.log.Warn().Err(terr).Msg("terminate after silence")
				}
				f := fail.Timeoutf("wait-ready", "no output for %v", s.cfg.SilenceWindow)
				f.Expected = s.ready.String()
				f.Detail = s.reader.Recent()
				return nil, f
			}
			if fail.Is(err, fail.Exhausted) {
				f := fail.Processf("wait-ready", "output ended before the ready line (%s)", s.proc.PollStatus())
				f.Expected = s.ready.String()
				f.Detail = s.reader.Recent()
				return nil, f
			}
			return nil, err
		}
		groups := s.ready.Submatches(line)
		if groups == nil {
			continue
		}
		if len(groups) > 0 {
			if port, err := strconv.Atoi(groups[0]); err == nil {
				s.port = port
			}
		}
		s.log.Info().Int("port", s.port).Msg("ready")
		return groups, nil
	}
}

// Port returns the port captured by WaitReady, or 0.
func (s *Session) Port() int { return s.port }

// Post sends body to path on the child's HTTP port.
func (s *Session) Post(path, body string) (Response, error) {
	if s.port == 0 {
		return Response{}, errors.New("no port known; WaitReady must capture one first")
	}
	url := fmt.Sprintf("http://127.0.0.1:%d/%s", s.port, strings.TrimPrefix(path, "/"))
	ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("POST %s: reading body: %w", url, err)
	}
	s.log.Debug().Str("url", url).Int("status", resp.StatusCode).Msg("post")
	return Response{Status: resp.StatusCode, Body: string(b)}, nil
}

// Query posts body to the configured query path.
func (s *Session) Query(body string) (Response, error) {
	return s.Post(s.cfg.QueryPath, body)
}

// CheckQuery posts body to the query path and verifies the response status
// and body. A trailing newline of the body is not significant.
func (s *Session) CheckQuery(body string, status int, expected any) error {
	resp, err := s.Query(body)
	if err != nil {
		return err
	}
	got := strings.TrimRight(resp.Body, "\r\n")
	if resp.Status != status {
		f := fail.Mismatch("check-query", strconv.Itoa(resp.Status), strconv.Itoa(status))
		f.Message = "status"
		f.Detail = "    body: " + got
		return f
	}
	m, err := match.ParseValue(expected, s.cfg.Format)
	if err != nil {
		return err
	}
	if !m.Match(got) {
		f := fail.Mismatch("check-query", got, m.String())
		f.Message = "body"
		return f
	}
	return nil
}

// WaitExit waits for the child to exit and returns its code. A non-positive
// timeout selects the session timeout.
func (s *Session) WaitExit(timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	return s.proc.WaitUntilExited(timeout)
}

// ExpectExit waits for the child to exit with code.
func (s *Session) ExpectExit(code int, timeout time.Duration) error {
	got, err := s.WaitExit(timeout)
	if err != nil {
		return err
	}
	if got != code {
		f := fail.Processf("expect-exit", "exit code %d, expected %d", got, code)
		f.Detail = s.reader.Recent()
		return f
	}
	return nil
}

// Stop terminates the child and waits for it to exit.
func (s *Session) Stop() error {
	return s.proc.Terminate(true)
}

// Close stops the child if needed and releases its resources. Unread stderr
// lines are logged.
func (s *Session) Close() error {
	for _, line := range s.proc.Stderr().Drain() {
		s.log.Debug().Str("line", line).Msg("stderr")
	}
	err := s.proc.Close()
	s.log.Info().Str("status", s.proc.PollStatus().String()).Msg("session closed")
	return err
}
