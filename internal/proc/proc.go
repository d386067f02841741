//go:build linux || darwin

// Package proc supervises a child process and exposes its output as
// non-blocking line streams. It is internal to the outcheck package.
package proc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/cboone/outcheck/internal/fail"
)

const (
	// DefaultPollInterval is the status polling interval of WaitUntilExited.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultTerminateTimeout bounds Terminate(true).
	DefaultTerminateTimeout = 10 * time.Second

	defaultCols = 120
	defaultRows = 40
)

// Config describes the child to start.
type Config struct {
	Binary string
	Args   []string
	Dir    string
	// Env entries ("KEY=VALUE") are appended to the current environment.
	Env []string
	// Stdin is fed to the child by Run. Start ignores it.
	Stdin string
	// PTY runs the child with stdin and stdout on a pseudo-terminal.
	// Stderr stays a separate pipe.
	PTY        bool
	Cols, Rows uint16

	PollInterval     time.Duration
	TerminateTimeout time.Duration
	Logger           *zerolog.Logger
}

func (c Config) argv() []string {
	return append([]string{c.Binary}, c.Args...)
}

// Status is a non-blocking snapshot of the child state.
type Status struct {
	Exited bool
	// Code is the exit code once Exited. A child killed by a signal reports
	// the negated signal number.
	Code int
}

func (s Status) String() string {
	if !s.Exited {
		return "running"
	}
	return fmt.Sprintf("exited(%d)", s.Code)
}

// Process is a running child with line-oriented stdout and stderr.
type Process struct {
	cfg    Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *LineStream
	stderr *LineStream
	log    zerolog.Logger

	done    chan struct{}
	code    int
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

// Start launches the child described by cfg.
func Start(cfg Config) (*Process, error) {
	if cfg.Binary == "" {
		return nil, errors.New("proc: no binary specified")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TerminateTimeout <= 0 {
		cfg.TerminateTimeout = DefaultTerminateTimeout
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	cmd := exec.Command(cfg.Binary, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)

	// Every descriptor opened below is closed on each error path.
	var toClose []io.Closer
	cleanup := func() {
		for _, c := range toClose {
			_ = c.Close()
		}
	}

	errR, errW, err := os.Pipe()
	if err != nil {
		return nil, &Error{Op: "start", Args: cfg.argv(), Err: err}
	}
	toClose = append(toClose, errR, errW)
	cmd.Stderr = errW

	var (
		stdin     io.WriteCloser
		outR      *os.File
		normalize func(string) string
	)
	if cfg.PTY {
		ptm, err := startPTY(cmd, cfg.Cols, cfg.Rows)
		if err != nil {
			cleanup()
			return nil, &Error{Op: "start", Args: cfg.argv(), Err: err}
		}
		toClose = append(toClose, ptm)
		outR = ptm
		stdin = &fdWriter{fd: int(ptm.Fd())}
		normalize = stripansi.Strip
	} else {
		inR, inW, err := os.Pipe()
		if err != nil {
			cleanup()
			return nil, &Error{Op: "start", Args: cfg.argv(), Err: err}
		}
		toClose = append(toClose, inR, inW)
		var outW *os.File
		outR, outW, err = os.Pipe()
		if err != nil {
			cleanup()
			return nil, &Error{Op: "start", Args: cfg.argv(), Err: err}
		}
		toClose = append(toClose, outR, outW)
		cmd.Stdin = inR
		cmd.Stdout = outW
		if err := cmd.Start(); err != nil {
			cleanup()
			return nil, &Error{Op: "start", Args: cfg.argv(), Err: err}
		}
		_ = inR.Close()
		_ = outW.Close()
		stdin = inW
	}
	// The child holds its own copy of the write end.
	_ = errW.Close()

	p := &Process{
		cfg:   cfg,
		cmd:   cmd,
		stdin: stdin,
		log:   log.With().Int("pid", cmd.Process.Pid).Logger(),
		done:  make(chan struct{}),
	}
	go p.wait()

	if p.stdout, err = newLineStream("stdout", outR, normalize); err == nil {
		p.stderr, err = newLineStream("stderr", errR, nil)
	}
	if err != nil {
		_ = cmd.Process.Kill()
		<-p.done
		cleanup()
		return nil, err
	}
	p.stdout.sibling = p.stderr

	p.log.Debug().Strs("argv", cfg.argv()).Str("dir", cfg.Dir).Bool("pty", cfg.PTY).Msg("process started")
	return p, nil
}

func (p *Process) wait() {
	defer close(p.done)
	err := p.cmd.Wait()
	p.code = exitCode(p.cmd.ProcessState)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.waitErr = err
	}
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}

// Pid returns the child process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Stdout returns the stdout line stream.
func (p *Process) Stdout() *LineStream { return p.stdout }

// Stderr returns the stderr line stream.
func (p *Process) Stderr() *LineStream { return p.stderr }

// WriteStdin writes text to the child immediately.
func (p *Process) WriteStdin(text string) error {
	if _, err := io.WriteString(p.stdin, text); err != nil {
		return &Error{Op: "write-stdin", Args: p.cfg.argv(), Err: err}
	}
	p.log.Trace().Str("text", text).Msg("stdin")
	return nil
}

// CloseStdin closes the child's stdin so it observes end of input.
func (p *Process) CloseStdin() error {
	if err := p.stdin.Close(); err != nil {
		return &Error{Op: "close-stdin", Args: p.cfg.argv(), Err: err}
	}
	return nil
}

// PollStatus reports the child state without blocking.
func (p *Process) PollStatus() Status {
	select {
	case <-p.done:
		return Status{Exited: true, Code: p.code}
	default:
		return Status{}
	}
}

// WaitUntilExited polls the child status until it exits or timeout elapses.
func (p *Process) WaitUntilExited(timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		if st := p.PollStatus(); st.Exited {
			if p.waitErr != nil {
				return st.Code, &Error{Op: "wait", Args: p.cfg.argv(), Err: p.waitErr}
			}
			return st.Code, nil
		}
		if time.Now().After(deadline) {
			return 0, fail.Timeoutf("wait-exit", "process %d still running after %v", p.Pid(), timeout)
		}
		// Keep both pipes drained while waiting.
		_, _ = p.stdout.Poll()
		_, _ = p.stderr.Poll()
		time.Sleep(p.cfg.PollInterval)
	}
}

// Terminate sends SIGTERM. With wait it blocks until the child exits; if it
// outlives the termination deadline it is killed and a process failure is
// returned.
func (p *Process) Terminate(wait bool) error {
	if p.PollStatus().Exited {
		return nil
	}
	p.log.Debug().Bool("wait", wait).Msg("terminating process")
	if err := p.cmd.Process.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return &Error{Op: "terminate", Args: p.cfg.argv(), Err: err}
	}
	if !wait {
		return nil
	}
	if _, err := p.WaitUntilExited(p.cfg.TerminateTimeout); err != nil {
		if fail.Is(err, fail.Timeout) {
			_ = p.cmd.Process.Kill()
			<-p.done
			return fail.Processf("terminate", "process %d did not exit within %v of SIGTERM and was killed",
				p.Pid(), p.cfg.TerminateTimeout)
		}
		return err
	}
	return nil
}

// Close kills the child if it is still running and releases every
// descriptor. It is safe to call more than once.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		if !p.PollStatus().Exited {
			_ = p.cmd.Process.Kill()
			select {
			case <-p.done:
			case <-time.After(p.cfg.TerminateTimeout):
				p.closeErr = fail.Processf("close", "process %d did not exit after SIGKILL", p.Pid())
			}
		}
		errs := []error{p.closeErr}
		if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
		errs = append(errs, p.stdout.Close(), p.stderr.Close())
		p.closeErr = errors.Join(errs...)
		p.log.Debug().Str("status", p.PollStatus().String()).Msg("process closed")
	})
	return p.closeErr
}

// fdWriter writes to a non-blocking descriptor, waiting out EAGAIN.
type fdWriter struct {
	fd int
}

func (w *fdWriter) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := unix.Write(w.fd, b[written:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				time.Sleep(time.Millisecond)
				continue
			}
			return written, err
		}
		written += n
	}
	return written, nil
}

// Close is a no-op: the descriptor is owned by the stdout stream.
func (w *fdWriter) Close() error { return nil }
