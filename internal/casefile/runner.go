//go:build linux || darwin

package casefile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cboone/outcheck/internal/fail"
	"github.com/cboone/outcheck/internal/proc"
	"github.com/cboone/outcheck/internal/session"
	"github.com/cboone/outcheck/match"
)

// Status is the outcome of a case.
type Status string

const (
	Passed Status = "pass"
	// Failed means the program's behavior did not match the case.
	Failed Status = "fail"
	// Errored means the case could not be carried out at all.
	Errored Status = "error"
)

// Result reports one case.
type Result struct {
	File     string
	Case     string
	Status   Status
	Err      error
	Duration time.Duration
}

// Runner carries out cases.
type Runner struct {
	Logger zerolog.Logger
	// Timeout overrides the per-line timeout of every case when positive.
	Timeout time.Duration
}

// RunFile runs every case of f in order.
func (r *Runner) RunFile(ctx context.Context, f *File) []Result {
	results := make([]Result, 0, len(f.Cases))
	for _, c := range f.Cases {
		if ctx.Err() != nil {
			results = append(results, Result{File: f.Path, Case: c.Name, Status: Errored, Err: ctx.Err()})
			continue
		}
		res := r.Run(ctx, c)
		res.File = f.Path
		results = append(results, res)
	}
	return results
}

// Run carries out one case.
func (r *Runner) Run(ctx context.Context, c Case) Result {
	log := r.Logger.With().Str("case", c.Name).Logger()
	start := time.Now()

	var err error
	if c.Interactive() {
		err = r.runSession(ctx, c, log)
	} else {
		err = r.runCommand(ctx, c, log)
	}

	res := Result{Case: c.Name, Status: Passed, Err: err, Duration: time.Since(start)}
	switch {
	case err == nil:
	case fail.IsFailure(err):
		res.Status = Failed
	default:
		res.Status = Errored
	}
	log.Debug().Str("status", string(res.Status)).Dur("duration", res.Duration).Err(err).Msg("case finished")
	return res
}

func (r *Runner) timeout(c Case) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return time.Duration(c.Timeout)
}

func (r *Runner) runCommand(ctx context.Context, c Case, log zerolog.Logger) error {
	format, err := match.FormatByName(c.Format)
	if err != nil {
		return err
	}
	if t := r.timeout(c); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	res, err := session.RunCommand(ctx, proc.Config{
		Binary: c.Command[0],
		Args:   c.Command[1:],
		Dir:    c.Dir,
		Env:    c.Env,
		Stdin:  c.Stdin,
		Logger: &log,
	})
	if err != nil {
		return err
	}
	ignore := make([]any, len(c.Ignore))
	for i, e := range c.Ignore {
		ignore[i] = e
	}
	return session.CheckResult(res, session.Want{
		Code:         c.Code,
		Stdout:       c.Stdout.Value(),
		Stderr:       c.Stderr.Value(),
		StdoutIgnore: ignore,
	}, format)
}

func (r *Runner) runSession(ctx context.Context, c Case, log zerolog.Logger) error {
	format, err := match.FormatByName(c.Format)
	if err != nil {
		return err
	}
	s, err := session.Start(session.Config{
		Binary:  c.Command[0],
		Args:    c.Command[1:],
		Dir:     c.Dir,
		Env:     c.Env,
		PTY:     c.PTY,
		Format:  format,
		Timeout: r.timeout(c),
		Logger:  &log,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	// A cancelled run terminates the child, which ends the current wait.
	stop := context.AfterFunc(ctx, func() {
		_ = s.Process().Terminate(false)
	})
	defer stop()

	for _, e := range c.Ignore {
		if err := s.Ignore(e); err != nil {
			return err
		}
	}
	for i, step := range c.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := r.step(s, step); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("step %d: %w", i+1, ctxErr)
			}
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *Runner) step(s *session.Session, st Step) error {
	switch {
	case st.Input != "":
		return s.Input(st.Input)
	case st.Expect != nil:
		expected := make([]any, len(st.Expect))
		for i, e := range st.Expect {
			expected[i] = e
		}
		return s.Expect(expected, st.IgnoreRest, 0)
	case len(st.Ignore) > 0:
		for _, e := range st.Ignore {
			if err := s.Ignore(e); err != nil {
				return err
			}
		}
		return nil
	case st.Skip:
		s.Skip()
		return nil
	case st.WaitReady:
		_, err := s.WaitReady()
		return err
	case st.Query != nil:
		status := st.Query.Status
		if status == 0 {
			status = 200
		}
		return s.CheckQuery(st.Query.Body, status, st.Query.Response)
	case st.Exit != nil:
		return s.ExpectExit(*st.Exit, 0)
	case st.Stop:
		return s.Stop()
	}
	return fmt.Errorf("empty step")
}
