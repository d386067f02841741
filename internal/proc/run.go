//go:build linux || darwin

package proc

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result is the captured outcome of a child run to completion.
type Result struct {
	Code     int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Run executes the child to completion with cfg.Stdin as input and returns
// its exit code and captured output. A non-zero exit is not an error; only a
// failure to run the child at all is.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Binary == "" {
		return nil, errors.New("proc: no binary specified")
	}
	cmd := exec.CommandContext(ctx, cfg.Binary, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stdin = strings.NewReader(cfg.Stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Code:     exitCode(cmd.ProcessState),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &Error{
				Op:     "run",
				Args:   cfg.argv(),
				Stderr: strings.TrimSpace(stderr.String()),
				Err:    err,
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, &Error{Op: "run", Args: cfg.argv(), Err: ctxErr}
		}
	}
	if cfg.Logger != nil {
		cfg.Logger.Debug().Strs("argv", cfg.argv()).Int("code", res.Code).Dur("duration", res.Duration).Msg("process finished")
	}
	return res, nil
}
