//go:build linux || darwin

// Command outcheck runs declarative case files (YAML or TOML) against
// programs and prints a report. It exits with status 1 when a case fails
// and 2 when a case or file could not be run at all.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cboone/outcheck/internal/casefile"
)

var Version = "v0.1.0"

// runtimeError marks errors that prevented cases from running.
type runtimeError struct{ err error }

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "outcheck"
	app.Version = Version
	app.Usage = "Check program output against case files"
	app.ArgsUsage = "CASEFILE..."
	app.Flags = Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		var rtErr *runtimeError
		switch {
		case errors.As(err, &exitErr):
			cli.HandleExitCoder(exitErr)
		case errors.As(err, &rtErr):
			cli.HandleExitCoder(cli.Exit(err.Error(), 2))
		default:
			cli.HandleExitCoder(cli.Exit(err.Error(), 1))
		}
	}
	return app
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Timestamp().Logger(), nil
}

func run(c *cli.Context) error {
	log, err := newLogger(c.App.ErrWriter, c.String(LogLevelFlag.Name))
	if err != nil {
		return &runtimeError{err}
	}
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return &runtimeError{errors.New("no case files given")}
	}
	parallel := c.Int(ParallelFlag.Name)
	if parallel < 1 {
		return &runtimeError{fmt.Errorf("--parallel must be at least 1, got %d", parallel)}
	}

	runID := uuid.New().String()
	log = log.With().Str("run", runID).Logger()

	files := make([]*casefile.File, 0, len(paths))
	for _, p := range paths {
		f, err := casefile.Load(p)
		if err != nil {
			return &runtimeError{err}
		}
		files = append(files, f)
	}
	log.Info().Int("files", len(files)).Int("parallel", parallel).Msg("running case files")

	runner := &casefile.Runner{Logger: log, Timeout: c.Duration(TimeoutFlag.Name)}
	perFile := make([][]casefile.Result, len(files))

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(parallel)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			perFile[i] = runner.RunFile(ctx, f)
			for _, r := range perFile[i] {
				if r.Err != nil {
					log.Error().Str("file", r.File).Str("case", r.Case).Msg(r.Err.Error())
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var results []casefile.Result
	for _, rs := range perFile {
		results = append(results, rs...)
	}
	s := writeReport(c.App.Writer, runID, results, !c.Bool(NoColorFlag.Name))

	switch {
	case s.Errored > 0:
		return cli.Exit(fmt.Sprintf("%d of %d cases could not run", s.Errored, s.Total), 2)
	case s.Failed > 0:
		return cli.Exit(fmt.Sprintf("%d of %d cases failed", s.Failed, s.Total), 1)
	}
	return nil
}
