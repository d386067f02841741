package outcheck

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cboone/outcheck/match"
)

type options struct {
	args             []string
	env              []string
	dir              string
	stdin            string
	timeout          time.Duration
	pollInterval     time.Duration
	silenceWindow    time.Duration
	terminateTimeout time.Duration
	format           *match.LogFormat
	pty              bool
	width            int
	height           int
	readyPattern     string
	queryPath        string
	logger           *zerolog.Logger
}

// Option configures a Session created by Start or a command run by
// RunCommand.
type Option func(*options)

// WithArgs sets the arguments passed to the binary.
func WithArgs(args ...string) Option {
	return func(o *options) {
		o.args = args
	}
}

// WithEnv appends environment variables to the process environment.
// Each entry should be in "KEY=VALUE" format.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// WithDir sets the working directory for the binary.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithStdin sets the input fed to a command run by RunCommand.
func WithStdin(s string) Option {
	return func(o *options) {
		o.stdin = s
	}
}

// WithTimeout sets the default timeout for each expected line and for
// WaitExit. For RunCommand it bounds the whole run.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithPollInterval sets how long a wait sleeps when no output is available.
// Values under 10ms are clamped to 10ms.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithSilenceWindow sets how long WaitReady tolerates a silent program.
func WithSilenceWindow(d time.Duration) Option {
	return func(o *options) {
		o.silenceWindow = d
	}
}

// WithTerminateTimeout bounds how long Stop waits after SIGTERM before the
// program is killed.
func WithTerminateTimeout(d time.Duration) Option {
	return func(o *options) {
		o.terminateTimeout = d
	}
}

// WithLogFormat sets the layout used by <LOG:LEVEL> expectations.
func WithLogFormat(f *match.LogFormat) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithPTY runs the program with stdin and stdout on a pseudo-terminal.
// Stderr stays a separate pipe. ANSI escape sequences are stripped from
// output lines.
func WithPTY() Option {
	return func(o *options) {
		o.pty = true
	}
}

// WithSize sets the terminal dimensions (columns x rows) and implies WithPTY.
func WithSize(width, height int) Option {
	return func(o *options) {
		o.pty = true
		o.width = width
		o.height = height
	}
}

// WithReadyPattern sets the regular expression WaitReady waits for. Its
// first capture group, if any, is the HTTP port of the program.
func WithReadyPattern(pattern string) Option {
	return func(o *options) {
		o.readyPattern = pattern
	}
}

// WithQueryPath sets the path used by Query and CheckQuery.
func WithQueryPath(path string) Option {
	return func(o *options) {
		o.queryPath = path
	}
}

// WithLogger sets the logger for session events. By default nothing is
// logged unless OUTCHECK_LOG names a level, in which case events go to the
// test log.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &l
	}
}

// CheckOption configures a single expectation or wait call.
type CheckOption func(*checkOptions)

type checkOptions struct {
	ignoreRest bool
	timeout    time.Duration
}

// IgnoreRest allows further output after the expected lines.
func IgnoreRest() CheckOption {
	return func(o *checkOptions) {
		o.ignoreRest = true
	}
}

// WithinTimeout overrides the timeout for a single call.
// A value of 0 means "use defaults". Negative values cause t.Fatal.
func WithinTimeout(d time.Duration) CheckOption {
	return func(o *checkOptions) {
		o.timeout = d
	}
}

const (
	defaultTimeout          = 10 * time.Second
	defaultPollInterval     = 100 * time.Millisecond
	defaultSilenceWindow    = 20 * time.Second
	defaultTerminateTimeout = 10 * time.Second
	defaultWidth            = 120
	defaultHeight           = 40
	minPollInterval         = 10 * time.Millisecond
)

func defaultOptions() options {
	return options{
		timeout:          defaultTimeout,
		pollInterval:     defaultPollInterval,
		silenceWindow:    defaultSilenceWindow,
		terminateTimeout: defaultTerminateTimeout,
		format:           match.Default,
		width:            defaultWidth,
		height:           defaultHeight,
	}
}
