// Package verify checks a child's output against ordered expectations.
package verify

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cboone/outcheck/internal/fail"
)

const (
	// DefaultPollInterval is how long Next sleeps when no line is queued.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultHistory is how many consumed lines are kept for diagnostics.
	DefaultHistory = 3
)

// Source yields lines without blocking. Closed reports that the source has
// ended and nothing is left to pop.
type Source interface {
	Pop() (string, bool)
	Closed() bool
}

// Reader retrieves significant lines from a Source under a deadline. Its
// sleep between empty polls is the only place verification waits.
type Reader struct {
	src          Source
	ignore       *IgnoreSet
	pollInterval time.Duration
	history      int
	recent       []string
	log          zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPollInterval sets the sleep between empty polls.
func WithPollInterval(d time.Duration) ReaderOption {
	return func(r *Reader) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithHistory sets how many consumed lines failures report.
func WithHistory(n int) ReaderOption {
	return func(r *Reader) {
		r.history = n
	}
}

// WithLogger sets the logger for consumed and ignored lines.
func WithLogger(l zerolog.Logger) ReaderOption {
	return func(r *Reader) {
		r.log = l
	}
}

// NewReader returns a Reader over src that consults ignore when asked to
// skip ignored lines.
func NewReader(src Source, ignore *IgnoreSet, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:          src,
		ignore:       ignore,
		pollInterval: DefaultPollInterval,
		history:      DefaultHistory,
		log:          zerolog.Nop(),
		now:          time.Now,
		sleep:        time.Sleep,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Ignore returns the reader's ignore set.
func (r *Reader) Ignore() *IgnoreSet { return r.ignore }

// Next returns the next line, skipping ignored lines when skipIgnored is
// set. It fails with a timeout the first time a poll finds nothing and
// timeout has elapsed, and with an exhaustion failure as soon as the source
// has ended.
func (r *Reader) Next(timeout time.Duration, skipIgnored bool) (string, error) {
	start := r.now()
	for {
		line, ok := r.src.Pop()
		if ok {
			r.remember(line)
			if skipIgnored && r.ignore.Ignored(line) {
				r.log.Debug().Str("line", line).Msg("ignored")
				continue
			}
			r.log.Trace().Str("line", line).Msg("line")
			return line, nil
		}
		if r.src.Closed() {
			f := fail.Exhaustedf("read", "output ended while waiting for a line")
			f.Detail = r.Recent()
			return "", f
		}
		r.sleep(r.pollInterval)
		if elapsed := r.now().Sub(start); elapsed >= timeout {
			f := fail.Timeoutf("read", "no line within %v", timeout)
			f.Detail = r.Recent()
			return "", f
		}
	}
}

// TryNext returns the next significant line if one is available now.
// Ignored lines are consumed on the way.
func (r *Reader) TryNext() (string, bool) {
	for {
		line, ok := r.src.Pop()
		if !ok {
			return "", false
		}
		r.remember(line)
		if r.ignore.Ignored(line) {
			r.log.Debug().Str("line", line).Msg("ignored")
			continue
		}
		return line, true
	}
}

// Skip discards every line available now and returns how many it dropped.
func (r *Reader) Skip() int {
	n := 0
	for {
		line, ok := r.src.Pop()
		if !ok {
			return n
		}
		r.remember(line)
		r.log.Debug().Str("line", line).Msg("skipped")
		n++
	}
}

func (r *Reader) remember(line string) {
	if r.history <= 0 {
		return
	}
	r.recent = append(r.recent, line)
	if len(r.recent) > r.history {
		r.recent = r.recent[len(r.recent)-r.history:]
	}
}

// Recent formats the most recently consumed lines for failure messages.
func (r *Reader) Recent() string {
	if len(r.recent) == 0 {
		return "    recent output: (none)"
	}
	var b strings.Builder
	b.WriteString("    recent output (oldest to newest):")
	for _, l := range r.recent {
		fmt.Fprintf(&b, "\n    | %s", l)
	}
	return b.String()
}
