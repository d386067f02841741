package verify

import (
	"errors"
	"fmt"
	"time"

	"github.com/cboone/outcheck/internal/fail"
	"github.com/cboone/outcheck/match"
)

// DefaultTimeout bounds the wait for each expected line.
const DefaultTimeout = 10 * time.Second

// Verifier checks ordered expectations against a Reader.
type Verifier struct {
	r       *Reader
	timeout time.Duration
}

// NewVerifier returns a Verifier that waits up to timeout for each line.
// A non-positive timeout selects DefaultTimeout.
func NewVerifier(r *Reader, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{r: r, timeout: timeout}
}

// Reader returns the underlying reader.
func (v *Verifier) Reader() *Reader { return v.r }

// Timeout returns the per-line timeout.
func (v *Verifier) Timeout() time.Duration { return v.timeout }

// WithTimeout returns a copy of v sharing its reader with a different
// per-line timeout.
func (v *Verifier) WithTimeout(d time.Duration) *Verifier {
	return NewVerifier(v.r, d)
}

// CheckSequence matches the next significant lines against expected in
// order. Unless ignoreRest is set, any significant line already available
// afterwards is an exhaustion failure.
func (v *Verifier) CheckSequence(expected []match.Matcher, ignoreRest bool) error {
	for i, m := range expected {
		line, err := v.r.Next(v.timeout, true)
		if err != nil {
			var f *fail.Failure
			if errors.As(err, &f) {
				f.Op = "expect"
				f.Expected = m.String()
				f.Message = fmt.Sprintf("line %d of %d: %s", i+1, len(expected), f.Message)
			}
			return err
		}
		if !m.Match(line) {
			f := fail.Mismatch("expect", line, m.String())
			f.Message = fmt.Sprintf("line %d of %d", i+1, len(expected))
			f.Detail = v.r.Recent()
			return f
		}
	}
	if ignoreRest {
		return nil
	}
	if line, ok := v.r.TryNext(); ok {
		f := fail.Exhaustedf("expect", "unexpected trailing output")
		f.Actual = line
		f.Detail = v.r.Recent()
		return f
	}
	return nil
}

// Skip discards all currently available output.
func (v *Verifier) Skip() int {
	return v.r.Skip()
}
