package proc

import (
	"fmt"
	"strings"
)

// Error represents a failure to start, drive, or observe a child process.
type Error struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	if len(e.Args) > 0 {
		msg = fmt.Sprintf("%s %s failed: %v", e.Op, strings.Join(e.Args, " "), e.Err)
	}
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
