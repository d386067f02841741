//go:build linux || darwin

package proc

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	readChunkSize = 32 * 1024
	// maxPollBytes bounds a single drain so a chatty child cannot keep Poll
	// from returning.
	maxPollBytes = 4 * 1024 * 1024
)

// LineStream splits a child's output into lines. Reads never block: the
// descriptor is switched to non-blocking mode when the stream is created and
// drained with raw reads until the OS reports no more data.
//
// A LineStream is owned by a single goroutine and is not safe for
// concurrent use.
type LineStream struct {
	name      string
	file      *os.File
	fd        int
	buf       []byte
	partial   []byte
	queue     []string
	closed    bool
	err       error
	normalize func(string) string
	// sibling is polled along with this stream by Pop and Drain.
	sibling *LineStream
}

func newLineStream(name string, f *os.File, normalize func(string) string) (*LineStream, error) {
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, &Error{Op: "set-nonblock", Args: []string{name}, Err: err}
	}
	return &LineStream{
		name:      name,
		file:      f,
		fd:        fd,
		buf:       make([]byte, readChunkSize),
		normalize: normalize,
	}, nil
}

// Name returns the stream name ("stdout" or "stderr").
func (s *LineStream) Name() string { return s.name }

// Poll drains whatever is currently readable and queues every complete
// line. A trailing fragment without a terminator stays buffered until more
// data arrives or the stream closes. It returns the number of lines queued.
func (s *LineStream) Poll() (int, error) {
	if s.closed {
		return 0, nil
	}
	added, total := 0, 0
	for total < maxPollBytes {
		n, err := unix.Read(s.fd, s.buf)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
				return added, nil
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EIO):
				// A PTY master reports EIO once the child side is gone.
				return added + s.finish(), nil
			default:
				s.err = &Error{Op: "read", Args: []string{s.name}, Err: err}
				s.finish()
				return added, s.err
			}
		}
		if n == 0 {
			return added + s.finish(), nil
		}
		total += n
		added += s.split(s.buf[:n])
	}
	return added, nil
}

func (s *LineStream) split(data []byte) int {
	s.partial = append(s.partial, data...)
	added := 0
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		s.push(s.partial[:i])
		s.partial = s.partial[i+1:]
		added++
	}
	if len(s.partial) == 0 {
		s.partial = nil
	} else {
		s.partial = append([]byte(nil), s.partial...)
	}
	return added
}

func (s *LineStream) push(raw []byte) {
	line := string(bytes.TrimSuffix(raw, []byte("\r")))
	if s.normalize != nil {
		line = s.normalize(line)
	}
	s.queue = append(s.queue, line)
}

// finish marks the stream closed and flushes a trailing fragment as a final
// line.
func (s *LineStream) finish() int {
	s.closed = true
	if len(s.partial) == 0 {
		return 0
	}
	s.push(s.partial)
	s.partial = nil
	return 1
}

// Pop removes and returns the oldest queued line. The descriptor is only
// polled when the queue is empty.
func (s *LineStream) Pop() (string, bool) {
	if len(s.queue) == 0 {
		_, _ = s.Poll()
		s.pumpSibling()
	}
	if len(s.queue) == 0 {
		return "", false
	}
	line := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	return line, true
}

// Pending returns the number of queued lines without polling.
func (s *LineStream) Pending() int { return len(s.queue) }

// Closed reports whether the stream has ended and every line was consumed.
func (s *LineStream) Closed() bool { return s.closed && len(s.queue) == 0 }

// Err returns the read error that ended the stream, if any.
func (s *LineStream) Err() error { return s.err }

// Drain polls until the stream closes or nothing more is readable, and
// returns every queued line.
func (s *LineStream) Drain() []string {
	_, _ = s.Poll()
	s.pumpSibling()
	lines := s.queue
	s.queue = nil
	return lines
}

func (s *LineStream) pumpSibling() {
	if s.sibling != nil {
		_, _ = s.sibling.Poll()
	}
}

// Close releases the descriptor. Queued lines remain poppable.
func (s *LineStream) Close() error {
	if s.file == nil {
		return nil
	}
	s.closed = true
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("proc: close %s: %w", s.name, err)
	}
	return nil
}
