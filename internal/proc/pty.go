//go:build linux || darwin

package proc

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// startPTY starts cmd with stdin and stdout attached to a new terminal and
// returns the master side. Terminal echo is switched off so that input
// written by the test does not reappear in the output.
func startPTY(cmd *exec.Cmd, cols, rows uint16) (*os.File, error) {
	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}
	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to start command with pty: %w", err)
	}
	if err := disableEcho(int(ptm.Fd())); err != nil {
		_ = cmd.Process.Kill()
		_ = ptm.Close()
		return nil, fmt.Errorf("failed to disable pty echo: %w", err)
	}
	return ptm, nil
}

func disableEcho(fd int) error {
	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return err
	}
	t.Lflag &^= unix.ECHO
	return unix.IoctlSetTermios(fd, ioctlSetTermios, t)
}
