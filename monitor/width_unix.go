//go:build unix

package monitor

import (
	"os"

	"golang.org/x/sys/unix"
)

// TerminalWidth reports the column count of the terminal behind f, or
// DefaultWidth when f is not a terminal.
func TerminalWidth(f *os.File) int {
	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 {
		return DefaultWidth
	}

	return int(ws.Col)
}
