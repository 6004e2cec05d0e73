//go:build !unix

package monitor

import "os"

func TerminalWidth(f *os.File) int {
	return DefaultWidth
}
