// Package console is the character transport the kernel's collaborators
// talk through, standing in for a serial port.
package console

import (
	"bufio"
	"io"
	"sync"

	"github.com/pkg/errors"
)

type Port interface {
	PutChar(c byte) error
	// GetChar blocks until a byte is available.
	GetChar() (byte, error)
	PutString(s string) error
}

// Serial is a Port over a pair of byte streams. Output is flushed after
// every newline and before every read so prompts show up.
type Serial struct {
	mu sync.Mutex
	r  *bufio.Reader
	w  *bufio.Writer
}

var (
	_ Port      = &Serial{}
	_ io.Writer = &Serial{}
)

func NewSerial(r io.Reader, w io.Writer) *Serial {
	return &Serial{
		r: bufio.NewReader(r),
		w: bufio.NewWriter(w),
	}
}

func (s *Serial) PutChar(c byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.WriteByte(c); err != nil {
		return errors.Wrap(err, "console write")
	}

	if c == '\n' {
		return s.w.Flush()
	}

	return nil
}

func (s *Serial) PutString(str string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.WriteString(str); err != nil {
		return errors.Wrap(err, "console write")
	}

	return s.w.Flush()
}

// Write lets renderers that take an io.Writer draw on the console.
func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.w.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "console write")
	}

	return n, s.w.Flush()
}

func (s *Serial) GetChar() (byte, error) {
	s.mu.Lock()
	err := s.w.Flush()
	s.mu.Unlock()

	if err != nil {
		return 0, err
	}

	return s.r.ReadByte()
}

// ReadLine reads one line with the terminal conventions of a serial
// console: CR or LF ends the line, backspace and DEL erase the previous
// character, and typed characters are echoed when echo is set. Lines
// are capped at max bytes, further characters are dropped.
func ReadLine(p Port, max int, echo bool) (string, error) {
	buf := make([]byte, 0, max)

	for {
		c, err := p.GetChar()
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				return string(buf), nil
			}
			return "", err
		}

		switch {
		case c == '\r' || c == '\n':
			if echo {
				if err := p.PutChar('\n'); err != nil {
					return "", err
				}
			}
			return string(buf), nil
		case c == 8 || c == 127:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
				if echo {
					if err := p.PutString("\b \b"); err != nil {
						return "", err
					}
				}
			}
		case len(buf) < max:
			buf = append(buf, c)
			if echo {
				if err := p.PutChar(c); err != nil {
					return "", err
				}
			}
		}
	}
}
