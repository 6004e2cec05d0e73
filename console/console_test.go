package console

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestSerial(t *testing.T) {
	n := neko.Modern(t)

	n.It("writes characters and strings", func(t *testing.T) {
		var out bytes.Buffer
		s := NewSerial(strings.NewReader(""), &out)

		require.NoError(t, s.PutChar('>'))
		require.NoError(t, s.PutString(" hi\n"))
		require.Equal(t, "> hi\n", out.String())
	})

	n.It("flushes pending output before reading", func(t *testing.T) {
		var out bytes.Buffer
		s := NewSerial(strings.NewReader("x"), &out)

		require.NoError(t, s.PutChar('$'))

		c, err := s.GetChar()
		require.NoError(t, err)
		require.EqualValues(t, 'x', c)
		require.Equal(t, "$", out.String())

		_, err = s.GetChar()
		require.Equal(t, io.EOF, err)
	})

	n.It("reads a line with echo and backspace", func(t *testing.T) {
		var out bytes.Buffer
		s := NewSerial(strings.NewReader("mex\x7fm\rnext\n"), &out)

		line, err := ReadLine(s, 64, true)
		require.NoError(t, err)
		require.Equal(t, "mem", line)
		require.Equal(t, "mex\b \bm\n", out.String())

		line, err = ReadLine(s, 64, false)
		require.NoError(t, err)
		require.Equal(t, "next", line)
	})

	n.It("caps the line length", func(t *testing.T) {
		s := NewSerial(strings.NewReader("abcdef\n"), io.Discard)

		line, err := ReadLine(s, 3, false)
		require.NoError(t, err)
		require.Equal(t, "abc", line)
	})

	n.It("returns a final unterminated line", func(t *testing.T) {
		s := NewSerial(strings.NewReader("exit"), io.Discard)

		line, err := ReadLine(s, 64, false)
		require.NoError(t, err)
		require.Equal(t, "exit", line)

		_, err = ReadLine(s, 64, false)
		require.Equal(t, io.EOF, err)
	})

	n.Meow()
}
