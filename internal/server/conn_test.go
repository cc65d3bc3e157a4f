package server

import (
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPipeStream returns a stream conn over one end of a pipe and a writer
// feeding the other end. Writes run in the background because net.Pipe is
// synchronous.
func newPipeStream(t *testing.T, maxLineLength int) (LineConn, func(string)) {
	t.Helper()

	clientSide, serverSide := net.Pipe()
	conn := NewStreamConn(serverSide, maxLineLength)
	t.Cleanup(func() {
		_ = clientSide.Close()
		_ = conn.Close()
	})

	write := func(data string) {
		go func() { _, _ = io.WriteString(clientSide, data) }()
	}
	return conn, write
}

func TestStreamConnAcceptsLineAtLimit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"LF", strings.Repeat("x", 8) + "\n", strings.Repeat("x", 8)},
		{"CRLF", strings.Repeat("y", 8) + "\r\n", strings.Repeat("y", 8)},
		{"short", "hi\n", "hi"},
		{"empty", "\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, write := newPipeStream(t, 8)
			write(tt.input)

			got, err := conn.ReadLine()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreamConnRejectsLineOverLimit(t *testing.T) {
	for _, length := range []int{9, 10, 200} {
		conn, write := newPipeStream(t, 8)
		write(strings.Repeat("x", length) + "\n")

		_, err := conn.ReadLine()
		assert.ErrorIs(t, err, ErrLineTooLong, "length %d", length)
	}
}

func TestStreamConnReplacesInvalidUTF8(t *testing.T) {
	conn, write := newPipeStream(t, 64)
	write("caf\xc3\xa9 \xff\xfe ok\n")

	got, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "café � ok", got)
}

func TestStreamConnEOF(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	conn := NewStreamConn(serverSide, 64)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		_, _ = io.WriteString(clientSide, "last line without newline")
		_ = clientSide.Close()
	}()

	got, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "last line without newline", got)

	_, err = conn.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSplitFrame(t *testing.T) {
	tests := []struct {
		frame string
		want  []string
	}{
		{"hello", []string{"hello"}},
		{"hello\n", []string{"hello"}},
		{"", []string{""}},
		{"hi\nSYSTEM: fake", []string{"hi", "SYSTEM: fake"}},
		{"a\r\nb\r\n", []string{"a\r", "b\r"}},
		{"a\n\nb", []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, splitFrame(tt.frame), "frame %q", tt.frame)
	}
}

func TestCheckLine(t *testing.T) {
	got, err := checkLine("abcd\r", 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", got)

	_, err = checkLine("abcde", 4)
	assert.ErrorIs(t, err, ErrLineTooLong)

	got, err = checkLine("\xff", 4)
	require.NoError(t, err)
	assert.Equal(t, "�", got)
}
