package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"unicode/utf8"
)

// ErrLineTooLong is returned by ReadLine when a line exceeds the configured
// maximum length.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// LineConn is a bidirectional, line-oriented connection. ReadLine returns
// io.EOF once the peer has closed its side.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// terminatorLen is the room a reader needs beyond the line itself for "\r\n".
const terminatorLen = len("\r\n")

// streamConn frames newline-delimited text over a stream connection.
type streamConn struct {
	conn          net.Conn
	scanner       *bufio.Scanner
	maxLineLength int
	writer    *bufio.Writer
	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn wraps conn so that every read and write is one text line.
// Lines longer than maxLineLength bytes end the stream with ErrLineTooLong.
func NewStreamConn(conn net.Conn, maxLineLength int) LineConn {
	scanner := bufio.NewScanner(conn)
	limit := maxLineLength + terminatorLen
	initial := 4096
	if limit < initial {
		initial = limit
	}
	scanner.Buffer(make([]byte, 0, initial), limit)

	return &streamConn{
		conn:          conn,
		scanner:       scanner,
		maxLineLength: maxLineLength,
		writer:        bufio.NewWriter(conn),
	}
}

func (c *streamConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return checkLine(c.scanner.Text(), c.maxLineLength)
	}
	err := c.scanner.Err()
	switch {
	case err == nil:
		return "", io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return "", ErrLineTooLong
	default:
		return "", err
	}
}

// WriteLine is not safe for concurrent use; each peer has a single writer.
func (c *streamConn) WriteLine(line string) error {
	if _, err := c.writer.WriteString(line); err != nil {
		return err
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *streamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// hostPort splits addr for the /ip and /port commands.
func hostPort(addr net.Addr) (string, string) {
	if addr == nil {
		return "unknown", "unknown"
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), "unknown"
	}
	return host, port
}

// trimLine removes a trailing carriage return left by clients that send CRLF.
func trimLine(line string) string {
	return strings.TrimSuffix(line, "\r")
}

// checkLine enforces the length limit on a line without its terminator and
// replaces invalid UTF-8 so every line can be relayed as a WebSocket text frame.
func checkLine(line string, maxLineLength int) (string, error) {
	line = trimLine(line)
	if len(line) > maxLineLength {
		return "", ErrLineTooLong
	}
	return strings.ToValidUTF8(line, string(utf8.RuneError)), nil
}

func describeAddr(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	return fmt.Sprint(addr)
}
