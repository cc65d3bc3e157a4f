// Package testhelpers provides common utilities for testing the chat server.
//
// It offers a line-protocol test client that works over TCP or in-memory
// pipes, and a WebSocket dialer, so that package tests can drive complete
// sessions without duplicating read/expect boilerplate.
package testhelpers

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Wire lines the server sends during nickname negotiation.
const (
	PromptNickname  = "Enter your nickname:"
	NegotiationDone = "=================================================="
	NoticeWelcome   = "SYSTEM: Welcome, you are connected to the server"
)

// DefaultTimeout bounds every expectation made through a LineClient.
const DefaultTimeout = 2 * time.Second

// LineClient is a test client for the newline-delimited protocol.
type LineClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// DialLine connects to addr over TCP and fails the test on error. The
// connection is closed when the test ends.
func DialLine(t *testing.T, addr string) *LineClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", addr, err)
	}
	return NewLineClient(t, conn)
}

// NewLineClient wraps an already connected conn, such as one end of net.Pipe.
func NewLineClient(t *testing.T, conn net.Conn) *LineClient {
	t.Helper()

	c := &LineClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// Send writes one line.
func (c *LineClient) Send(line string) {
	c.t.Helper()

	if err := c.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		c.t.Fatalf("Failed to set write deadline: %v", err)
	}
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("Failed to send %q: %v", line, err)
	}
}

// ReadLine reads the next line, waiting at most timeout.
func (c *LineClient) ReadLine(timeout time.Duration) (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return line, err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

// ExpectLine asserts that the next line is exactly want.
func (c *LineClient) ExpectLine(want string) {
	c.t.Helper()

	got, err := c.ReadLine(DefaultTimeout)
	if err != nil {
		c.t.Fatalf("Expected line %q, got error: %v", want, err)
	}
	if got != want {
		c.t.Fatalf("Expected line %q, got %q", want, got)
	}
}

// ExpectEventually skips lines until one equals want.
func (c *LineClient) ExpectEventually(want string) {
	c.t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	var seen []string
	for time.Now().Before(deadline) {
		got, err := c.ReadLine(time.Until(deadline))
		if err != nil {
			c.t.Fatalf("Expected line %q eventually, got error: %v (seen %q)", want, err, seen)
		}
		if got == want {
			return
		}
		seen = append(seen, got)
	}
	c.t.Fatalf("Timed out waiting for line %q (seen %q)", want, seen)
}

// ExpectNoLine asserts that nothing arrives within d.
func (c *LineClient) ExpectNoLine(d time.Duration) {
	c.t.Helper()

	line, err := c.ReadLine(d)
	if err == nil {
		c.t.Fatalf("Expected no line, got %q", line)
	}
	if !IsTimeout(err) {
		c.t.Fatalf("Expected read timeout, got: %v", err)
	}
}

// ExpectClosed asserts that the server closed the connection.
func (c *LineClient) ExpectClosed() {
	c.t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		_, err := c.ReadLine(time.Until(deadline))
		if err == nil {
			continue
		}
		if IsTimeout(err) {
			break
		}
		return
	}
	c.t.Fatal("Expected connection to be closed by the server")
}

// Register completes nickname negotiation with nickname, failing the test
// if the server does not accept it on the first attempt.
func (c *LineClient) Register(nickname string) {
	c.t.Helper()

	c.ExpectLine(PromptNickname)
	c.Send(nickname)
	c.ExpectLine(NegotiationDone)
	c.ExpectLine(NoticeWelcome)
}

// Close closes the client side of the connection.
func (c *LineClient) Close() {
	_ = c.conn.Close()
}

// IsTimeout reports whether err is a read or write deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	// Set a proper origin header for testing
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ReadWebSocketLine reads one text frame as a line, waiting at most timeout.
func ReadWebSocketLine(conn *websocket.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	_, data, err := conn.ReadMessage()
	return string(data), err
}

// SendWebSocketLine writes line as one text frame.
func SendWebSocketLine(conn *websocket.Conn, line string) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
