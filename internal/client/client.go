// Package client implements the console side of the chat protocol: it dials
// the server, shows every received line on a Display and forwards the user's
// input lines until the user types /exit or the server hangs up.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

const (
	exitCommand   = "/exit"
	writeWait     = 10 * time.Second
	maxLineLength = 64 * 1024
)

// Display renders what the client receives.
type Display interface {
	// ShowLine renders one line received from the server.
	ShowLine(line string)
	// ShowStatus renders a local notice that did not come from the server.
	ShowStatus(message string)
}

// Client is one connection to a chat server.
type Client struct {
	conn    net.Conn
	display Display
	logger  *slog.Logger
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, display Display, logger *slog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return New(conn, display, logger), nil
}

// New wraps an established connection. A nil logger uses slog.Default.
func New(conn net.Conn, display Display, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{conn: conn, display: display, logger: logger}
}

// Run pumps server lines to the display and input lines to the server. It
// returns once the user types /exit, input ends, ctx is cancelled or the
// server closes the connection. The connection is closed on return.
//
// Input is read on its own goroutine. A blocking Read cannot be interrupted,
// so when Run returns for any reason other than the end of input, that
// goroutine stays parked in Read until input yields a line or ends; it then
// exits without forwarding anything. Callers that reuse input after Run
// should close it or pass a reader they control.
func (c *Client) Run(ctx context.Context, input io.Reader) error {
	received := make(chan struct{})
	go func() {
		defer close(received)
		c.receive()
	}()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go scanInput(input, lines, done)

	err := c.forward(ctx, lines, received)

	if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		c.logger.Debug("closing connection failed", "error", cerr)
	}
	<-received
	c.display.ShowStatus("bye!")
	return err
}

func (c *Client) forward(ctx context.Context, lines <-chan string, received <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-received:
			return nil
		case line, ok := <-lines:
			if !ok || strings.EqualFold(line, exitCommand) {
				return nil
			}
			if err := c.send(line); err != nil {
				return fmt.Errorf("send line: %w", err)
			}
		}
	}
}

func (c *Client) send(line string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *Client) receive() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		c.display.ShowLine(strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		c.logger.Debug("reading from server stopped", "error", err)
	}
}

// scanInput feeds input lines to lines until input ends or done is closed.
// A line read after done is closed is discarded.
func scanInput(input io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		select {
		case lines <- strings.TrimSuffix(scanner.Text(), "\r"):
		case <-done:
			return
		}
	}
}
