// Package server adapts WebSocket connections to the line protocol: every
// text frame carries exactly one line in each direction.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

type wsConn struct {
	conn          *websocket.Conn
	logger        *slog.Logger
	maxLineLength int
	// Lines of the last frame not yet returned by ReadLine.
	pending []string

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps an upgraded WebSocket as a LineConn and starts its
// keepalive pinger. The pinger stops when the connection is closed.
func NewWebSocketConn(conn *websocket.Conn, maxLineLength int, logger *slog.Logger) LineConn {
	conn.SetReadLimit(int64(maxLineLength + terminatorLen))

	c := &wsConn{
		conn:          conn,
		logger:        logger,
		maxLineLength: maxLineLength,
		done:          make(chan struct{}),
	}
	c.setupReadConnection()
	go c.pingLoop()
	return c
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *wsConn) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("setting initial read deadline failed", "addr", c.conn.RemoteAddr(), "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// ReadLine returns the next line. A frame carrying several newline
// separated lines yields them one at a time, so a frame can never inject a
// line break into what other peers receive.
func (c *wsConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", c.translateReadError(err)
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", "addr", c.conn.RemoteAddr(), "type", messageType)
			continue
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return "", err
		}
		c.pending = splitFrame(string(data))
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	return checkLine(line, c.maxLineLength)
}

// splitFrame breaks a text frame into lines. A single trailing newline is
// a terminator, not an empty line.
func splitFrame(data string) []string {
	return strings.Split(strings.TrimSuffix(data, "\n"), "\n")
}

// translateReadError maps the ways a WebSocket read can end onto the errors
// the peer handler understands.
func (c *wsConn) translateReadError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return ErrLineTooLong
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return io.EOF
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}

	return err
}

func (c *wsConn) WriteLine(line string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// pingLoop uses WriteControl, which gorilla allows concurrently with the
// single writer goroutine.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warn("writing ping failed", "addr", c.conn.RemoteAddr(), "error", err)
				}
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
