// Package server defines the wire notices and utility helpers that are reused
// across peer, router and transport logic.
package server

import (
	"errors"
	"net"
	"strings"
)

// Prefixes of server-originated lines.
const (
	systemPrefix = "SYSTEM: "
	errorPrefix  = "ERROR: "
)

const (
	promptNickname      = "Enter your nickname:"
	negotiationDone     = "=================================================="
	noticeWelcome       = systemPrefix + "Welcome, you are connected to the server"
	noticeChanging      = systemPrefix + "Changing nickname..."
	noticeRenamed       = systemPrefix + "The nickname was successfully changed"
	noticeNotRenamed    = systemPrefix + "The nickname wasn't changed"
	noticeAlone         = systemPrefix + "Now you are alone on the server"
	noticeUnknownUser   = errorPrefix + "That user doesn't exist"
	noticeRateLimited   = errorPrefix + "You are sending messages too fast"
	noticeBlank         = errorPrefix + "Nickname is blank"
	noticeWhitespace    = errorPrefix + "Nickname contains whitespace"
	noticeTaken         = errorPrefix + "Nickname already exists"
	noticeUnexpected    = errorPrefix + "Unexpected status"
	replyUnknownCommand = "That command doesn't exist, try '/help'"
)

// ErrInvalidPort is returned by ParsePort for values outside [1, 65535].
var ErrInvalidPort = errors.New("port must be an integer value between 1 and 65535")

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "io: read/write on closed pipe")
}
