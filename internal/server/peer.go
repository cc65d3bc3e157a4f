// Package server manages individual chat peers: nickname negotiation, the
// read loop and command dispatch, the outbound writer and teardown.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/peerchat/internal/registry"
)

// drainTimeout bounds how long teardown waits for queued lines to be written
// before the connection is closed underneath the writer.
const drainTimeout = 2 * time.Second

type peerState int

const (
	stateNegotiating peerState = iota
	stateActive
	stateChangingNickname
	stateClosed
)

func (s peerState) String() string {
	switch s {
	case stateNegotiating:
		return "negotiating"
	case stateActive:
		return "active"
	case stateChangingNickname:
		return "changing-nickname"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer is one connected client session. Its handler goroutine is the only
// reader of the connection and a dedicated writer goroutine is the only
// writer; everyone else reaches a Peer through the registry and only calls
// Send.
type Peer struct {
	id       string
	conn     LineConn
	server   *Server
	logger   *slog.Logger
	limiter  *rateLimiter
	outgoing chan string

	nickMu   sync.RWMutex
	nickname string

	available atomic.Bool

	sendMu sync.Mutex
	closed bool

	writerDone chan struct{}

	// Owned by the handler goroutine.
	state      peerState
	registered bool
}

func newPeer(s *Server, conn LineConn) *Peer {
	id := uuid.New().String()
	return &Peer{
		id:         id,
		conn:       conn,
		server:     s,
		logger:     s.logger.With("session", id, "addr", describeAddr(conn.RemoteAddr())),
		limiter:    newRateLimiter(s.cfg.RateLimit.Burst, s.cfg.RateLimit.RefillInterval),
		outgoing:   make(chan string, s.cfg.SendQueueSize),
		writerDone: make(chan struct{}),
		state:      stateNegotiating,
	}
}

// Nickname returns the peer's current nickname, empty until negotiation succeeds.
func (p *Peer) Nickname() string {
	p.nickMu.RLock()
	defer p.nickMu.RUnlock()
	return p.nickname
}

func (p *Peer) setNickname(nickname string) {
	p.nickMu.Lock()
	p.nickname = nickname
	p.nickMu.Unlock()
}

// Available reports whether routed messages are currently delivered.
func (p *Peer) Available() bool {
	return p.available.Load()
}

// Send delivers a routed line if the peer is available. Lines sent while the
// peer is changing its nickname are dropped, not queued.
func (p *Peer) Send(line string) {
	if !p.available.Load() {
		return
	}
	p.enqueue(line)
}

// reply writes handler-originated lines regardless of availability.
func (p *Peer) reply(text string) {
	for _, line := range strings.Split(text, "\n") {
		p.enqueue(line)
	}
}

func (p *Peer) enqueue(line string) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if p.closed {
		return
	}

	select {
	case p.outgoing <- line:
	default:
		p.logger.Warn("send queue full; dropping line", "nickname", p.Nickname())
	}
}

func (p *Peer) writeLoop() {
	defer close(p.writerDone)

	failed := false
	for line := range p.outgoing {
		if failed {
			continue
		}
		if err := p.conn.WriteLine(line); err != nil {
			if !isExpectedCloseError(err) {
				p.logger.Warn("write failed", "nickname", p.Nickname(), "error", err)
			}
			failed = true
			// Unblock the reader so the handler tears the session down.
			_ = p.conn.Close()
		}
	}
}

// run drives the connection state machine until the session ends.
func (p *Peer) run() {
	go p.writeLoop()

	err := p.negotiate()
	for err == nil {
		switch p.state {
		case stateActive:
			err = p.readLine()
		case stateChangingNickname:
			err = p.changeNickname()
		default:
			err = fmt.Errorf("unexpected state %s", p.state)
		}
	}

	p.close(err)
}

func (p *Peer) negotiate() error {
	reg := p.server.registry

	for {
		p.reply(promptNickname)
		line, err := p.conn.ReadLine()
		if err != nil {
			return err
		}
		candidate := trimLine(line)

		if outcome := reg.Validate(candidate); outcome != registry.Valid {
			p.reply(outcomeNotice(outcome))
			continue
		}

		// Available before registering so routed lines are not lost in the
		// window between Register and the end of negotiation.
		p.available.Store(true)
		if err := reg.Register(candidate, p); err != nil {
			p.available.Store(false)
			p.reply(nicknameErrorNotice(err))
			continue
		}

		p.setNickname(candidate)
		p.registered = true
		p.state = stateActive

		p.reply(negotiationDone)
		p.reply(noticeWelcome)
		p.logger.Info("peer joined", "nickname", candidate, "peers", reg.Count())

		if p.server.cfg.AnnouncePresence {
			p.server.router.Broadcast(candidate, fmt.Sprintf("%s%s has joined the chat", systemPrefix, candidate))
		}
		return nil
	}
}

func (p *Peer) readLine() error {
	line, err := p.conn.ReadLine()
	if err != nil {
		return err
	}
	line = trimLine(line)

	if !p.limiter.allow() {
		p.logger.Debug("rate limit exceeded; discarding line",
			"nickname", p.Nickname(),
			"burst", p.server.cfg.RateLimit.Burst,
			"interval", p.server.cfg.RateLimit.RefillInterval)
		p.reply(noticeRateLimited)
		return nil
	}

	p.dispatch(line)
	return nil
}

// dispatch classifies one Active-state line and hands it to the router.
func (p *Peer) dispatch(line string) {
	router := p.server.router
	nickname := p.Nickname()

	switch {
	case strings.HasPrefix(line, "@") && strings.Contains(line, " "):
		space := strings.Index(line, " ")
		dest := line[1:space]
		text := line[space+1:]
		router.PrivateMessage(nickname, dest, fmt.Sprintf("[PM] %s: %s", nickname, text))

	case line == "/nick":
		p.state = stateChangingNickname

	case strings.HasPrefix(line, "/"):
		p.reply(router.ServerCommand(nickname, line, p.conn.LocalAddr()))

	default:
		router.Broadcast(nickname, fmt.Sprintf("%s: %s", nickname, line))
	}
}

func (p *Peer) changeNickname() error {
	p.available.Store(false)
	defer func() {
		p.available.Store(true)
		if p.state == stateChangingNickname {
			p.state = stateActive
		}
	}()

	reg := p.server.registry
	current := p.Nickname()
	p.reply(noticeChanging)

	for {
		p.reply(promptNickname)
		line, err := p.conn.ReadLine()
		if err != nil {
			return err
		}
		candidate := trimLine(line)

		if candidate == current {
			p.reply(noticeNotRenamed)
			return nil
		}

		if err := reg.Rename(current, candidate); err != nil {
			p.reply(nicknameErrorNotice(err))
			continue
		}

		p.setNickname(candidate)
		p.logger.Info("peer renamed", "from", current, "to", candidate)
		p.reply(noticeRenamed)

		if p.server.cfg.AnnouncePresence {
			p.server.router.Broadcast(candidate, fmt.Sprintf("%s%s is now known as %s", systemPrefix, current, candidate))
		}
		return nil
	}
}

// close is the Closed state: deregister, flush, close the connection and log.
func (p *Peer) close(cause error) {
	p.state = stateClosed
	p.available.Store(false)

	nickname := p.Nickname()
	remaining := -1
	if p.registered {
		remaining = p.server.registry.Deregister(nickname)
		if p.server.cfg.AnnouncePresence {
			p.server.router.Broadcast(nickname, fmt.Sprintf("%s%s has left the chat", systemPrefix, nickname))
		}
	}

	p.sendMu.Lock()
	p.closed = true
	close(p.outgoing)
	p.sendMu.Unlock()

	select {
	case <-p.writerDone:
	case <-time.After(drainTimeout):
		p.logger.Warn("timed out flushing queued lines", "nickname", nickname)
	}

	if err := p.conn.Close(); err != nil && !isExpectedCloseError(err) {
		p.logger.Warn("closing connection failed", "error", err)
	}
	<-p.writerDone

	p.logDeparture(cause, remaining)
}

func (p *Peer) logDeparture(cause error, remaining int) {
	attrs := []any{"nickname", p.Nickname()}
	if remaining >= 0 {
		attrs = append(attrs, "peers", remaining)
	}

	switch {
	case cause == nil, errors.Is(cause, io.EOF):
		// Clean disconnect.
	case errors.Is(cause, ErrLineTooLong):
		attrs = append(attrs, "reason", "line too long", "limit", p.server.cfg.MaxLineLength)
	case isExpectedCloseError(cause):
		attrs = append(attrs, "reason", "connection closed")
	default:
		attrs = append(attrs, "error", cause)
	}

	if p.registered {
		p.logger.Info("peer left", attrs...)
		return
	}
	p.logger.Info("connection closed before negotiation completed", attrs[2:]...)
}

// outcomeNotice is the line reported to a client for a failed validation.
func outcomeNotice(outcome registry.Outcome) string {
	switch outcome {
	case registry.Blank:
		return noticeBlank
	case registry.ContainsWhitespace:
		return noticeWhitespace
	case registry.AlreadyTaken:
		return noticeTaken
	default:
		return noticeUnexpected
	}
}

func nicknameErrorNotice(err error) string {
	var nickErr *registry.NicknameError
	switch {
	case errors.As(err, &nickErr):
		return outcomeNotice(nickErr.Outcome)
	case errors.Is(err, registry.ErrDuplicateNickname):
		return noticeTaken
	default:
		return noticeUnexpected
	}
}
