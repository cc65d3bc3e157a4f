// Package server implements the chat server: the TCP listener that spawns one
// peer handler per connection, the optional WebSocket transport, and the
// registry policy hooks that run when peers leave.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/peerchat/internal/registry"
)

const httpShutdownTimeout = 5 * time.Second

// Server accepts connections and hands each one to its own peer handler.
type Server struct {
	cfg      *Config
	logger   *slog.Logger
	registry *registry.Registry
	router   *Router
	upgrader websocket.Upgrader

	stopCh   chan struct{}
	stopOnce sync.Once

	connMu   sync.Mutex
	conns    map[LineConn]struct{}
	draining bool
	wg       sync.WaitGroup
}

// New creates a Server from cfg. A nil cfg uses defaults and a nil logger
// uses slog.Default.
func New(cfg *Config, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg.Sanitize()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		conns:  make(map[LineConn]struct{}),
	}

	s.registry = registry.New(registry.Hooks{
		OnAlone: s.onAlone,
		OnEmpty: s.onEmpty,
	})
	s.router = NewRouter(s.registry, logger)

	origins := newOriginPolicy(cfg.AllowedOrigins, logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}
	return s
}

// Registry exposes the server's nickname registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Router exposes the server's message router.
func (s *Server) Router() *Router {
	return s.router
}

func (s *Server) onAlone(remaining registry.Entry) {
	if !s.cfg.NotifyLastPeer {
		return
	}
	remaining.Member.Send(noticeAlone)
}

func (s *Server) onEmpty() {
	if !s.cfg.ShutdownWhenEmpty {
		return
	}
	s.logger.Info("last peer left; shutting down")
	s.Stop()
}

// Stop makes Serve and ListenAndServe return. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Done is closed once Stop has been called.
func (s *Server) Done() <-chan struct{} {
	return s.stopCh
}

// ListenAndServe listens on the configured TCP port and, when configured,
// serves the WebSocket transport. It returns when ctx is cancelled, Stop is
// called, or either listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(ctx, ln)
	})

	if s.cfg.WebSocketAddr != "" {
		httpServer := CreateServer(s.cfg.WebSocketAddr, SetupRoutes(s))
		g.Go(func() error {
			if err := StartServer(httpServer, s.logger); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("websocket listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-ctx.Done():
			case <-s.stopCh:
			}
			return ShutdownServer(httpServer, httpShutdownTimeout, s.logger)
		})
	}

	return g.Wait()
}

// Serve runs the accept loop on ln until ctx is cancelled or Stop is called,
// then closes every live connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("server listening", "addr", ln.Addr().String())

	serveDone := make(chan struct{})
	defer close(serveDone)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.stopCh:
		case <-serveDone:
		}
		_ = ln.Close()
	}()

	err := s.acceptLoop(ctx, ln)

	s.closeConnections()
	s.wg.Wait()
	s.logger.Info("server stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping(ctx) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn("accept timed out; retrying", "error", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.HandleConn(NewStreamConn(conn, s.cfg.MaxLineLength))
	}
}

func (s *Server) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// HandleConn starts a peer handler for conn without blocking.
func (s *Server) HandleConn(conn LineConn) {
	s.connMu.Lock()
	if s.draining {
		s.connMu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.connMu.Unlock()

	s.logger.Debug("connection accepted", "addr", describeAddr(conn.RemoteAddr()))

	go func() {
		defer func() {
			s.connMu.Lock()
			delete(s.conns, conn)
			s.connMu.Unlock()
			s.wg.Done()
		}()
		newPeer(s, conn).run()
	}()
}

// closeConnections gracefully closes all active client connections
func (s *Server) closeConnections() {
	s.connMu.Lock()
	s.draining = true
	conns := make([]LineConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connMu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("closing connection failed", "addr", describeAddr(conn.RemoteAddr()), "error", err)
		}
	}

	if len(conns) > 0 {
		s.logger.Info("closed client connections", "count", len(conns))
	}
}
