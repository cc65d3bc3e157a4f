package server_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/peerchat/internal/server"
	"github.com/Tyrowin/peerchat/internal/testhelpers"
)

func serveInBackground(t *testing.T, ctx context.Context, srv *server.Server) (string, <-chan error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()
	return ln.Addr().String(), done
}

func waitServe(t *testing.T, done <-chan error) {
	t.Helper()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

// TestGracefulShutdownWithClients verifies that stopping the server closes
// every live session, registered or still negotiating.
func TestGracefulShutdownWithClients(t *testing.T) {
	srv := server.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	addr, done := serveInBackground(t, context.Background(), srv)

	clients := connectAs(t, addr, "alice", "bob")
	pending := testhelpers.DialLine(t, addr)
	pending.ExpectLine(testhelpers.PromptNickname)

	srv.Stop()
	waitServe(t, done)

	clients[0].ExpectClosed()
	clients[1].ExpectClosed()
	pending.ExpectClosed()
	assert.Zero(t, srv.Registry().Count())

	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener should be closed after shutdown")
}

func TestShutdownOnContextCancel(t *testing.T) {
	srv := server.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	addr, done := serveInBackground(t, ctx, srv)

	alice := connectAs(t, addr, "alice")[0]

	cancel()
	waitServe(t, done)
	alice.ExpectClosed()
}

func TestConcurrentStop(t *testing.T) {
	srv := server.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, done := serveInBackground(t, context.Background(), srv)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.Stop()
		}()
	}
	wg.Wait()

	waitServe(t, done)
	select {
	case <-srv.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
}

// TestHandleConnAfterShutdown verifies that connections handed over after the
// server stopped are closed instead of served.
func TestHandleConnAfterShutdown(t *testing.T) {
	srv := server.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, done := serveInBackground(t, context.Background(), srv)
	srv.Stop()
	waitServe(t, done)

	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })
	srv.HandleConn(server.NewStreamConn(serverSide, 1024))

	_, err := clientSide.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
