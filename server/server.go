// File: server/server.go
// Package server provides the WebSocket listener and connection registry.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The server owns one acceptor task; every accepted connection gets its
// own reader goroutine running the protocol engine. The registry of
// active connections is mutated under a single mutex and snapshots are
// copied out before any user code runs against them.

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/wspeer/api"
	"github.com/momentics/wspeer/metrics"
	"github.com/momentics/wspeer/protocol"
	"github.com/momentics/wspeer/transport"
)

// Server accepts WebSocket connections and dispatches their callbacks.
type Server struct {
	cfg       Config
	callbacks protocol.Callbacks
	log       *slog.Logger
	met       *metrics.Metrics

	mu    sync.Mutex
	conns map[string]*protocol.Conn
	ln    net.Listener

	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}

	wg sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches a metrics set to the server and its connections.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.met = m }
}

// New builds a Server. Callbacks fire from each connection's reader
// goroutine, in frame order, never concurrently for one connection.
func New(cfg Config, cb protocol.Callbacks, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		callbacks: cb,
		log:       slog.Default(),
		conns:     make(map[string]*protocol.Conn),
		stop:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListenAndServe binds the configured address and accepts connections
// until ctx is cancelled or Shutdown is called, then drains. It blocks.
func (s *Server) ListenAndServe(ctx context.Context) error {
	defer close(s.finished)

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
	}
	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
		s.log.Info("tls enabled", slog.String("address", ln.Addr().String()))
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("websocket server started", slog.String("address", ln.Addr().String()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-s.stop:
		}
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				case <-s.stop:
					return nil
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				s.log.Error("accept failed", slog.String("error", err.Error()))
				continue
			}
			s.startConnection(conn)
		}
	})

	err = g.Wait()
	s.drain()
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections and waits for ListenAndServe
// to drain the active ones, or for ctx to expire. It is idempotent and
// safe to call from any goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.ln != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-s.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound listener address, or "" before ListenAndServe.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Connections returns a snapshot of the active connections. The copy is
// taken under the registry mutex so callers may invoke user code (for
// example a broadcast) without holding it.
func (s *Server) Connections() []*protocol.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*protocol.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// startConnection registers an accepted socket and spawns its reader.
// The connection is held by both the registry and the reader; it leaves
// the registry when its OnClose fires.
func (s *Server) startConnection(raw net.Conn) {
	if s.cfg.KeepaliveEnable {
		ka := transport.Keepalive{
			Enable:   true,
			Idle:     s.cfg.KeepaliveIdle,
			Interval: s.cfg.KeepaliveInterval,
			Count:    s.cfg.KeepaliveCount,
		}
		if err := transport.ConfigureKeepalive(raw, ka); err != nil {
			s.log.Warn("keepalive configuration failed", slog.String("error", err.Error()))
		}
	}

	cb := s.callbacks
	userOnClose := cb.OnClose
	cb.OnClose = func(c *protocol.Conn) {
		s.mu.Lock()
		delete(s.conns, c.ID())
		s.mu.Unlock()
		if userOnClose != nil {
			userOnClose(c)
		}
	}

	conn := protocol.NewConn(api.RoleServer, transport.Wrap(raw), cb,
		protocol.WithLogger(s.log),
		protocol.WithMetrics(s.met),
		protocol.WithMaxMessageSize(s.cfg.MaxMessageSize),
	)

	s.mu.Lock()
	s.conns[conn.ID()] = conn
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn.Run()
	}()
}

// drain closes remaining connections gracefully and waits up to the
// shutdown timeout before giving up on stragglers.
func (s *Server) drain() {
	for _, c := range s.Connections() {
		_ = c.Close(protocol.CloseGoingAway)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn("shutdown timeout, dropping remaining connections")
		for _, c := range s.Connections() {
			c.Abort()
		}
	}
}
