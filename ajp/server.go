// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package ajp serves [net/http] handlers over the AJP/1.3 protocol used
// by reverse proxies such as Apache mod_jk and mod_proxy_ajp.
//
// Only packet framing and the mapping between AJP messages and
// [http.Request] and [http.ResponseWriter] live here. Header semantics
// are left to the handler.
package ajp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/pkg/slogfield"
)

// ErrServerClosed is returned by [Server.Serve] after a call to
// [Server.Shutdown] or [Server.Close].
var ErrServerClosed = errors.New("ajp: server closed")

const shutdownPollInterval = 50 * time.Millisecond

// Server accepts AJP/1.3 connections and dispatches each forwarded
// request to Handler.
type Server struct {
	Handler http.Handler

	// PacketSize is the maximum packet size, between DefaultPacketSize
	// and MaxPacketSize. It must match the web server's setting.
	PacketSize int

	// Secret, if set, must be presented by every forwarded request.
	Secret string

	// IdleTimeout bounds how long a connection may wait for its next
	// request. Zero means no limit.
	IdleTimeout time.Duration

	// BaseContext optionally supplies the base context for requests
	// accepted on the given listener.
	BaseContext func(net.Listener) context.Context

	Log *slog.Logger

	inShutdown atomic.Bool

	mu        sync.Mutex
	listeners map[*net.Listener]struct{}
	conns     map[*conn]struct{}
}

func (s *Server) packetSize() int {
	switch {
	case s.PacketSize <= DefaultPacketSize:
		return DefaultPacketSize
	case s.PacketSize > MaxPacketSize:
		return MaxPacketSize
	default:
		return s.PacketSize
	}
}

func (s *Server) log() *slog.Logger {
	return logging.OrDiscard(s.Log)
}

// Serve accepts connections on ln until it fails or the server is shut
// down. It always returns a non-nil error and closes ln.
func (s *Server) Serve(ln net.Listener) error {
	if s.inShutdown.Load() {
		ln.Close()
		return ErrServerClosed
	}
	if !s.trackListener(&ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(&ln, false)
	defer ln.Close()

	baseCtx := context.Background()
	if s.BaseContext != nil {
		baseCtx = s.BaseContext(ln)
	}

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = min(max(2*delay, 5*time.Millisecond), time.Second)
				s.log().Warn("ajp accept error", slogfield.Error(err), slogfield.Duration("retry_in", delay))
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0

		c := s.newConn(nc)
		if c == nil {
			nc.Close()
			continue
		}
		go c.serve(baseCtx)
	}
}

// Shutdown stops accepting connections, closes idle connections and
// waits for in-flight requests to finish or ctx to be done, whichever
// comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	err := s.closeListenersLocked()
	s.mu.Unlock()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if s.closeIdleConns() {
			return err
		}
		select {
		case <-ctx.Done():
			s.closeAllConns()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close immediately closes all listeners and connections.
func (s *Server) Close() error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	err := s.closeListenersLocked()
	s.mu.Unlock()

	s.closeAllConns()
	return err
}

func (s *Server) trackListener(ln *net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[*net.Listener]struct{})
	}
	if !add {
		delete(s.listeners, ln)
		return true
	}
	if s.inShutdown.Load() {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) closeListenersLocked() error {
	var errs []error
	for ln := range s.listeners {
		if err := (*ln).Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) newConn(nc net.Conn) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inShutdown.Load() {
		return nil
	}
	if s.conns == nil {
		s.conns = make(map[*conn]struct{})
	}
	c := &conn{
		server: s,
		rwc:    nc,
		buf:    make([]byte, s.packetSize()),
	}
	c.state.Store(int32(stateNew))
	s.conns[c] = struct{}{}
	return c
}

func (s *Server) forgetConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// closeIdleConns reports whether no connections remain.
func (s *Server) closeIdleConns() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiescent := true
	for c := range s.conns {
		st := connState(c.state.Load())
		if st != stateIdle && st != stateNew {
			quiescent = false
			continue
		}
		c.rwc.Close()
		delete(s.conns, c)
	}
	return quiescent
}

func (s *Server) closeAllConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.rwc.Close()
		delete(s.conns, c)
	}
}
