// Package transport adapts the command dispatcher to an event-driven,
// multi-reactor TCP engine: each connection owns a receive buffer, traffic
// events decode every complete frame available and dispatch it, and replies
// are accumulated into one write per traffic event.
package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"github.com/finchkv/finch/internal/command"
	"github.com/finchkv/finch/internal/resp"
)

// Options configures the transport engine.
type Options struct {
	// Multicore enables multiple event-loop goroutines, load-balancing
	// accepted connections across them.
	Multicore bool
	// MaxConnections caps the number of simultaneously open connections.
	// Zero means unlimited.
	MaxConnections int
}

// Server is the gnet.EventHandler implementation that owns per-connection
// buffers and drives the command dispatcher. It is not used directly by
// callers; construct one with New and run it with ListenAndServe.
type Server struct {
	deps   *command.Deps
	log    *zap.Logger
	opts   Options
	engine gnet.Engine

	mu       sync.RWMutex
	buffers  map[gnet.Conn]*resp.Buffer
	openConn int64
}

// New builds a Server ready to be passed to ListenAndServe. deps is shared
// by reference across every connection's dispatch calls.
func New(deps *command.Deps, log *zap.Logger, opts Options) *Server {
	return &Server{
		deps:    deps,
		log:     log,
		opts:    opts,
		buffers: make(map[gnet.Conn]*resp.Buffer),
	}
}

// OnBoot records the engine handle so Close can later stop it.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.log.Info("transport boot")
	return gnet.None
}

// OnShutdown is called once the engine has stopped accepting connections.
func (s *Server) OnShutdown(eng gnet.Engine) {
	s.log.Info("transport shutdown")
}

// OnTick is unused; the ticker is never enabled.
func (s *Server) OnTick() (time.Duration, gnet.Action) {
	return 0, gnet.None
}

// OnOpen allocates the new connection's receive buffer and, when
// MaxConnections is exceeded, refuses it.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if s.opts.MaxConnections > 0 && atomic.LoadInt64(&s.openConn) >= int64(s.opts.MaxConnections) {
		s.log.Warn("connection refused, at capacity", zap.String("remote", c.RemoteAddr().String()))
		return nil, gnet.Close
	}
	s.mu.Lock()
	s.buffers[c] = resp.NewBuffer()
	s.mu.Unlock()
	atomic.AddInt64(&s.openConn, 1)
	s.log.Debug("connection opened", zap.String("remote", c.RemoteAddr().String()))
	return nil, gnet.None
}

// OnClose releases the connection's receive buffer.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	s.mu.Lock()
	_, opened := s.buffers[c]
	delete(s.buffers, c)
	s.mu.Unlock()
	if opened {
		atomic.AddInt64(&s.openConn, -1)
	}
	s.log.Debug("connection closed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
	return gnet.None
}

// OnTraffic decodes every complete frame available in the connection's
// buffer, dispatches each to the command package, and writes all replies
// generated during this event in one pass. A framing error or a handler
// requesting Close ends the connection.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	chunk, err := c.Next(-1)
	if err != nil {
		s.log.Error("read from connection", zap.Error(err))
		return gnet.Close
	}

	s.mu.RLock()
	buf, ok := s.buffers[c]
	s.mu.RUnlock()
	if !ok {
		return gnet.Close
	}

	values, ferr := buf.Feed(chunk)

	var out []byte
	closeAfter := false
	for _, v := range values {
		res, derr := command.Dispatch(s.deps, v)
		if derr != nil {
			s.log.Debug("request not frame-shaped", zap.Error(derr))
			closeAfter = true
			break
		}
		out = append(out, res.Bytes()...)
		if res.Close {
			closeAfter = true
			break
		}
	}
	if len(out) > 0 {
		if _, werr := c.Write(out); werr != nil {
			s.log.Error("write to connection", zap.Error(werr))
			return gnet.Close
		}
	}
	if ferr != nil {
		s.log.Debug("frame decode error", zap.Error(ferr))
		return gnet.Close
	}
	if closeAfter {
		return gnet.Close
	}
	return gnet.None
}

// ListenAndServe starts the transport engine on addr (e.g. "127.0.0.1:6379")
// and blocks until the engine stops or returns an error.
func ListenAndServe(addr string, s *Server) error {
	var opts []gnet.Option
	if s.opts.Multicore {
		opts = append(opts, gnet.WithMulticore(true))
	}
	return gnet.Run(s, "tcp://"+addr, opts...)
}

// Close stops a running engine. Safe to call from a signal handler.
func (s *Server) Close() error {
	return s.engine.Stop(context.Background())
}
