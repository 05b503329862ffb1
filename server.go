package minicache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/jackc/puddle/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pior/minicache/store"
)

// Server accepts TCP connections and answers the cache protocol over them.
//
// Sessions are pooled: each accepted connection acquires a session slot,
// and when every slot is busy further connections wait until one frees up,
// which bounds both memory and concurrency at MaxSessions. Slots keep
// their buffers and handler across connections, so a busy server performs
// no per-connection allocation after warmup.
type Server struct {
	store  *store.Store
	config *Config
	log    zerolog.Logger

	sessions *puddle.Pool[*Session]
	stats    serverStatsCollector

	mu  sync.Mutex
	all []*Session
}

// NewServer returns a server answering lookups from st. config may be nil
// to use the defaults.
func NewServer(st *store.Store, config *Config) (*Server, error) {
	if st == nil {
		return nil, ErrStoreRequired
	}
	cfg, err := config.normalized()
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:  st,
		config: cfg,
		log:    zerolog.Nop(),
	}
	if cfg.Logger != nil {
		s.log = *cfg.Logger
	}

	pool, err := puddle.NewPool(&puddle.Config[*Session]{
		Constructor: func(ctx context.Context) (*Session, error) {
			sess, err := NewSession(st, cfg)
			if err != nil {
				return nil, err
			}
			s.stats.recordSessionCreated()
			s.mu.Lock()
			s.all = append(s.all, sess)
			s.mu.Unlock()
			return sess, nil
		},
		Destructor: func(*Session) {
			s.stats.recordSessionDestroyed()
		},
		MaxSize: cfg.MaxSessions,
	})
	if err != nil {
		return nil, err
	}
	s.sessions = pool
	return s, nil
}

// ListenAndServe listens on the configured address and serves until ctx
// is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("minicache: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is canceled, then closes the
// remaining connections and waits for their sessions to finish. It returns
// nil after a shutdown triggered by ctx. The listener is closed when Serve
// returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("serving")

	g, ctx := errgroup.WithContext(ctx)

	// Cancellation unblocks Accept by closing the listener.
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("minicache: accept: %w", err)
			}
			s.stats.recordAccepted()
			g.Go(func() error {
				s.serveConn(ctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	s.log.Info().Msg("stopped")
	return err
}

// serveConn runs one connection to completion. Session failures are
// recorded and logged but never abort the server.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()

	res, err := s.sessions.Acquire(ctx)
	if err != nil {
		s.stats.recordRejected()
		s.log.Warn().Err(err).Str("remote", remote).Msg("connection rejected")
		return
	}
	defer res.Release()

	if e := s.log.Debug(); e.Enabled() {
		e.Str("remote", remote).Msg("session start")
	}

	err = res.Value().Serve(ctx, conn)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.stats.recordSessionError()
		s.log.Warn().Err(err).Str("remote", remote).Msg("session failed")
		return
	}

	if e := s.log.Debug(); e.Enabled() {
		e.Str("remote", remote).Msg("session end")
	}
}

// Stats returns a snapshot of the server counters with the protocol
// counters summed over all sessions.
func (s *Server) Stats() ServerStats {
	out := s.stats.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.all {
		out.Protocol.Add(sess.Stats())
	}
	return out
}

// PoolStats returns a snapshot of the session pool statistics by
// converting puddle's stats to our format.
func (s *Server) PoolStats() PoolStats {
	st := s.sessions.Stat()

	return PoolStats{
		TotalSessions:        st.TotalResources(),
		IdleSessions:         st.IdleResources(),
		ActiveSessions:       st.AcquiredResources(),
		AcquireCount:         st.AcquireCount(),
		EmptyAcquireCount:    st.EmptyAcquireCount(),
		CanceledAcquireCount: st.CanceledAcquireCount(),
		AcquireWaitTime:      st.EmptyAcquireWaitTime(),
	}
}

// Close releases the pooled sessions. Call it after Serve has returned;
// the server cannot serve again afterwards.
func (s *Server) Close() {
	s.sessions.Close()
}
