package minicache

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/pior/minicache/internal/coarsetime"
	"github.com/pior/minicache/protocol"
	"github.com/pior/minicache/store"
)

// Session binds a protocol handler to one network connection at a time.
// The server keeps sessions in a pool and rebinds them to new connections,
// so the handler and both I/O buffers are allocated once per slot rather
// than once per accepted connection.
//
// A session is driven by a single goroutine. The handler never touches the
// network itself: Serve stages received bytes and performs the writes, the
// handler only consumes and produces bytes through the Transport methods.
type Session struct {
	handler *protocol.Handler
	log     zerolog.Logger

	rxbuf []byte
	txbuf []byte
	idle  time.Duration

	// Connection-scoped, reset at the start of each Serve.
	conn net.Conn
	rx   []byte
	err  error
}

// NewSession returns an unbound session reading entries from st.
// config may be nil to use the defaults; only the buffer sizes, the idle
// timeout and the logger are consulted.
func NewSession(st *store.Store, config *Config) (*Session, error) {
	cfg, err := config.normalized()
	if err != nil {
		return nil, err
	}

	s := &Session{
		handler: protocol.NewHandler(st, &protocol.HandlerOptions{Logger: cfg.Logger}),
		log:     zerolog.Nop(),
		rxbuf:   make([]byte, cfg.ReadBufferSize),
		txbuf:   make([]byte, cfg.WriteBufferSize),
		idle:    cfg.IdleTimeout,
	}
	if cfg.Logger != nil {
		s.log = *cfg.Logger
	}
	return s, nil
}

// Serve drives the protocol over conn until the peer disconnects, the
// context ends, or an I/O error occurs. A clean disconnect and an idle
// timeout both return nil. The connection is not closed by Serve except
// through context cancellation; the caller owns it.
//
// Serve may be called again with a new connection after it returns. The
// handler counters accumulate across connections.
func (s *Session) Serve(ctx context.Context, conn net.Conn) error {
	s.conn = conn
	s.rx = nil
	s.err = nil
	defer func() {
		s.conn = nil
		s.rx = nil
		s.handler.Reset()
	}()

	// Cancellation unblocks the Read below by closing the connection.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		progressed := s.handler.Poll(s)
		if s.err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return s.err
		}
		if progressed {
			continue
		}

		// The handler is idle: no reply pending, all staged input
		// consumed. Block until the peer sends more.
		if s.idle > 0 {
			if err := conn.SetReadDeadline(coarsetime.Now().Add(s.idle)); err != nil {
				return err
			}
		}
		n, err := conn.Read(s.rxbuf)
		if n > 0 {
			s.rx = s.rxbuf[:n]
			continue
		}
		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, os.ErrDeadlineExceeded):
			s.log.Debug().Msg("session idle timeout")
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}
		return err
	}
}

// Stats returns the protocol counters accumulated over every connection
// this session has served.
func (s *Session) Stats() protocol.HandlerStats {
	return s.handler.Stats()
}

// TryReceive implements protocol.Transport. Input is staged by Serve
// between polls, so the handler never blocks on the network.
func (s *Session) TryReceive(visit func(data []byte)) bool {
	if len(s.rx) == 0 {
		return false
	}
	data := s.rx
	s.rx = nil
	visit(data)
	return true
}

// TryTransmit implements protocol.Transport. A write error is sticky: it
// disables further transmits and ends the session at the next progress
// check in Serve.
func (s *Session) TryTransmit(fill func(buf []byte) int) bool {
	if s.err != nil {
		return false
	}
	n := fill(s.txbuf)
	if n > 0 {
		if _, err := s.conn.Write(s.txbuf[:n]); err != nil {
			s.err = err
		}
	}
	return true
}
