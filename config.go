package minicache

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DefaultAddr is the address the server listens on when none is
// configured. The port matches the memcached convention.
const DefaultAddr = "127.0.0.1:11211"

const (
	// DefaultMaxSessions is the default cap on concurrently served
	// connections.
	DefaultMaxSessions = 64

	// DefaultReadBufferSize is the default per-session receive buffer.
	DefaultReadBufferSize = 4096

	// DefaultWriteBufferSize is the default per-session transmit buffer.
	// Replies larger than the buffer are written in several chunks.
	DefaultWriteBufferSize = 4096
)

var (
	ErrStoreRequired      = errors.New("minicache: store is required")
	ErrInvalidMaxSessions = errors.New("minicache: MaxSessions must be positive")
	ErrInvalidBufferSize  = errors.New("minicache: buffer sizes must be positive")
	ErrInvalidIdleTimeout = errors.New("minicache: IdleTimeout must not be negative")
)

// Config holds the configuration of a Server.
// The zero value of every field means "use the default".
type Config struct {
	// Addr is the TCP address the server listens on.
	// Defaults to DefaultAddr.
	Addr string

	// MaxSessions caps the number of connections served concurrently.
	// Additional connections are accepted but wait for a session slot to
	// free up before being served. Defaults to DefaultMaxSessions.
	MaxSessions int32

	// ReadBufferSize is the per-session receive buffer in bytes.
	// Defaults to DefaultReadBufferSize.
	ReadBufferSize int

	// WriteBufferSize is the per-session transmit buffer in bytes.
	// Defaults to DefaultWriteBufferSize.
	WriteBufferSize int

	// IdleTimeout disconnects sessions whose peer stays silent for this
	// long while no reply is pending. Zero disables the idle check.
	IdleTimeout time.Duration

	// Logger receives server lifecycle events and per-session protocol
	// events. If nil, logging is disabled.
	Logger *zerolog.Logger
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		Addr:            DefaultAddr,
		MaxSessions:     DefaultMaxSessions,
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
	}
}

// normalized returns a copy of c with zero fields replaced by defaults.
// A nil receiver is valid and yields the defaults.
func (c *Config) normalized() (*Config, error) {
	out := Config{}
	if c != nil {
		out = *c
	}

	if out.Addr == "" {
		out.Addr = DefaultAddr
	}
	if out.MaxSessions == 0 {
		out.MaxSessions = DefaultMaxSessions
	}
	if out.MaxSessions < 0 {
		return nil, ErrInvalidMaxSessions
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = DefaultReadBufferSize
	}
	if out.WriteBufferSize == 0 {
		out.WriteBufferSize = DefaultWriteBufferSize
	}
	if out.ReadBufferSize < 0 || out.WriteBufferSize < 0 {
		return nil, ErrInvalidBufferSize
	}
	if out.IdleTimeout < 0 {
		return nil, ErrInvalidIdleTimeout
	}
	return &out, nil
}
