package testutils

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// ConnectionMock is a mock implementation of net.Conn for testing. Reads
// return the pre-scripted chunks one chunk per call, so tests control
// exactly how a request fragments on the wire. After the last chunk, Read
// reports io.EOF, or blocks until Close when HoldOpen is set.
//
// Deadlines are accepted and ignored; use net.Pipe in tests where deadline
// behavior matters.
type ConnectionMock struct {
	// HoldOpen keeps Read blocking after the scripted chunks are drained
	// instead of reporting io.EOF. Set before the first Read.
	HoldOpen bool

	// WriteErr, when set, is returned by every subsequent Write.
	WriteErr error

	mu     sync.Mutex
	chunks [][]byte
	wrote  bytes.Buffer
	closed chan struct{}
}

// NewConnectionMock creates a mock connection whose reads yield the given
// chunks in order.
func NewConnectionMock(chunks ...string) *ConnectionMock {
	m := &ConnectionMock{
		closed: make(chan struct{}),
	}
	for _, c := range chunks {
		m.chunks = append(m.chunks, []byte(c))
	}
	return m
}

func (m *ConnectionMock) Read(b []byte) (int, error) {
	m.mu.Lock()
	if m.isClosed() {
		m.mu.Unlock()
		return 0, net.ErrClosed
	}
	if len(m.chunks) > 0 {
		chunk := m.chunks[0]
		n := copy(b, chunk)
		if n < len(chunk) {
			m.chunks[0] = chunk[n:]
		} else {
			m.chunks = m.chunks[1:]
		}
		m.mu.Unlock()
		return n, nil
	}
	hold := m.HoldOpen
	m.mu.Unlock()

	if !hold {
		return 0, io.EOF
	}
	<-m.closed
	return 0, net.ErrClosed
}

func (m *ConnectionMock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isClosed() {
		return 0, net.ErrClosed
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	return m.wrote.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isClosed() {
		close(m.closed)
	}
	return nil
}

func (m *ConnectionMock) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11211}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error      { return nil }
func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return nil }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return nil }

// Written returns everything written to the mock connection so far.
func (m *ConnectionMock) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wrote.String()
}
