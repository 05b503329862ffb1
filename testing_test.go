package minicache

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pior/minicache/store"
)

func seededStore(t testing.TB) *store.Store {
	t.Helper()
	st := store.New()
	st.Insert([]byte("foo"), store.Entry{Flags: 0, Value: []byte("bar")})
	return st
}

// startServer runs a server on an ephemeral port and shuts it down with
// the test.
func startServer(t testing.TB, st *store.Store, config *Config) (string, *Server) {
	t.Helper()

	srv, err := NewServer(st, config)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done, "server did not shut down cleanly")
		srv.Close()
	})

	return ln.Addr().String(), srv
}

func dialServer(t testing.TB, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn, bufio.NewReader(conn)
}

// readReply reads one complete reply: a terminal line on its own ("END\r\n",
// "ERROR\r\n") or a VALUE block followed by its END line.
func readReply(t testing.TB, br *bufio.Reader) string {
	t.Helper()

	line, err := br.ReadString('\n')
	require.NoError(t, err)

	if !strings.HasPrefix(line, "VALUE ") {
		return line
	}

	fields := strings.Fields(strings.TrimSuffix(line, "\n"))
	require.Len(t, fields, 4, "malformed VALUE header: %q", line)
	size, err := strconv.Atoi(fields[3])
	require.NoError(t, err)

	body := make([]byte, size+2) // value plus the \r\n separator
	_, err = io.ReadFull(br, body)
	require.NoError(t, err)

	end, err := br.ReadString('\n')
	require.NoError(t, err)

	return line + string(body) + end
}

func exchange(t testing.TB, conn net.Conn, br *bufio.Reader, request string) string {
	t.Helper()

	_, err := conn.Write([]byte(request))
	require.NoError(t, err)
	return readReply(t, br)
}
