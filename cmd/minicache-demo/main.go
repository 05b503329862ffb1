// Command minicache-demo drives the protocol handler against a simulated
// transport, with no network involved. Each transmitted chunk is printed
// as it leaves the handler, which makes the chunked shape of the replies
// visible: the transmit buffer is deliberately small.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/pior/minicache/protocol"
	"github.com/pior/minicache/store"
)

// printSocket implements protocol.Transport. Received data is staged by
// the scenario; every transmitted chunk is printed on its own line.
type printSocket struct {
	pending []byte
	txbuf   [100]byte
}

func (s *printSocket) feed(data string) {
	s.pending = append(s.pending, data...)
}

func (s *printSocket) TryReceive(visit func(data []byte)) bool {
	if len(s.pending) == 0 {
		return false
	}
	data := s.pending
	s.pending = nil
	visit(data)
	return true
}

func (s *printSocket) TryTransmit(fill func(buf []byte) int) bool {
	n := fill(s.txbuf[:])
	fmt.Printf("  tx %q\n", s.txbuf[:n])
	return true
}

func main() {
	verbose := flag.Bool("v", false, "Show handler debug logs")
	flag.Parse()

	opts := &protocol.HandlerOptions{}
	if *verbose {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(zerolog.TraceLevel).With().Timestamp().Logger()
		opts.Logger = &logger
	}

	st := store.New()
	st.Insert([]byte("foo"), store.Entry{Value: []byte("bar")})

	h := protocol.NewHandler(st, opts)
	s := &printSocket{}

	step := func(title string, chunks ...string) {
		fmt.Println(title)
		for _, chunk := range chunks {
			fmt.Printf("  rx %q\n", chunk)
			s.feed(chunk)
			for h.Poll(s) {
			}
		}
		fmt.Println()
	}

	step(`hit: "foo" is preloaded`, "get foo\n")
	step("miss: the key is fragmented over several receives", "ge", "t no", "ooo", "pe\n")
	step("error: the command token overflows its buffer", "toolongcommand\n")
	step("error: set is recognized but not implemented", "set foo 0 0 3\n")

	stats := h.Stats()
	fmt.Println("handler counters")
	fmt.Printf("  hits=%d misses=%d replies=%d\n", stats.GetHits, stats.GetMisses, stats.Replies)
	fmt.Printf("  command_too_long=%d not_implemented=%d flushed_bytes=%d\n",
		stats.CommandsTooLong, stats.NotImplemented, stats.FlushedBytes)
}
