// Command minicache-loadgen sends a sustained stream of GET requests to a
// running server and reports throughput and reply counters. A circuit
// breaker around the exchanges keeps the generator from hammering a server
// that stopped answering.
//
// Hits require keys the server was preloaded with; point -keys at the size
// of the preloaded key space (key-0 .. key-N-1) or leave the generator
// measuring misses.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/minicache"
)

type counters struct {
	ops          atomic.Int64
	latencyNs    atomic.Int64
	hits         atomic.Int64
	misses       atomic.Int64
	errorReplies atomic.Int64
	failures     atomic.Int64
}

func main() {
	var (
		addr        = flag.String("addr", "127.0.0.1:11211", "Server address")
		duration    = flag.Duration("duration", 10*time.Second, "How long to run")
		concurrency = flag.Int("concurrency", 4, "Number of concurrent connections")
		keys        = flag.Int("keys", 16, "Size of the key space to query (key-0 .. key-N-1)")
		errEvery    = flag.Int("error-every", 0, "Send an invalid command every N requests (0 disables)")
	)
	flag.Parse()

	fmt.Printf("minicache load generator\n")
	fmt.Printf("========================\n")
	fmt.Printf("Address: %s\n", *addr)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Key space: key-0 .. key-%d\n", *keys-1)
	fmt.Println()

	cb := minicache.NewExchangeBreaker(*addr, uint32(*concurrency), 10*time.Second, 5*time.Second)

	var c counters
	deadline := time.Now().Add(*duration)

	var wg sync.WaitGroup
	for range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(*addr, cb, &c, deadline, *keys, *errEvery)
		}()
	}
	wg.Wait()

	printReport(&c, *duration, cb)
}

func runWorker(addr string, cb *gobreaker.CircuitBreaker[[]byte], c *counters, deadline time.Time, keys, errEvery int) {
	var conn net.Conn
	var br *bufio.Reader
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	n := 0
	for time.Now().Before(deadline) {
		if conn == nil {
			var err error
			conn, err = net.Dial("tcp", addr)
			if err != nil {
				c.failures.Add(1)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			br = bufio.NewReader(conn)
		}

		// Request lines end with a bare newline: a \r would be taken as
		// part of the key and turn every request into a miss.
		n++
		request := fmt.Sprintf("get key-%d\n", rand.IntN(keys))
		if errEvery > 0 && n%errEvery == 0 {
			request = "zap\n"
		}

		start := time.Now()
		reply, err := cb.Execute(func() ([]byte, error) {
			if _, err := conn.Write([]byte(request)); err != nil {
				return nil, err
			}
			return readReply(br)
		})
		if err != nil {
			c.failures.Add(1)
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			conn.Close()
			conn = nil
			continue
		}

		c.ops.Add(1)
		c.latencyNs.Add(time.Since(start).Nanoseconds())
		switch {
		case bytes.HasPrefix(reply, []byte("VALUE ")):
			c.hits.Add(1)
		case bytes.Equal(reply, []byte("END\r\n")):
			c.misses.Add(1)
		case bytes.Equal(reply, []byte("ERROR\r\n")):
			c.errorReplies.Add(1)
		default:
			c.failures.Add(1)
		}
	}
}

// readReply reads one complete reply: a terminal line on its own ("END\r\n",
// "ERROR\r\n") or a VALUE block followed by its END line.
func readReply(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "VALUE ") {
		return []byte(line), nil
	}

	fields := strings.Fields(strings.TrimSuffix(line, "\n"))
	if len(fields) != 4 {
		return nil, fmt.Errorf("malformed VALUE header %q", line)
	}
	size, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("malformed VALUE length %q", line)
	}

	rest := make([]byte, size+len("\r\nEND\r\n"))
	if _, err := io.ReadFull(br, rest); err != nil {
		return nil, err
	}
	return append([]byte(line), rest...), nil
}

func printReport(c *counters, d time.Duration, cb *gobreaker.CircuitBreaker[[]byte]) {
	ops := c.ops.Load()

	fmt.Println("Results")
	fmt.Println("-------")
	fmt.Printf("Requests: %d (%.0f/s)\n", ops, float64(ops)/d.Seconds())
	if ops > 0 {
		fmt.Printf("Latency:  %v avg\n", time.Duration(c.latencyNs.Load()/ops))
	}
	fmt.Printf("Hits:     %d\n", c.hits.Load())
	fmt.Printf("Misses:   %d\n", c.misses.Load())
	fmt.Printf("Errors:   %d\n", c.errorReplies.Load())
	fmt.Printf("Failures: %d\n", c.failures.Load())
	fmt.Printf("Breaker:  %s\n", cb.State())
}
