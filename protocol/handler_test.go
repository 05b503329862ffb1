package protocol

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pior/minicache/store"
)

func seededStore() *store.Store {
	st := store.New()
	st.Insert([]byte("foo"), store.Entry{Flags: 0, Value: []byte("bar")})
	return st
}

// drain polls until the handler reports no progress: all queued input is
// consumed and any pending reply is fully transmitted.
func drain(h *Handler, bt *BufferTransport) {
	for h.Poll(bt) {
	}
}

func TestGetHit(t *testing.T) {
	h := NewHandler(seededStore(), nil)
	bt := NewBufferTransport(0)

	bt.FeedString("get foo\n")
	drain(h, bt)

	if got, want := string(bt.Output()), "VALUE foo 0 3\nbar\r\nEND\r\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if h.WantsToSend() {
		t.Error("handler still wants to send after a complete reply")
	}

	stats := h.Stats()
	if stats.GetHits != 1 || stats.GetMisses != 0 {
		t.Errorf("hits/misses = %d/%d, want 1/0", stats.GetHits, stats.GetMisses)
	}
	if stats.Replies != 1 {
		t.Errorf("replies = %d, want 1", stats.Replies)
	}
}

func TestGetMiss(t *testing.T) {
	h := NewHandler(seededStore(), nil)
	bt := NewBufferTransport(0)

	bt.FeedString("get missing\n")
	drain(h, bt)

	if got, want := string(bt.Output()), "END\r\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if stats := h.Stats(); stats.GetMisses != 1 {
		t.Errorf("misses = %d, want 1", stats.GetMisses)
	}
}

func TestRejectedLines(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		counter func(HandlerStats) uint64
		flushed uint64
	}{
		{
			name:    "unknown command then space",
			input:   "zz arg\n",
			counter: func(s HandlerStats) uint64 { return s.UnknownCommands },
			flushed: 4, // "arg\n"
		},
		{
			name:    "unknown command then newline",
			input:   "zz\n",
			counter: func(s HandlerStats) uint64 { return s.UnknownCommands },
			flushed: 0,
		},
		{
			name:    "command overflow",
			input:   "toolongcommand\n",
			counter: func(s HandlerStats) uint64 { return s.CommandsTooLong },
			flushed: 11, // "ongcommand\n"
		},
		{
			name:    "get without key",
			input:   "get\n",
			counter: func(s HandlerStats) uint64 { return s.MissingArguments },
			flushed: 0,
		},
		{
			name:    "set without key",
			input:   "set\n",
			counter: func(s HandlerStats) uint64 { return s.MissingArguments },
			flushed: 0,
		},
		{
			name:    "key overflow",
			input:   "get " + strings.Repeat("k", MaxKeyLength+1) + "\n",
			counter: func(s HandlerStats) uint64 { return s.KeysTooLong },
			flushed: 1, // the newline; the overflowing byte itself is eaten by the reject
		},
		{
			name:    "set with a bare key",
			input:   "set foo\n",
			counter: func(s HandlerStats) uint64 { return s.NotImplemented },
			flushed: 0,
		},
		{
			name:    "set with storage arguments",
			input:   "set foo 0 0 3\n",
			counter: func(s HandlerStats) uint64 { return s.NotImplemented },
			flushed: 6, // "0 0 3\n"
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(seededStore(), nil)
			bt := NewBufferTransport(0)

			bt.FeedString(tt.input)
			drain(h, bt)

			if got, want := string(bt.Output()), "ERROR\r\n"; got != want {
				t.Fatalf("output = %q, want %q", got, want)
			}
			stats := h.Stats()
			if got := tt.counter(stats); got != 1 {
				t.Errorf("reject counter = %d, want 1", got)
			}
			if stats.FlushedBytes != tt.flushed {
				t.Errorf("flushed bytes = %d, want %d", stats.FlushedBytes, tt.flushed)
			}

			// The handler must be ready for the next command.
			bt.TakeOutput()
			bt.FeedString("get foo\n")
			drain(h, bt)
			if got, want := string(bt.Output()), "VALUE foo 0 3\nbar\r\nEND\r\n"; got != want {
				t.Errorf("after reject, output = %q, want %q", got, want)
			}
		})
	}
}

func TestFragmentedInput(t *testing.T) {
	// A request arriving in four TCP segments, polled to idle between them.
	h := NewHandler(seededStore(), nil)
	bt := NewBufferTransport(0)

	for _, chunk := range []string{"ge", "t no", "ooo", "pe\n"} {
		bt.FeedString(chunk)
		drain(h, bt)
	}

	if got, want := string(bt.Output()), "END\r\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestSingleByteReceives(t *testing.T) {
	h := NewHandler(seededStore(), nil)
	bt := NewBufferTransport(0)

	for _, c := range []byte("get foo\n") {
		bt.Feed([]byte{c})
		drain(h, bt)
	}

	if got, want := string(bt.Output()), "VALUE foo 0 3\nbar\r\nEND\r\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

// TestChunkBoundaryIndependence verifies that splitting a request at any
// byte position, with the handler polled to idle in between, produces the
// same bytes as feeding it whole. Requests whose reply starts at the final
// newline qualify; a hit on a space-terminated key starts replying while
// line bytes are still inbound, so how much of its tail gets discarded
// depends on arrival timing.
func TestChunkBoundaryIndependence(t *testing.T) {
	requests := []string{
		"get foo\n",
		"get missing\n",
		"zz arg\n",
		"toolongcommand\n",
		"set a 0 0 3\n",
		"get a b\n",
	}

	run := func(chunks ...string) string {
		h := NewHandler(seededStore(), nil)
		bt := NewBufferTransport(0)
		for _, c := range chunks {
			bt.FeedString(c)
			drain(h, bt)
		}
		return string(bt.Output())
	}

	for _, req := range requests {
		want := run(req)
		for split := 1; split < len(req); split++ {
			if got := run(req[:split], req[split:]); got != want {
				t.Errorf("request %q split at %d: output %q, want %q", req, split, got, want)
			}
		}
	}
}

func TestTransmitSizeIndependence(t *testing.T) {
	want := ""
	for i, size := range []int{1, 2, 3, 7, 64, 100} {
		h := NewHandler(seededStore(), nil)
		bt := NewBufferTransport(size)
		bt.FeedString("get foo\n")
		drain(h, bt)

		got := string(bt.Output())
		if i == 0 {
			want = got
		} else if got != want {
			t.Errorf("transmit size %d: output %q, want %q", size, got, want)
		}
	}
	if want != "VALUE foo 0 3\nbar\r\nEND\r\n" {
		t.Errorf("reference output = %q", want)
	}
}

func TestHalfDuplexDiscard(t *testing.T) {
	h := NewHandler(seededStore(), nil)
	bt := NewBufferTransport(1)

	bt.FeedString("get foo\n")
	if !h.Poll(bt) {
		t.Fatal("expected progress consuming the request")
	}
	h.Poll(bt) // first reply byte goes out

	// The peer pipelines a second request without waiting for the reply.
	bt.FeedString("get bar\n")
	drain(h, bt)

	if got, want := string(bt.Output()), "VALUE foo 0 3\nbar\r\nEND\r\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if stats := h.Stats(); stats.DiscardedBytes != 8 {
		t.Errorf("discarded bytes = %d, want 8", stats.DiscardedBytes)
	}

	// The discarded request is gone, not deferred; the next one is served.
	bt.TakeOutput()
	bt.FeedString("get foo\n")
	drain(h, bt)
	if got, want := string(bt.Output()), "VALUE foo 0 3\nbar\r\nEND\r\n"; got != want {
		t.Errorf("after discard, output = %q, want %q", got, want)
	}
}

func TestInputDuringErrorReply(t *testing.T) {
	h := NewHandler(seededStore(), nil)
	bt := NewBufferTransport(1)

	bt.FeedString("zz\n") // rejected with the line already complete
	h.Poll(bt)

	// Bytes arriving while ERROR streams are dropped, not buffered.
	bt.FeedString("ge")
	drain(h, bt)

	if got, want := string(bt.Output()), "ERROR\r\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if stats := h.Stats(); stats.DiscardedBytes != 2 {
		t.Errorf("discarded bytes = %d, want 2", stats.DiscardedBytes)
	}
}

func TestMultiKeyLine(t *testing.T) {
	t.Run("all miss", func(t *testing.T) {
		h := NewHandler(seededStore(), nil)
		bt := NewBufferTransport(0)
		bt.FeedString("get a b\n")
		drain(h, bt)

		if got, want := string(bt.Output()), "END\r\n"; got != want {
			t.Fatalf("output = %q, want %q", got, want)
		}
		stats := h.Stats()
		if stats.GetMisses != 2 {
			t.Errorf("misses = %d, want 2", stats.GetMisses)
		}
		if stats.Replies != 1 {
			t.Errorf("replies = %d, want 1", stats.Replies)
		}
	})

	t.Run("miss then hit", func(t *testing.T) {
		h := NewHandler(seededStore(), nil)
		bt := NewBufferTransport(0)
		bt.FeedString("get a foo\n")
		drain(h, bt)

		if got, want := string(bt.Output()), "VALUE foo 0 3\nbar\r\nEND\r\n"; got != want {
			t.Fatalf("output = %q, want %q", got, want)
		}
	})

	t.Run("hit wins over the rest of the line", func(t *testing.T) {
		h := NewHandler(seededStore(), nil)
		bt := NewBufferTransport(0)
		bt.FeedString("get foo a\n")
		drain(h, bt)

		if got, want := string(bt.Output()), "VALUE foo 0 3\nbar\r\nEND\r\n"; got != want {
			t.Fatalf("output = %q, want %q", got, want)
		}
		if stats := h.Stats(); stats.DiscardedBytes != 2 {
			t.Errorf("discarded bytes = %d, want 2", stats.DiscardedBytes)
		}
	})

	t.Run("key buffer resets between tokens", func(t *testing.T) {
		// "fo" then "o" must not concatenate into a lookup of "foo".
		h := NewHandler(seededStore(), nil)
		bt := NewBufferTransport(0)
		bt.FeedString("get fo o\n")
		drain(h, bt)

		if got, want := string(bt.Output()), "END\r\n"; got != want {
			t.Fatalf("output = %q, want %q", got, want)
		}
	})
}

func TestSetLeavesStoreUntouched(t *testing.T) {
	st := seededStore()
	h := NewHandler(st, nil)
	bt := NewBufferTransport(0)

	bt.FeedString("set foo 1 0 5\n")
	drain(h, bt)

	if got, want := string(bt.Output()), "ERROR\r\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if st.Len() != 1 {
		t.Errorf("store length = %d, want 1", st.Len())
	}
	e, ok := st.Lookup([]byte("foo"))
	if !ok || string(e.Value) != "bar" {
		t.Errorf("entry for foo changed: %+v", e)
	}
}

func TestFlagsAndValueRoundTrip(t *testing.T) {
	tests := []struct {
		key   string
		flags uint32
		value string
	}{
		{"a", 0, ""},
		{"b", 1, "x"},
		{"c", 42, "hello world"},
		{"d", 4294967295, strings.Repeat("v", 300)},
		{"e", 1000000000, strings.Repeat("w", 5000)},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			st := store.New()
			st.Insert([]byte(tt.key), store.Entry{Flags: tt.flags, Value: []byte(tt.value)})
			h := NewHandler(st, nil)
			bt := NewBufferTransport(0)

			bt.FeedString("get " + tt.key + "\n")
			drain(h, bt)

			want := fmt.Sprintf("VALUE %s %d %d\n%s\r\nEND\r\n", tt.key, tt.flags, len(tt.value), tt.value)
			if got := string(bt.Output()); got != want {
				t.Errorf("output = %q, want %q", got, want)
			}
		})
	}
}

func TestNoProgressWhenIdle(t *testing.T) {
	h := NewHandler(seededStore(), nil)
	bt := NewBufferTransport(0)

	if h.Poll(bt) {
		t.Error("idle handler reported progress")
	}
	if stats := h.Stats(); stats != (HandlerStats{}) {
		t.Errorf("idle poll touched stats: %+v", stats)
	}

	bt.FeedString("get foo\n")
	drain(h, bt)
	if h.Poll(bt) {
		t.Error("drained handler reported progress")
	}
}

func TestResetDropsPendingReply(t *testing.T) {
	h := NewHandler(seededStore(), nil)
	bt := NewBufferTransport(1)

	bt.FeedString("get foo\n")
	h.Poll(bt)
	h.Poll(bt) // partial reply transmitted

	h.Reset()
	if h.WantsToSend() {
		t.Fatal("reset handler still wants to send")
	}
	if stats := h.Stats(); stats.GetHits != 1 {
		t.Errorf("reset cleared stats: hits = %d, want 1", stats.GetHits)
	}

	bt.TakeOutput()
	bt.FeedString("get missing\n")
	drain(h, bt)
	if got, want := string(bt.Output()), "END\r\n"; got != want {
		t.Errorf("after reset, output = %q, want %q", got, want)
	}
}

func TestReplyStreamsFromStoredEntryAfterMutation(t *testing.T) {
	st := seededStore()
	h := NewHandler(st, nil)
	bt := NewBufferTransport(1)

	bt.FeedString("get foo\n")
	h.Poll(bt)
	h.Poll(bt)
	h.Poll(bt) // reply underway, header partially out

	// Replacing and deleting the key must not disturb the in-flight reply.
	st.Insert([]byte("foo"), store.Entry{Flags: 9, Value: []byte("zzzzz")})
	st.Delete([]byte("foo"))
	drain(h, bt)

	if got, want := string(bt.Output()), "VALUE foo 0 3\nbar\r\nEND\r\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}
