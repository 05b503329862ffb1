package protocol

import "bytes"

// Transport is the byte-channel capability a Handler drives. Both operations
// are non-blocking attempts; their bool result means "the call happened",
// not "bytes moved", so a transmit that filled zero bytes still returns true.
//
// TryReceive invokes visit at most once, with every byte currently
// available. The bytes are consumed by the call no matter what the visitor
// does with them; a visitor cannot leave a suffix for later. It returns
// false only when no byte was available.
//
// TryTransmit invokes fill at most once with a fixed-capacity buffer; fill
// writes as many leading bytes as it has ready and returns the count. It
// returns false only when the channel cannot take output right now.
type Transport interface {
	TryReceive(visit func(data []byte)) bool
	TryTransmit(fill func(buf []byte) int) bool
}

// BufferTransport is an in-memory Transport: received bytes come from a
// queue loaded with Feed, transmitted bytes accumulate in an output buffer.
// The transmit buffer has a fixed capacity so callers can force replies to
// fragment at chosen sizes. It is not safe for concurrent use.
//
// The zero value is not usable; use NewBufferTransport.
type BufferTransport struct {
	pending []byte
	out     bytes.Buffer
	txbuf   []byte
}

// NewBufferTransport returns a BufferTransport whose transmit buffer holds
// txSize bytes per call. Sizes below 1 use DefaultTransmitBufferSize.
func NewBufferTransport(txSize int) *BufferTransport {
	if txSize < 1 {
		txSize = DefaultTransmitBufferSize
	}
	return &BufferTransport{txbuf: make([]byte, txSize)}
}

// Feed queues data for the next TryReceive calls. The bytes are copied.
func (t *BufferTransport) Feed(data []byte) {
	t.pending = append(t.pending, data...)
}

// FeedString queues s for the next TryReceive calls.
func (t *BufferTransport) FeedString(s string) {
	t.pending = append(t.pending, s...)
}

// TryReceive hands the visitor all queued bytes and clears the queue.
func (t *BufferTransport) TryReceive(visit func(data []byte)) bool {
	if len(t.pending) == 0 {
		return false
	}
	data := t.pending
	t.pending = t.pending[:0]
	visit(data)
	return true
}

// TryTransmit is always possible on an in-memory channel: the producer
// fills the fixed transmit buffer and the result is appended to the output.
func (t *BufferTransport) TryTransmit(fill func(buf []byte) int) bool {
	n := fill(t.txbuf)
	if n > 0 {
		t.out.Write(t.txbuf[:n])
	}
	return true
}

// Output returns the bytes transmitted so far. The slice is only valid
// until the next TryTransmit.
func (t *BufferTransport) Output() []byte {
	return t.out.Bytes()
}

// TakeOutput returns the bytes transmitted so far and resets the output
// buffer. The returned slice is a copy.
func (t *BufferTransport) TakeOutput() []byte {
	data := make([]byte, t.out.Len())
	copy(data, t.out.Bytes())
	t.out.Reset()
	return data
}
