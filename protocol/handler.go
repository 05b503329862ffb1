package protocol

import (
	"bytes"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pior/minicache/store"
)

// Store is the lookup capability the handler consumes. *store.Store
// implements it. The returned entry must stay valid and byte-stable for as
// long as the handler holds it, which can span many Poll calls while a
// reply streams out.
type Store interface {
	Lookup(key []byte) (*store.Entry, bool)
}

// handlerState is the single active state of a Handler. Reading states
// consume input one byte at a time; sending states stream one segment of
// the pending reply and hand over to the next on exhaustion.
type handlerState uint8

const (
	// stateReadingCommand accumulates the command token ("get"/"set").
	stateReadingCommand handlerState = iota

	// stateReadingKey accumulates a key token for the recognized command.
	stateReadingKey

	// stateSendingError streams "ERROR\r\n". Input is still scanned while
	// the flush-line flag is set, solely to spot the newline that ends the
	// offending line.
	stateSendingError

	// stateFlushingLine discards input through the next newline, then
	// resets. Entered only after a flush-line error finishes transmitting.
	stateFlushingLine

	// The hit reply pipeline, strictly sequential:
	// "VALUE " key " " flags " " length "\n" value "\r\nEND\r\n".
	stateSendingValuePrefix
	stateSendingKey
	stateSendingKeySpace
	stateSendingFlags
	stateSendingFlagsSpace
	stateSendingLength
	stateSendingHeaderEnd
	stateSendingData

	// stateSendingEnd streams the final literal: "END\r\n" on a miss,
	// "\r\nEND\r\n" after value data on a hit.
	stateSendingEnd
)

func (s handlerState) String() string {
	switch s {
	case stateReadingCommand:
		return "reading_command"
	case stateReadingKey:
		return "reading_key"
	case stateSendingError:
		return "sending_error"
	case stateFlushingLine:
		return "flushing_line"
	case stateSendingValuePrefix:
		return "sending_value_prefix"
	case stateSendingKey:
		return "sending_key"
	case stateSendingKeySpace:
		return "sending_key_space"
	case stateSendingFlags:
		return "sending_flags"
	case stateSendingFlagsSpace:
		return "sending_flags_space"
	case stateSendingLength:
		return "sending_length"
	case stateSendingHeaderEnd:
		return "sending_header_end"
	case stateSendingData:
		return "sending_data"
	case stateSendingEnd:
		return "sending_end"
	default:
		return "unknown"
	}
}

// command is the recognized verb carried from the command token into key
// parsing.
type command uint8

const (
	cmdNone command = iota
	cmdGet
	cmdSet
)

// HandlerOptions tunes a Handler. A nil *HandlerOptions is valid and uses
// the defaults.
type HandlerOptions struct {
	// Logger receives reject and discard events at debug level and state
	// transitions at trace level. Nil disables logging.
	Logger *zerolog.Logger
}

// Handler is the protocol state machine for one connection: an incremental
// parser for request lines and an incremental encoder for replies. It owns
// fixed-capacity buffers only and performs no heap allocation per Poll, so
// a value of it can serve an arbitrarily long connection at a fixed memory
// cost.
//
// A Handler never blocks and never starts goroutines; it advances only
// inside Poll and is resumable at any byte position, so correctness does
// not depend on how the peer or the transport fragments the stream. It is
// not safe for concurrent use; drive it from one goroutine.
type Handler struct {
	store Store
	log   zerolog.Logger
	stats *handlerStatsCollector

	state handlerState

	// Read-side scratch. cmd and key fill one byte at a time; key doubles
	// as the echo source while a hit reply streams.
	cmd    [MaxCommandLength]byte
	cmdLen int
	key    [MaxKeyLength]byte
	keyLen int
	verb   command

	// Write-side cursor. Every sending state streams src[sent:]; advancing
	// to the next stage repoints src. For stateSendingData, src aliases the
	// store entry's value, which is why entries must stay byte-stable.
	src   []byte
	sent  int
	entry *store.Entry

	// Decimal scratch, rendered once at entry to the flags/length stages.
	flagsDigits  [MaxFlagsDigits]byte
	lengthDigits [MaxLengthDigits]byte

	flushLine bool

	// Bound once here so Poll passes the same funcs every time instead of
	// allocating closures.
	fillFn  func([]byte) int
	visitFn func([]byte)
}

// NewHandler returns a Handler reading commands from scratch. Lookups go to
// st; opts may be nil.
func NewHandler(st Store, opts *HandlerOptions) *Handler {
	h := &Handler{
		store: st,
		log:   zerolog.Nop(),
		stats: newHandlerStatsCollector(),
		state: stateReadingCommand,
	}
	if opts != nil && opts.Logger != nil {
		h.log = *opts.Logger
	}
	h.fillFn = h.fill
	h.visitFn = h.consume
	return h
}

// Poll performs at most one transmit attempt (only when a reply is
// pending) followed by one receive attempt, and reports whether either
// call happened. A false return means the handler is idle: no reply
// pending and no input available. Callers typically loop until false,
// then wait for I/O readiness:
//
//	for handler.Poll(transport) {
//	}
func (h *Handler) Poll(t Transport) bool {
	sent := false
	if h.WantsToSend() {
		sent = t.TryTransmit(h.fillFn)
	}
	received := t.TryReceive(h.visitFn)
	return sent || received
}

// WantsToSend reports whether a reply (or part of one) is waiting to be
// transmitted. Event loops use it to choose between write and read
// readiness; while it returns true the peer is expected to be reading, and
// any input received is discarded under the half-duplex rule.
func (h *Handler) WantsToSend() bool {
	switch h.state {
	case stateReadingCommand, stateReadingKey, stateFlushingLine:
		return false
	}
	return true
}

// Stats returns a snapshot of the handler's counters.
func (h *Handler) Stats() HandlerStats {
	return h.stats.snapshot()
}

// Reset returns the handler to its initial state, dropping any partial
// command and any pending reply. Accumulated stats are kept. Used when a
// handler is reattached to a new connection.
func (h *Handler) Reset() {
	h.reset()
}

func (h *Handler) reset() {
	h.state = stateReadingCommand
	h.cmdLen = 0
	h.keyLen = 0
	h.verb = cmdNone
	h.src = nil
	h.sent = 0
	h.entry = nil
	h.flushLine = false
}

func (h *Handler) to(s handlerState) {
	if e := h.log.Trace(); e.Enabled() {
		e.Stringer("from", h.state).Stringer("to", s).Msg("transition")
	}
	h.state = s
}

// fill is the write-path driver: while room remains and a reply is
// pending, copy what fits from the current segment, advance the cursor,
// and on exhaustion move to the next stage. Handed to Transport.TryTransmit.
func (h *Handler) fill(buf []byte) int {
	n := 0
	for n < len(buf) && h.WantsToSend() {
		c := copy(buf[n:], h.src[h.sent:])
		n += c
		h.sent += c
		if h.sent == len(h.src) {
			h.advance()
		}
	}
	return n
}

// advance loads the next segment after the current one is exhausted. The
// decimal fields are rendered here, exactly once, at entry to their stage.
func (h *Handler) advance() {
	h.sent = 0
	switch h.state {
	case stateSendingError:
		h.stats.recordReply()
		if h.flushLine {
			h.to(stateFlushingLine)
		} else {
			h.reset()
		}
	case stateSendingValuePrefix:
		h.src = h.key[:h.keyLen]
		h.to(stateSendingKey)
	case stateSendingKey:
		h.src = tokenSpace
		h.to(stateSendingKeySpace)
	case stateSendingKeySpace:
		h.src = strconv.AppendUint(h.flagsDigits[:0], uint64(h.entry.Flags), 10)
		h.to(stateSendingFlags)
	case stateSendingFlags:
		h.src = tokenSpace
		h.to(stateSendingFlagsSpace)
	case stateSendingFlagsSpace:
		h.src = strconv.AppendUint(h.lengthDigits[:0], uint64(len(h.entry.Value)), 10)
		h.to(stateSendingLength)
	case stateSendingLength:
		h.src = headerNewline
		h.to(stateSendingHeaderEnd)
	case stateSendingHeaderEnd:
		h.src = h.entry.Value
		h.to(stateSendingData)
	case stateSendingData:
		h.src = replyDataEnd
		h.to(stateSendingEnd)
	case stateSendingEnd:
		h.stats.recordReply()
		h.reset()
	}
}

// consume runs the read-path transitions over every delivered byte. Handed
// to Transport.TryReceive; per the transport contract it must use up the
// whole slice.
func (h *Handler) consume(data []byte) {
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch h.state {
		case stateReadingCommand:
			h.feedCommand(c)
		case stateReadingKey:
			h.feedKey(c)
		case stateSendingError:
			if h.flushLine {
				h.stats.recordFlushed(1)
				if c == '\n' {
					h.flushLine = false
				}
			} else {
				h.discard(1)
			}
		case stateFlushingLine:
			h.stats.recordFlushed(1)
			if c == '\n' {
				h.reset()
			}
		default:
			// A reply is streaming: the rest of this chunk is discarded
			// under the half-duplex rule, and nothing below can change the
			// state, so take it in one step.
			h.discard(len(data) - i)
			return
		}
	}
}

func (h *Handler) feedCommand(c byte) {
	if c == ' ' || c == '\n' {
		h.dispatchCommand(c)
		return
	}
	if h.cmdLen == len(h.cmd) {
		h.reject(RejectCommandTooLong, true)
		return
	}
	h.cmd[h.cmdLen] = c
	h.cmdLen++
}

func (h *Handler) dispatchCommand(term byte) {
	token := h.cmd[:h.cmdLen]
	var verb command
	switch {
	case bytes.Equal(token, verbGet):
		verb = cmdGet
	case bytes.Equal(token, verbSet):
		verb = cmdSet
	default:
		h.reject(RejectUnknownCommand, term == ' ')
		return
	}
	if term == '\n' {
		h.reject(RejectMissingArgument, false)
		return
	}
	h.verb = verb
	h.keyLen = 0
	h.to(stateReadingKey)
}

func (h *Handler) feedKey(c byte) {
	if c == ' ' || c == '\n' {
		h.finishKey(c)
		return
	}
	if h.keyLen == len(h.key) {
		h.reject(RejectKeyTooLong, true)
		return
	}
	h.key[h.keyLen] = c
	h.keyLen++
}

func (h *Handler) finishKey(term byte) {
	switch h.verb {
	case cmdGet:
		if e, ok := h.store.Lookup(h.key[:h.keyLen]); ok {
			h.stats.recordGet(true)
			h.entry = e
			h.src = valuePrefix
			h.sent = 0
			h.to(stateSendingValuePrefix)
			return
		}
		h.stats.recordGet(false)
		if term == '\n' {
			h.src = replyEnd
			h.sent = 0
			h.to(stateSendingEnd)
			return
		}
		// Space after a miss: further keys share this line. Only the first
		// hit is answered; clear the buffer for the next token.
		h.keyLen = 0
	case cmdSet:
		h.reject(RejectNotImplemented, term == ' ')
	}
}

func (h *Handler) reject(reason RejectReason, flush bool) {
	h.stats.recordReject(reason)
	if e := h.log.Debug(); e.Enabled() {
		e.Stringer("reason", reason).Bool("flush_line", flush).Msg("rejecting request line")
	}
	h.flushLine = flush
	h.src = replyError
	h.sent = 0
	h.to(stateSendingError)
}

func (h *Handler) discard(n int) {
	h.stats.recordDiscarded(n)
	if e := h.log.Debug(); e.Enabled() {
		e.Int("bytes", n).Stringer("state", h.state).Msg("discarding input while reply in flight")
	}
}
