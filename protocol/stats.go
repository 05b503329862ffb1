package protocol

import "sync/atomic"

// HandlerStats contains counters for one handler. All fields are safe for
// concurrent access; a handler updates them from its polling goroutine while
// any goroutine reads a snapshot through Handler.Stats.
//
// For Prometheus integration, expose these as:
//   - Counters: GetHits, GetMisses, Replies (derive hit rate as GetHits/(GetHits+GetMisses))
//   - Counters: UnknownCommands, CommandsTooLong, KeysTooLong, MissingArguments, NotImplemented (with reason label)
//   - Counters: DiscardedBytes, FlushedBytes
type HandlerStats struct {
	GetHits   uint64 // Lookups that found the key
	GetMisses uint64 // Lookups that missed (counts lookups, not replies: a multi-key line may miss several times)
	Replies   uint64 // Replies fully handed to the transport (hit, miss and error replies alike)

	UnknownCommands  uint64 // Lines rejected: unrecognized command token
	CommandsTooLong  uint64 // Lines rejected: command token overflow
	KeysTooLong      uint64 // Lines rejected: key overflow
	MissingArguments uint64 // Lines rejected: command without a key
	NotImplemented   uint64 // Lines rejected: recognized command without a wire path ("set")

	DiscardedBytes uint64 // Input bytes dropped while a non-error reply was in flight (half-duplex rule)
	FlushedBytes   uint64 // Input bytes consumed while resynchronizing to the next newline after an error
}

// Add accumulates o into s. Servers use it to sum the counters of several
// handlers into one snapshot.
func (s *HandlerStats) Add(o HandlerStats) {
	s.GetHits += o.GetHits
	s.GetMisses += o.GetMisses
	s.Replies += o.Replies
	s.UnknownCommands += o.UnknownCommands
	s.CommandsTooLong += o.CommandsTooLong
	s.KeysTooLong += o.KeysTooLong
	s.MissingArguments += o.MissingArguments
	s.NotImplemented += o.NotImplemented
	s.DiscardedBytes += o.DiscardedBytes
	s.FlushedBytes += o.FlushedBytes
}

// handlerStatsCollector provides internal methods for updating handler stats.
// Not exported - handlers update their own stats.
type handlerStatsCollector struct {
	stats *HandlerStats
}

func newHandlerStatsCollector() *handlerStatsCollector {
	return &handlerStatsCollector{
		stats: &HandlerStats{},
	}
}

func (c *handlerStatsCollector) recordGet(found bool) {
	if found {
		atomic.AddUint64(&c.stats.GetHits, 1)
	} else {
		atomic.AddUint64(&c.stats.GetMisses, 1)
	}
}

func (c *handlerStatsCollector) recordReply() {
	atomic.AddUint64(&c.stats.Replies, 1)
}

func (c *handlerStatsCollector) recordReject(reason RejectReason) {
	switch reason {
	case RejectUnknownCommand:
		atomic.AddUint64(&c.stats.UnknownCommands, 1)
	case RejectCommandTooLong:
		atomic.AddUint64(&c.stats.CommandsTooLong, 1)
	case RejectKeyTooLong:
		atomic.AddUint64(&c.stats.KeysTooLong, 1)
	case RejectMissingArgument:
		atomic.AddUint64(&c.stats.MissingArguments, 1)
	case RejectNotImplemented:
		atomic.AddUint64(&c.stats.NotImplemented, 1)
	}
}

func (c *handlerStatsCollector) recordDiscarded(n int) {
	atomic.AddUint64(&c.stats.DiscardedBytes, uint64(n))
}

func (c *handlerStatsCollector) recordFlushed(n int) {
	atomic.AddUint64(&c.stats.FlushedBytes, uint64(n))
}

func (c *handlerStatsCollector) snapshot() HandlerStats {
	return HandlerStats{
		GetHits:          atomic.LoadUint64(&c.stats.GetHits),
		GetMisses:        atomic.LoadUint64(&c.stats.GetMisses),
		Replies:          atomic.LoadUint64(&c.stats.Replies),
		UnknownCommands:  atomic.LoadUint64(&c.stats.UnknownCommands),
		CommandsTooLong:  atomic.LoadUint64(&c.stats.CommandsTooLong),
		KeysTooLong:      atomic.LoadUint64(&c.stats.KeysTooLong),
		MissingArguments: atomic.LoadUint64(&c.stats.MissingArguments),
		NotImplemented:   atomic.LoadUint64(&c.stats.NotImplemented),
		DiscardedBytes:   atomic.LoadUint64(&c.stats.DiscardedBytes),
		FlushedBytes:     atomic.LoadUint64(&c.stats.FlushedBytes),
	}
}
