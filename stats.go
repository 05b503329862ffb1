package minicache

import (
	"sync/atomic"
	"time"

	"github.com/pior/minicache/protocol"
)

// ServerStats contains counters for a Server, including the protocol
// counters summed over every session the server has created.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose these as:
//   - Counters: AcceptedConnections, RejectedConnections, SessionErrors
//   - Counters: SessionsCreated, SessionsDestroyed
//   - Protocol counters: see protocol.HandlerStats
type ServerStats struct {
	AcceptedConnections uint64 // Connections accepted by the listener
	RejectedConnections uint64 // Connections dropped before a session slot was acquired
	SessionErrors       uint64 // Sessions that ended with an I/O error rather than a clean disconnect

	SessionsCreated   uint64 // Session slots created by the pool
	SessionsDestroyed uint64 // Session slots destroyed by the pool

	Protocol protocol.HandlerStats // Summed per-session protocol counters
}

// PoolStats contains statistics about the session pool.
//
// For Prometheus integration, expose these as:
//   - Gauges: TotalSessions, IdleSessions, ActiveSessions
//   - Counters: AcquireCount, EmptyAcquireCount, CanceledAcquireCount
//   - Counter: AcquireWaitTime (seconds, from the duration)
type PoolStats struct {
	TotalSessions  int32 // Session slots alive (idle + active)
	IdleSessions   int32 // Slots parked and ready for a connection
	ActiveSessions int32 // Slots currently serving a connection

	AcquireCount         int64         // Successful slot acquires
	EmptyAcquireCount    int64         // Acquires that had to wait for a free slot
	CanceledAcquireCount int64         // Acquires abandoned because the connection context ended
	AcquireWaitTime      time.Duration // Cumulative time spent waiting for a free slot
}

// serverStatsCollector provides internal methods for updating server stats.
// Not exported - the server updates its own stats.
type serverStatsCollector struct {
	accepted      uint64
	rejected      uint64
	sessionErrors uint64
	created       uint64
	destroyed     uint64
}

func (c *serverStatsCollector) recordAccepted() {
	atomic.AddUint64(&c.accepted, 1)
}

func (c *serverStatsCollector) recordRejected() {
	atomic.AddUint64(&c.rejected, 1)
}

func (c *serverStatsCollector) recordSessionError() {
	atomic.AddUint64(&c.sessionErrors, 1)
}

func (c *serverStatsCollector) recordSessionCreated() {
	atomic.AddUint64(&c.created, 1)
}

func (c *serverStatsCollector) recordSessionDestroyed() {
	atomic.AddUint64(&c.destroyed, 1)
}

func (c *serverStatsCollector) snapshot() ServerStats {
	return ServerStats{
		AcceptedConnections: atomic.LoadUint64(&c.accepted),
		RejectedConnections: atomic.LoadUint64(&c.rejected),
		SessionErrors:       atomic.LoadUint64(&c.sessionErrors),
		SessionsCreated:     atomic.LoadUint64(&c.created),
		SessionsDestroyed:   atomic.LoadUint64(&c.destroyed),
	}
}
