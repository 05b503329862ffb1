package minicache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pior/minicache/protocol"
)

func TestServerStatsCollector(t *testing.T) {
	var c serverStatsCollector

	c.recordAccepted()
	c.recordAccepted()
	c.recordRejected()
	c.recordSessionError()
	c.recordSessionCreated()
	c.recordSessionDestroyed()

	require.Equal(t, ServerStats{
		AcceptedConnections: 2,
		RejectedConnections: 1,
		SessionErrors:       1,
		SessionsCreated:     1,
		SessionsDestroyed:   1,
	}, c.snapshot())
}

func TestHandlerStatsAdd(t *testing.T) {
	total := protocol.HandlerStats{GetHits: 1, Replies: 2}
	total.Add(protocol.HandlerStats{GetHits: 2, GetMisses: 3, Replies: 4, DiscardedBytes: 5})

	require.Equal(t, protocol.HandlerStats{
		GetHits:        3,
		GetMisses:      3,
		Replies:        6,
		DiscardedBytes: 5,
	}, total)
}
