package minicache

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// NewExchangeBreaker returns a circuit breaker for one cache server, meant
// to wrap a full request/reply exchange on the client side. The breaker
// opens once at least three exchanges were attempted in the current
// interval and 60% of them failed, which keeps clients and load generators
// from hammering a server that stopped answering.
//
// The result type is the raw reply bytes of the exchange.
func NewExchangeBreaker(addr string, maxRequests uint32, interval, timeout time.Duration) *gobreaker.CircuitBreaker[[]byte] {
	settings := gobreaker.Settings{
		Name:        addr,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
	return gobreaker.NewCircuitBreaker[[]byte](settings)
}
