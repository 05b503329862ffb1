// coarsetime provides a cheap clock for hot paths that tolerate some slack,
// such as computing an idle deadline on every network read. A background
// goroutine refreshes the shared time at a fixed interval so callers avoid
// a time.Now() call per use.

package coarsetime

import (
	"sync/atomic"
	"time"
)

// Resolution is the refresh interval of the shared clock. Now can lag the
// real time by up to this much.
const Resolution = 50 * time.Millisecond

var now atomic.Pointer[time.Time]

func init() {
	update()

	ticker := time.NewTicker(Resolution)
	go func() {
		for range ticker.C {
			update()
		}
	}()
}

func update() {
	t := time.Now()
	now.Store(&t)
}

// Now returns the shared coarse time.
func Now() time.Time {
	return *now.Load()
}
