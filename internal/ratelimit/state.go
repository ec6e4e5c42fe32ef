package ratelimit

import (
	"sync/atomic"
	"time"

	"github.com/adred-codev/metricstream/internal/ring"
)

// clientState holds everything the limiter tracks for one client id: its
// sliding-window sample sequence and its decision ring buffer. Created on
// first observation. samples is mutated only under the client's stripe
// lock; lastAccessNanos is touched under that same lock and read without
// one by the cleanup sweep (a stale read there only delays eviction by at
// most one sweep interval, which is harmless).
type clientState struct {
	id      string
	samples []int64 // monotonic nanoseconds, oldest first, len <= limit
	ring    ring.ClientRingBuffer

	lastAccessNanos atomic.Int64
}

// evictOldSamples removes samples whose age is >= window, scanning from
// the head (oldest first) since the sequence is maintained in arrival
// order. Must be called under the owning stripe lock. Survivors are
// copied down to index 0 in place, rather than reslicing the head forward,
// so the reserved cap-L backing array never drifts and never needs to
// reallocate under steady traffic (spec.md §4.3's no-allocation promise).
func (c *clientState) evictOldSamples(now int64, window int64) {
	i := 0
	for i < len(c.samples) && now-c.samples[i] >= window {
		i++
	}
	if i > 0 {
		n := copy(c.samples, c.samples[i:])
		c.samples = c.samples[:n]
	}
}

func (c *clientState) touch(now int64) {
	c.lastAccessNanos.Store(now)
}

func (c *clientState) idleSince(now int64) time.Duration {
	return time.Duration(now - c.lastAccessNanos.Load())
}
