package ratelimit

import (
	"context"
	"time"

	"github.com/adred-codev/metricstream/internal/monitoring"
	"github.com/adred-codev/metricstream/internal/ring"
)

// Sink is the monitoring collaborator C6 emits decision events to. It is
// intentionally minimal: spec.md §9 leaves monitoring-sink semantics
// unpinned and directs treating emission as synchronous, so Sink.Emit is
// a blocking call from the flusher's point of view — it returns only once
// the sink has accepted (or logged failure for) the event.
type Sink interface {
	Emit(clientID string, event ring.DecisionEvent)
}

// DefaultFlushInterval is how often the flusher sweeps every client's ring.
const DefaultFlushInterval = time.Second

// Flusher is C6: on each tick it snapshots the limiter's known client ids
// (one brief map read, no stripe lock), then drains each client's ring
// buffer without taking any lock on the ring itself — the SPSC contract
// guarantees it is the only reader. Backpressure on the sink is the sink's
// own concern; the flusher never buffers.
type Flusher struct {
	limiter  *Limiter
	sink     Sink
	interval time.Duration
}

// NewFlusher constructs a Flusher. interval <= 0 takes DefaultFlushInterval.
func NewFlusher(limiter *Limiter, sink Sink, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Flusher{limiter: limiter, sink: sink, interval: interval}
}

// Run blocks, ticking until ctx is cancelled. Intended to be started as
// its own goroutine from the owning Server.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.tick()
		case <-ctx.Done():
			return
		}
	}
}

func (f *Flusher) tick() {
	ids := f.limiter.KnownClientIDs()
	monitoring.KnownClientsGauge.Set(float64(len(ids)))

	for _, id := range ids {
		rb := f.limiter.ringFor(id)
		if rb == nil {
			continue // evicted between the snapshot and this lookup; tolerated
		}
		rb.Drain(func(e ring.DecisionEvent) {
			f.sink.Emit(id, e)
		})
	}
}
