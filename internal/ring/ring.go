// Package ring implements the per-client single-producer/single-consumer
// decision-event buffer. Exactly one goroutine pushes (the request path,
// serialized per client by the rate limiter's stripe lock) and exactly one
// goroutine drains (the metrics flusher). No mutex guards the buffer itself;
// the two index counters and release/acquire ordering on the write-index
// store are the entire synchronization contract.
package ring

import "sync/atomic"

// cacheLinePad sizes the gap between hot fields that different goroutines
// write, to avoid false sharing on typical 64-byte cache lines.
const cacheLinePad = 64

// Capacity is N: a fixed power-of-two number of slots. Events older than
// the most recent Capacity pushes are lost if the reader falls behind.
const Capacity = 1024

const indexMask = Capacity - 1

// DecisionEvent records one rate-limiter decision: when it was made and
// whether the request was allowed. It is small and copied by value, never
// referenced across goroutines.
type DecisionEvent struct {
	At      int64 // monotonic nanoseconds, never wall-clock adjusted
	Allowed bool
}

// ClientRingBuffer is a fixed-capacity ring of DecisionEvent plus the two
// monotonically increasing counters that delimit the live window
// [readIndex, writeIndex). Zero value is a valid, empty buffer.
type ClientRingBuffer struct {
	slots [Capacity]DecisionEvent

	writeIndex atomic.Uint64
	_          [cacheLinePad - 8]byte
	readIndex  atomic.Uint64
	_          [cacheLinePad - 8]byte
}

// Push is writer-only. Callers must serialize their own calls to Push for a
// given buffer (the rate limiter does this via its stripe lock); Push does
// not itself lock. The write_index store uses release ordering so that a
// subsequent acquire load of write_index by Drain happens-after the slot
// write below it.
func (r *ClientRingBuffer) Push(e DecisionEvent) {
	idx := r.writeIndex.Load() // no other thread concurrently writes this buffer
	r.slots[idx&indexMask] = e
	r.writeIndex.Store(idx + 1) // release: publishes the slot write above
}

// Drain is reader-only (the metrics flusher is the sole caller across the
// whole process). It visits every event pushed since the last Drain, in
// order, unless the writer has outpaced it by more than Capacity events —
// in that case the oldest overwritten events are silently skipped and only
// the freshest Capacity events ending at the observed write index are
// visited. Returns the number of events visited.
func (r *ClientRingBuffer) Drain(visit func(DecisionEvent)) int {
	read := r.readIndex.Load()        // acquire
	write := r.writeIndex.Load()      // acquire: synchronizes-with the release store in Push
	start := read
	if write-read > Capacity {
		start = write - Capacity
	}
	for i := start; i < write; i++ {
		visit(r.slots[i&indexMask])
	}
	r.readIndex.Store(write) // release
	return int(write - start)
}
