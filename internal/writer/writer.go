// Package writer implements the durable writer (C5): a bounded
// producer/consumer queue of PendingBatch, enqueued from request
// goroutines and drained by one dedicated background goroutine.
package writer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/adred-codev/metricstream/internal/ingest"
	"github.com/adred-codev/metricstream/internal/monitoring"
	"github.com/rs/zerolog"
)

// DefaultQueueCapacity is the writer queue's bound (spec.md §4.5).
const DefaultQueueCapacity = 16384

// DefaultMaxRetries and DefaultRetryBackoff bound how hard the background
// loop tries before dropping a batch that the sink keeps rejecting.
const (
	DefaultMaxRetries  = 3
	DefaultRetryBackoff = 10 * time.Millisecond
)

// EnqueueResult is C5's submit() contract, returned without ever touching
// disk.
type EnqueueResult int

const (
	Ok EnqueueResult = iota
	QueueFull
)

// PendingBatch is a MetricBatch handed to the writer, tagged with the
// client id it arrived from (needed to format each record line).
type PendingBatch struct {
	ClientID string
	Batch    *ingest.MetricBatch
}

// Writer is C5. Construct with New, start the background drain loop with
// Run, and call Shutdown to drain the remainder and stop.
type Writer struct {
	sink       Sink
	mirror     MirrorSink // optional; nil disables the domain-stack mirror
	logger     zerolog.Logger
	maxRetries int
	backoff    time.Duration

	mu       sync.Mutex
	queue    []PendingBatch
	capacity int
	notEmpty chan struct{}

	stopped  atomic.Bool
	done     chan struct{}
	finished chan struct{}

	dropped atomic.Int64
}

// Config configures a Writer. Zero-value fields take their documented
// defaults.
type Config struct {
	Capacity   int
	MaxRetries int
	Backoff    time.Duration
}

// New constructs a Writer around sink (required) and an optional mirror.
func New(sink Sink, mirror MirrorSink, logger zerolog.Logger, cfg Config) *Writer {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Writer{
		sink:       sink,
		mirror:     mirror,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
		capacity:   capacity,
		notEmpty:   make(chan struct{}, 1),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// Enqueue implements C5's enqueue(): locks, rejects if at capacity, pushes,
// signals, returns without touching disk.
func (w *Writer) Enqueue(pb PendingBatch) EnqueueResult {
	w.mu.Lock()
	if len(w.queue) >= w.capacity {
		w.mu.Unlock()
		return QueueFull
	}
	w.queue = append(w.queue, pb)
	w.mu.Unlock()

	select {
	case w.notEmpty <- struct{}{}:
	default:
	}
	return Ok
}

// QueueDepth reports the current number of pending batches, for /health.
func (w *Writer) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Dropped reports the cumulative number of batches dropped after
// exhausting retries, for /health.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Run is the background drain loop: wait for non-empty or shutdown; under
// lock, drain the entire current contents into a local slice; release the
// lock; append each batch's metrics as textual records; flush after each
// drained burst. Intended to run in its own goroutine.
func (w *Writer) Run() {
	defer close(w.finished)
	for {
		select {
		case <-w.notEmpty:
		case <-w.done:
			w.drainRemaining()
			return
		}
		w.drainOnce()

		// A shutdown signal that arrived while draining must still trigger
		// one more pass to catch anything enqueued in the interim.
		select {
		case <-w.done:
			w.drainRemaining()
			return
		default:
		}
	}
}

func (w *Writer) drainRemaining() {
	// Best-effort final pass: keep draining until the queue is empty, per
	// spec.md §4.5's shutdown contract ("drains remaining queued batches
	// once more before returning").
	for {
		w.mu.Lock()
		empty := len(w.queue) == 0
		w.mu.Unlock()
		if empty {
			return
		}
		w.drainOnce()
	}
}

func (w *Writer) drainOnce() {
	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	for _, pb := range batch {
		w.appendWithRetry(pb)
	}

	if err := w.sink.Flush(); err != nil {
		w.logger.Error().Err(err).Msg("durable writer: flush failed")
	}
}

// appendWithRetry retries the whole batch from its first metric on a
// mid-batch Append failure, so a retry can re-append metrics the prior
// attempt already wrote successfully. At-least-once, not exactly-once, per
// spec.md §4.5; acceptable since a duplicated record is far cheaper than a
// dropped one.
func (w *Writer) appendWithRetry(pb PendingBatch) {
	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(w.backoff)
		}

		ok := true
		for _, m := range pb.Batch.Metrics {
			record := formatRecord(pb.ClientID, m)
			if err := w.sink.Append(record); err != nil {
				lastErr = err
				ok = false
				break
			}
			if w.mirror != nil {
				if err := w.mirror.Mirror(record); err != nil {
					// Mirror failures never affect the primary append's
					// outcome; they are logged and otherwise ignored.
					w.logger.Warn().Err(err).Msg("durable writer: mirror sink failed")
				}
			}
		}
		if ok {
			return
		}
	}

	w.logger.Error().
		Err(lastErr).
		Str("client_id", pb.ClientID).
		Int("metrics", len(pb.Batch.Metrics)).
		Msg("durable writer: dropping batch after exhausting retries")
	w.dropped.Add(1)
	monitoring.WriterDroppedTotal.Inc()
}

// Shutdown signals the background loop to drain remaining batches once
// more, then blocks until Run has actually returned: per spec.md §4.5 and
// §5, join is synchronous from the owning component's teardown, so the
// process must not exit (and testable property 3's "queue empty, every
// batch appended-or-dropped" guarantee must not be checked) until this
// call returns. Safe to call more than once or concurrently; every caller
// blocks until the one underlying Run exits.
func (w *Writer) Shutdown() {
	if w.stopped.CompareAndSwap(false, true) {
		close(w.done)
	}
	<-w.finished
}
