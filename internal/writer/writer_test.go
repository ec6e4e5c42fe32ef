package writer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adred-codev/metricstream/internal/ingest"
	"github.com/rs/zerolog"
)

// fakeSink records every appended line and can be told to fail the next N
// Append calls, to exercise the retry path.
type fakeSink struct {
	mu      sync.Mutex
	lines   [][]byte
	flushes int
	failN   int
}

func (s *fakeSink) Append(record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("injected append failure")
	}
	cp := make([]byte, len(record))
	copy(cp, record)
	s.lines = append(s.lines, cp)
	return nil
}

func (s *fakeSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *fakeSink) snapshot() ([][]byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.lines...), s.flushes
}

func batchOf(n int) *ingest.MetricBatch {
	metrics := make([]ingest.Metric, n)
	for i := range metrics {
		metrics[i] = ingest.Metric{Name: "cpu", Value: 1.5, ObservedAt: int64(i)}
	}
	return &ingest.MetricBatch{Metrics: metrics}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestEnqueueDrainsAndAppendsEachMetric(t *testing.T) {
	sink := &fakeSink{}
	w := New(sink, nil, zerolog.Nop(), Config{})
	go w.Run()
	defer w.Shutdown()

	if res := w.Enqueue(PendingBatch{ClientID: "c1", Batch: batchOf(3)}); res != Ok {
		t.Fatalf("Enqueue = %v, want Ok", res)
	}

	waitFor(t, time.Second, func() bool {
		lines, _ := sink.snapshot()
		return len(lines) == 3
	})
}

func TestEnqueueRejectsWhenQueueFull(t *testing.T) {
	sink := &fakeSink{}
	w := New(sink, nil, zerolog.Nop(), Config{Capacity: 2})

	// No Run goroutine started: queue never drains, so it fills up.
	if res := w.Enqueue(PendingBatch{ClientID: "a", Batch: batchOf(1)}); res != Ok {
		t.Fatalf("first enqueue = %v, want Ok", res)
	}
	if res := w.Enqueue(PendingBatch{ClientID: "b", Batch: batchOf(1)}); res != Ok {
		t.Fatalf("second enqueue = %v, want Ok", res)
	}
	if res := w.Enqueue(PendingBatch{ClientID: "c", Batch: batchOf(1)}); res != QueueFull {
		t.Fatalf("third enqueue = %v, want QueueFull", res)
	}
}

func TestAppendRetriesThenSucceeds(t *testing.T) {
	sink := &fakeSink{failN: 2}
	w := New(sink, nil, zerolog.Nop(), Config{MaxRetries: 3, Backoff: time.Millisecond})
	go w.Run()
	defer w.Shutdown()

	w.Enqueue(PendingBatch{ClientID: "c1", Batch: batchOf(1)})

	waitFor(t, time.Second, func() bool {
		lines, _ := sink.snapshot()
		return len(lines) == 1
	})
	if w.Dropped() != 0 {
		t.Fatalf("Dropped() = %d, want 0", w.Dropped())
	}
}

func TestAppendDropsAfterExhaustingRetries(t *testing.T) {
	sink := &fakeSink{failN: 100}
	w := New(sink, nil, zerolog.Nop(), Config{MaxRetries: 2, Backoff: time.Millisecond})
	go w.Run()
	defer w.Shutdown()

	w.Enqueue(PendingBatch{ClientID: "c1", Batch: batchOf(1)})

	waitFor(t, time.Second, func() bool {
		return w.Dropped() == 1
	})
	lines, _ := sink.snapshot()
	if len(lines) != 0 {
		t.Fatalf("expected no lines appended, got %d", len(lines))
	}
}

func TestShutdownDrainsRemainder(t *testing.T) {
	sink := &fakeSink{}
	w := New(sink, nil, zerolog.Nop(), Config{})
	go w.Run()

	for i := 0; i < 5; i++ {
		w.Enqueue(PendingBatch{ClientID: "c1", Batch: batchOf(1)})
	}
	w.Shutdown()

	waitFor(t, time.Second, func() bool {
		lines, _ := sink.snapshot()
		return len(lines) == 5
	})
	if depth := w.QueueDepth(); depth != 0 {
		t.Fatalf("QueueDepth() after shutdown = %d, want 0", depth)
	}
}
