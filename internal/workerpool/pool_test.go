package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSubmitExecutesTask(t *testing.T) {
	p := New(2, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	if res := p.Submit(func() {
		ran.Store(true)
		wg.Done()
	}); res != Accepted {
		t.Fatalf("Submit = %v, want Accepted", res)
	}

	wg.Wait()
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	p := New(1, 0, zerolog.Nop())
	// No Start call: nothing drains the queue, so it fills deterministically.
	p.taskQueue = make(chan Task, 1)

	if res := p.Submit(func() {}); res != Accepted {
		t.Fatalf("first submit = %v, want Accepted", res)
	}
	if res := p.Submit(func() {}); res != Rejected {
		t.Fatalf("second submit = %v, want Rejected", res)
	}
	if got := p.Rejected(); got != 1 {
		t.Fatalf("Rejected() = %d, want 1", got)
	}
}

func TestPanicInTaskDoesNotKillWorker(t *testing.T) {
	p := New(1, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	p.Submit(func() { panic("boom") })

	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	deadline := time.After(time.Second)
	for {
		res := p.Submit(func() {
			ran.Store(true)
			wg.Done()
		})
		if res == Accepted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker never recovered to accept a second task")
		default:
		}
	}
	wg.Wait()
	if !ran.Load() {
		t.Fatal("task after panic did not run")
	}
}

func TestStopDrainsQueuedTasks(t *testing.T) {
	p := New(2, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var count atomic.Int64
	for i := 0; i < 10; i++ {
		p.Submit(func() { count.Add(1) })
	}
	p.Stop()

	if got := count.Load(); got != 10 {
		t.Fatalf("count = %d, want 10", got)
	}
}
