package ratelimit

import (
	"testing"
	"time"

	"github.com/adred-codev/metricstream/internal/ring"
)

func TestAllowLimitsWithinWindow(t *testing.T) {
	l := New(Config{Limit: 10})

	allowed := 0
	for i := 0; i < 15; i++ {
		if l.Allow("c2") {
			allowed++
		}
	}

	if allowed != 10 {
		t.Fatalf("allowed = %d, want 10", allowed)
	}
}

func TestAllowResetsAfterWindow(t *testing.T) {
	l := New(Config{Limit: 1})

	if !l.Allow("c1") {
		t.Fatalf("first call should be allowed")
	}
	if l.Allow("c1") {
		t.Fatalf("second call within window should be denied")
	}

	time.Sleep(Window + 50*time.Millisecond)

	if !l.Allow("c1") {
		t.Fatalf("call after window elapses should be allowed again")
	}
}

func TestAllowIsPerClient(t *testing.T) {
	l := New(Config{Limit: 1})

	if !l.Allow("a") {
		t.Fatalf("first call for a should be allowed")
	}
	if !l.Allow("b") {
		t.Fatalf("first call for b should be allowed (independent of a)")
	}
}

func TestAllowPushesDecisionEvents(t *testing.T) {
	l := New(Config{Limit: 1})

	l.Allow("c1")
	l.Allow("c1")

	rb := l.ringFor("c1")
	if rb == nil {
		t.Fatalf("expected client state for c1")
	}

	var decisions []bool
	rb.Drain(func(e ring.DecisionEvent) {
		decisions = append(decisions, e.Allowed)
	})

	if len(decisions) != 2 {
		t.Fatalf("drained %d events, want 2", len(decisions))
	}
	if !decisions[0] || decisions[1] {
		t.Fatalf("decisions = %v, want [true false]", decisions)
	}
}

func TestClientCountAndKnownIDs(t *testing.T) {
	l := New(Config{Limit: 10})

	l.Allow("x")
	l.Allow("y")
	l.Allow("x")

	if got := l.ClientCount(); got != 2 {
		t.Fatalf("ClientCount() = %d, want 2", got)
	}

	ids := l.KnownClientIDs()
	if len(ids) != 2 {
		t.Fatalf("KnownClientIDs() returned %d ids, want 2", len(ids))
	}
}
