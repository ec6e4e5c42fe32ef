package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adred-codev/metricstream/internal/ring"
)

// Window is the sliding-window duration spec.md fixes at 1 second.
const Window = time.Second

// DefaultLimit is L, the default per-client requests-per-window allowance.
const DefaultLimit = 10

// DefaultClientTTL is how long a client may sit idle before the cleanup
// sweep reclaims its state.
const DefaultClientTTL = 10 * time.Minute

// DefaultCleanupInterval is how often the sweep runs.
const DefaultCleanupInterval = time.Minute

// clockBase anchors monoNow. time.Since uses the monotonic reading carried
// by clockBase, so monoNow never moves with wall-clock adjustments.
var clockBase = time.Now()

// monoNow returns monotonic nanoseconds since this package was initialized.
func monoNow() int64 { return int64(time.Since(clockBase)) }

// Config configures a Limiter. Zero-value fields take the defaults above.
type Config struct {
	Limit           int
	StripeCount     int
	ClientTTL       time.Duration
	CleanupInterval time.Duration
}

// Limiter implements C1 (striped lock pool) and C3 (sliding-window rate
// limiter) together: C3's allow() is never useful without C1's stripe, and
// both own the same ClientState map.
//
// The client map is a sync.Map rather than a mutex-guarded map
// deliberately: testable property 7 forbids acquiring any lock other than
// a stripe mutex while a stripe mutex is held, and Allow's step 2
// (look up or insert the ClientState) runs inside the stripe-locked
// section. sync.Map's LoadOrStore gives that lookup-or-insert without the
// implementation itself taking an exposed second lock.
type Limiter struct {
	stripes *stripePool
	limit   int
	window  int64 // nanoseconds

	clients     sync.Map // string -> *clientState
	clientCount atomic.Int64
	ttl         time.Duration
}

// New constructs a Limiter. Infallible: any zero-value Config field takes
// its documented default.
func New(cfg Config) *Limiter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	ttl := cfg.ClientTTL
	if ttl <= 0 {
		ttl = DefaultClientTTL
	}
	return &Limiter{
		stripes: newStripePool(cfg.StripeCount),
		limit:   limit,
		window:  int64(Window),
		ttl:     ttl,
	}
}

// Allow implements spec.md §4.3 exactly: stripe-lock, lookup-or-insert,
// evict expired samples, decide, push the decision event, unlock, return.
// Infallible; never blocks on I/O; never allocates in the common path
// beyond the initial per-client sample-slice reservation.
func (l *Limiter) Allow(clientID string) bool {
	mu := l.stripes.mutexFor(clientID)
	mu.Lock()
	defer mu.Unlock()

	state := l.getOrCreate(clientID)

	now := monoNow()
	state.touch(now)
	state.evictOldSamples(now, l.window)

	decision := len(state.samples) < l.limit
	if decision {
		state.samples = append(state.samples, now)
	}
	state.ring.Push(ring.DecisionEvent{At: now, Allowed: decision})

	return decision
}

// getOrCreate returns the client's state, creating it on first observation.
// No lock beyond the stripe mutex the caller already holds is taken here.
func (l *Limiter) getOrCreate(clientID string) *clientState {
	if v, ok := l.clients.Load(clientID); ok {
		return v.(*clientState)
	}
	fresh := &clientState{id: clientID, samples: make([]int64, 0, l.limit)}
	actual, loaded := l.clients.LoadOrStore(clientID, fresh)
	if !loaded {
		l.clientCount.Add(1)
	}
	return actual.(*clientState)
}

// KnownClientIDs returns a snapshot of every currently-tracked client id.
// This is the only operation the flusher (C6) performs against the
// limiter's map; it never takes a stripe lock.
func (l *Limiter) KnownClientIDs() []string {
	ids := make([]string, 0, l.clientCount.Load())
	l.clients.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

// ringFor returns the ClientRingBuffer for a previously-observed client id,
// or nil if the client is unknown (e.g. evicted since the snapshot was
// taken). Looked up without any stripe lock, per spec.md §4.6: the
// flusher never acquires a stripe mutex.
func (l *Limiter) ringFor(clientID string) *ring.ClientRingBuffer {
	v, ok := l.clients.Load(clientID)
	if !ok {
		return nil
	}
	return &v.(*clientState).ring
}

// ClientCount reports the number of currently-tracked clients, for /health.
func (l *Limiter) ClientCount() int {
	return int(l.clientCount.Load())
}

// RunCleanup runs the TTL eviction sweep until ctx is cancelled. It is the
// resolution to spec.md §9's open question on ClientState eviction policy:
// clients idle longer than the configured TTL are dropped, bounding memory
// under adversarial or abandoned client ids. Started once from the owning
// Server's startup sequence and stopped on shutdown, matching C6's own
// ticker-goroutine lifecycle.
func (l *Limiter) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Limiter) sweep() {
	now := monoNow()
	var victims []string
	l.clients.Range(func(key, value any) bool {
		s := value.(*clientState)
		if s.idleSince(now) >= l.ttl {
			victims = append(victims, key.(string))
		}
		return true
	})

	for _, id := range victims {
		// Take the stripe lock before deleting so a request for this exact
		// client id cannot be mid-Allow() when its state vanishes from the
		// map: it would either complete first (holding the lock), or
		// observe a freshly-recreated state on its next Allow() call.
		mu := l.stripes.mutexFor(id)
		mu.Lock()
		if v, ok := l.clients.Load(id); ok {
			s := v.(*clientState)
			if s.idleSince(now) >= l.ttl {
				l.clients.Delete(id)
				l.clientCount.Add(-1)
			}
		}
		mu.Unlock()
	}
}
