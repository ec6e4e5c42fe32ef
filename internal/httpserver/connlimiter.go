package httpserver

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ConnLimiter is a domain-stack, ambient admission valve sitting in front
// of C8's accept loop: a per-IP plus global token bucket rejecting new
// connections before they ever reach C7, distinct from C3's required
// sliding-window per-client algorithm inside the core. Adapted from
// ws/internal/shared/limits/connection_rate_limiter.go.
type ConnLimiter struct {
	ipLimiters map[string]*ipLimiterEntry
	ipMu       sync.RWMutex
	ipBurst    int
	ipRate     float64
	ipTTL      time.Duration

	globalLimiter *rate.Limiter

	logger zerolog.Logger
}

type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ConnLimiterConfig configures ConnLimiter. Zero-value fields take their
// documented defaults.
type ConnLimiterConfig struct {
	IPBurst     int
	IPRate      float64
	IPTTL       time.Duration
	GlobalBurst int
	GlobalRate  float64
	Logger      zerolog.Logger
}

// NewConnLimiter constructs a ConnLimiter with defaults filled in for any
// zero-value config field.
func NewConnLimiter(cfg ConnLimiterConfig) *ConnLimiter {
	if cfg.IPBurst == 0 {
		cfg.IPBurst = 20
	}
	if cfg.IPRate == 0 {
		cfg.IPRate = 5.0
	}
	if cfg.IPTTL == 0 {
		cfg.IPTTL = 5 * time.Minute
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 2000
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = 500.0
	}

	return &ConnLimiter{
		ipLimiters:    make(map[string]*ipLimiterEntry),
		ipBurst:       cfg.IPBurst,
		ipRate:        cfg.IPRate,
		ipTTL:         cfg.IPTTL,
		globalLimiter: rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		logger:        cfg.Logger.With().Str("component", "conn_limiter").Logger(),
	}
}

// Allow reports whether a new connection from ip may proceed: the global
// bucket is checked first (cheap, no map lookup), then the per-IP bucket.
func (c *ConnLimiter) Allow(ip string) bool {
	if !c.globalLimiter.Allow() {
		c.logger.Debug().Str("ip", ip).Msg("connection rejected: global rate limit exceeded")
		return false
	}

	limiter := c.ipLimiterFor(ip)
	if !limiter.Allow() {
		c.logger.Debug().Str("ip", ip).Msg("connection rejected: per-IP rate limit exceeded")
		return false
	}
	return true
}

func (c *ConnLimiter) ipLimiterFor(ip string) *rate.Limiter {
	c.ipMu.RLock()
	entry, ok := c.ipLimiters[ip]
	c.ipMu.RUnlock()
	if ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}

	c.ipMu.Lock()
	defer c.ipMu.Unlock()
	if entry, ok := c.ipLimiters[ip]; ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}
	entry = &ipLimiterEntry{
		limiter:    rate.NewLimiter(rate.Limit(c.ipRate), c.ipBurst),
		lastAccess: time.Now(),
	}
	c.ipLimiters[ip] = entry
	return entry.limiter
}

// Cleanup removes per-IP limiters idle longer than ipTTL. Intended to run
// periodically from a background ticker owned by the Server.
func (c *ConnLimiter) Cleanup() {
	cutoff := time.Now().Add(-c.ipTTL)
	c.ipMu.Lock()
	defer c.ipMu.Unlock()
	for ip, entry := range c.ipLimiters {
		if entry.lastAccess.Before(cutoff) {
			delete(c.ipLimiters, ip)
		}
	}
}
