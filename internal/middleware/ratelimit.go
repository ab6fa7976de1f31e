package middleware

import (
	"net/http"
	"sync"
	"time"

	"communityboard/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 5 * time.Minute
	limiterSweepEvery = time.Minute
)

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterPool hands out one token bucket per client key.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{m: make(map[string]*limiterEntry), rps: rate.Limit(rps), burst: burst}
}

func (p *limiterPool) allow(key string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(p.rps, p.burst)}
		p.m[key] = e
	}
	e.seen = now
	if now.Sub(p.lastSweep) >= limiterSweepEvery {
		p.evictLocked(now)
		p.lastSweep = now
	}
	return e.lim.AllowN(now, 1)
}

// evictLocked drops buckets idle for longer than limiterIdleTTL. It scans the
// whole map, so allow runs it at most once per limiterSweepEvery.
func (p *limiterPool) evictLocked(now time.Time) {
	for k, e := range p.m {
		if now.Sub(e.seen) > limiterIdleTTL {
			delete(p.m, k)
		}
	}
}

// RateLimit throttles by client IP. Used on the login and refresh routes.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst)
	return func(c *gin.Context) {
		if !pool.allow(c.ClientIP(), time.Now()) {
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
