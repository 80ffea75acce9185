package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jengzang/trackmap/pkg/response"
)

// RateLimiter implements per-IP token bucket rate limiting
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	idle     time.Duration // entries unused for this long are dropped
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter allows limit requests per window and client, with bursts
// of up to limit requests. A non-positive limit disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Inf,
		burst:    1,
		idle:     window,
	}
	if limit > 0 {
		rl.rate = rate.Every(window / time.Duration(limit))
		rl.burst = limit
	}
	return rl
}

// Run removes idle clients until stop is closed
func (rl *RateLimiter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, e := range rl.limiters {
		if now.Sub(e.lastAccess) >= rl.idle {
			delete(rl.limiters, ip)
		}
	}
}

// Allow checks if a request from the given IP is allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	e, ok := rl.limiters[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = e
	}
	e.lastAccess = time.Now()
	limiter := e.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// RateLimit middleware rejects clients exceeding the limiter
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			response.Abort(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		c.Next()
	}
}
