// internal/middleware/rate_limit.go
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/expenseflow/expenseflow-backend/internal/config"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP. Idle visitors are
// evicted by a background sweep so the map cannot grow unbounded.
type ipRateLimiter struct {
	visitors map[string]*visitor
	mtx      sync.Mutex
	rate     rate.Limit
	burst    int
}

func newIPRateLimiter(interval time.Duration, burst int) *ipRateLimiter {
	rl := &ipRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Every(interval),
		burst:    burst,
	}
	go rl.cleanupVisitors()
	return rl
}

func (rl *ipRateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		rl.mtx.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.mtx.Unlock()
	}
}

func (rl *ipRateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getVisitor(c.ClientIP())

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func budget(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}

// GeneralRateLimit caps all traffic per IP; the budget refills continuously
// over each second.
func GeneralRateLimit(cfg *config.Config) gin.HandlerFunc {
	n := budget(cfg.RateLimit.GeneralPerSecond, 10)
	return newIPRateLimiter(time.Second/time.Duration(n), n).middleware()
}

// AuthRateLimit is the tighter budget for credential endpoints.
func AuthRateLimit(cfg *config.Config) gin.HandlerFunc {
	n := budget(cfg.RateLimit.AuthPerMinute, 5)
	return newIPRateLimiter(time.Minute/time.Duration(n), n).middleware()
}

// UploadRateLimit caps receipt uploads per IP.
func UploadRateLimit(cfg *config.Config) gin.HandlerFunc {
	n := budget(cfg.RateLimit.UploadPerMinute, 10)
	return newIPRateLimiter(time.Minute/time.Duration(n), n).middleware()
}
