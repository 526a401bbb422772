package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/govledger/internal/identity"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges requests to the client IP.
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByCaller charges requests to the authenticated caller address and falls
// back to the client IP. It must run after identity.RequireCaller.
func ByCaller(c *gin.Context) string {
	if addr, ok := identity.CallerFromCtx(c); ok {
		return "caller:" + addr.Hex()
	}
	return ByClientIP(c)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware that enforces token-bucket rate
// limiting per key. rps is the steady-state requests per second; burst is the
// maximum burst size. Idle buckets are swept until ctx is cancelled.
func RateLimiter(ctx context.Context, rps, burst int, key KeyFunc) gin.HandlerFunc {
	var mu sync.Mutex
	buckets := make(map[string]*bucket)

	go func() {
		ticker := time.NewTicker(limiterSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				for k, b := range buckets {
					if time.Since(b.lastSeen) > limiterIdleAfter {
						delete(buckets, k)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(c *gin.Context) {
		k := key(c)

		mu.Lock()
		b, ok := buckets[k]
		if !ok {
			b = &bucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			buckets[k] = b
		}
		b.lastSeen = time.Now()
		mu.Unlock()

		if !b.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
