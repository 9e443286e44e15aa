package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc derives the rate-limit bucket key for a request.
type KeyFunc func(*gin.Context) string

type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.r, s.b)
		s.limiters[key] = l
	}
	return l
}

// RateLimit limits requests per client IP.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	return RateLimitBy(r, b, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitBy limits requests per caller-derived key. The charge
// endpoint uses it to slow down brute-forced tenant codes, falling
// back to the client IP for unkeyed requests.
func RateLimitBy(r rate.Limit, b int, key KeyFunc) gin.HandlerFunc {
	set := &limiterSet{limiters: make(map[string]*rate.Limiter), r: r, b: b}
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			k = c.ClientIP()
		}
		if !set.get(k).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
