package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds request rates per client IP. Evaluate covers the
// synchronous evaluation endpoint, which fans out to every agent and is far
// more expensive than a read.
type RateLimitConfig struct {
	Enabled           bool
	ReadPerSecond     float64
	ReadBurst         int
	EvaluatePerSecond float64
	EvaluateBurst     int
}

// DefaultRateLimitConfig returns the limits used when the caller does not
// override them.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           true,
		ReadPerSecond:     50,
		ReadBurst:         100,
		EvaluatePerSecond: 5,
		EvaluateBurst:     10,
	}
}

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{rps: rate.Limit(rps), burst: burst}
}

func (l *ipLimiter) allow(ip string) bool {
	v, ok := l.limiters.Load(ip)
	if !ok {
		v, _ = l.limiters.LoadOrStore(ip, rate.NewLimiter(l.rps, l.burst))
	}
	return v.(*rate.Limiter).Allow()
}

// Middleware rejects requests over the per-IP budget with 429.
func (l *ipLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// rateLimiters groups the per-tier limiters. A nil receiver disables
// limiting entirely.
type rateLimiters struct {
	read     *ipLimiter
	evaluate *ipLimiter
}

func newRateLimiters(config RateLimitConfig) *rateLimiters {
	if !config.Enabled {
		return nil
	}
	return &rateLimiters{
		read:     newIPLimiter(config.ReadPerSecond, config.ReadBurst),
		evaluate: newIPLimiter(config.EvaluatePerSecond, config.EvaluateBurst),
	}
}

func (r *rateLimiters) readLimit() gin.HandlerFunc {
	if r == nil {
		return passthrough
	}
	return r.read.Middleware()
}

func (r *rateLimiters) evaluateLimit() gin.HandlerFunc {
	if r == nil {
		return passthrough
	}
	return r.evaluate.Middleware()
}

func passthrough(c *gin.Context) {
	c.Next()
}
