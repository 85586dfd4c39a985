package middleware

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hongbietcode/voice-to-slide/internal/common"
)

// Limiter is the counter behind the submission rate limit; the redis store
// satisfies it.
type Limiter interface {
	AllowSubmission(ctx context.Context, identity string, limit int, window time.Duration) (bool, error)
}

// RateLimit caps job submissions per client IP over a fixed one-hour window.
// When the counter backend is down the request is allowed through; the limit
// protects capacity, it is not an auth boundary.
func RateLimit(limiter Limiter, perHour int) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.AllowSubmission(c.Request.Context(), c.ClientIP(), perHour, time.Hour)
		if err != nil {
			log.Printf("rate limit check failed ip=%s err=%v", c.ClientIP(), err)
			c.Next()
			return
		}
		if !allowed {
			common.Fail(c, http.StatusTooManyRequests, 42900, "rate limit exceeded, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
