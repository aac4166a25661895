package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentRateLimit throttles payment submissions per client IP. Limiter
// failures let the request through.
func (s *Server) PaymentRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.paymentLimiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.paymentLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("payment rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
