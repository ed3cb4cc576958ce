package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantkit/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	rateLimitEndpointValidate = "validate_invite"
	rateLimitEndpointAccept   = "accept_invite"

	rateLimitReasonClientRate = "client-rate"
)

// InviteTokenRateLimit throttles token guessing per client IP.
func (s *Server) InviteTokenRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.inviteLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.inviteLimiter.Allow(ctx, endpoint, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("invite token rate limit check failed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("invite token rate limit exceeded",
				zap.String("endpoint", endpoint),
				zap.String("reason", rateLimitReasonClientRate),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonClientRate)

			c.Header("Retry-After", retryAfterSeconds(result.RetryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonClientRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int64((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}
