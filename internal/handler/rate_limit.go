package handler

import (
	"net/http"
	"time"

	"storyroom-server/shared/models"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewSocketTokenLimiter throttles handshake token requests per caller. It must
// run after the auth middleware; unauthenticated requests are keyed by IP.
func NewSocketTokenLimiter(store ratelimit.Store, logger *zap.Logger) gin.HandlerFunc {
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			logger.Warn("Socket token rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Code:    "rate_limited",
				Message: "too many requests, try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			if identity, ok := models.GetIdentityFromContext(c.Request.Context()); ok && identity.UserID != "" {
				return "user:" + identity.UserID
			}
			return "ip:" + c.ClientIP()
		},
	})
}
