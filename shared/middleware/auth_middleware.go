package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storyroom-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenVerifier checks a bearer token and returns its claims.
// Errors are models.ErrTokenInvalid, models.ErrTokenExpired or models.ErrTokenMalformed.
type TokenVerifier func(ctx context.Context, tokenString string) (*models.Claims, error)

// GinAuthMiddleware verifies the bearer token and stores the caller Identity
// in both the gin context and the request context.
func GinAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.With(zap.String("path", c.Request.URL.Path))

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Authorization header missing")
			abortUnauthorized(c, "missing token")
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			log.Warn("Malformed Authorization header")
			abortUnauthorized(c, "malformed token header")
			return
		}

		claims, err := verifier(c.Request.Context(), parts[1])
		if err != nil {
			switch {
			case errors.Is(err, models.ErrTokenExpired):
				abortUnauthorized(c, "token expired")
			case errors.Is(err, models.ErrTokenMalformed), errors.Is(err, models.ErrTokenInvalid):
				abortUnauthorized(c, "invalid token")
			default:
				log.Error("Unexpected token verification error", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
					Code:    "internal_error",
					Message: "token verification failed",
				})
			}
			return
		}

		identity := claims.Identity()
		c.Set(string(models.IdentityContextKey), identity)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), models.IdentityContextKey, identity))
		log.Debug("User authorized", zap.String("userID", identity.UserID))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Code: "unauthorized", Message: msg})
}
