package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

var middlewareTracer = otel.Tracer("auth-middleware")

// Gin context keys set by RequireAuth.
const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
	ClaimsKey   = "claims"
)

// RequireAuth is a Gin middleware that validates JWT bearer tokens
func RequireAuth(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.require_auth")
		defer span.End()

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			// browsers cannot set headers on websocket upgrades
			token = c.Query("access_token")
		}
		if token == "" {
			span.SetAttributes(attribute.Bool("auth.token_present", false))
			unauthorized(c, "Missing or invalid authorization header")
			return
		}
		span.SetAttributes(attribute.Bool("auth.token_present", true))

		claims, err := jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.token_valid", false))
			logger.WithFields(logrus.Fields{"error": err.Error(), "path": c.Request.URL.Path}).Warn("Invalid token")
			unauthorized(c, "Invalid or expired token")
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.token_valid", true),
			attribute.String("user.id", claims.UserID),
		)

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// UserID returns the authenticated user, or "" on unauthenticated routes.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error: message,
		Code:  models.ErrCodeUnauthorized,
	})
}
