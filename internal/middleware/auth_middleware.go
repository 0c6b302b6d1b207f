package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "quickbite/backend/internal/errors"
	"quickbite/backend/internal/service"
)

const (
	UserIDContextKey   = "userID"
	UserTypeContextKey = "userType"
)

// Auth validates the bearer token and stores the caller's identity in the
// gin context. WebSocket clients cannot set headers from the browser, so
// a `token` query parameter is accepted as well.
func Auth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			writeError(c, apperrors.Unauthorized("missing credentials"))
			return
		}

		userID, userType, apiErr := authService.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, userID)
		c.Set(UserTypeContextKey, userType)
		c.Next()
	}
}

// RequireType rejects callers whose user type is not in the allowed set.
func RequireType(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userType := UserType(c)
		for _, t := range allowed {
			if userType == t {
				c.Next()
				return
			}
		}
		writeError(c, apperrors.Forbidden("insufficient permissions"))
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

func UserID(c *gin.Context) string {
	return stringFromContext(c, UserIDContextKey)
}

func UserType(c *gin.Context) string {
	return stringFromContext(c, UserTypeContextKey)
}

func stringFromContext(c *gin.Context, key string) string {
	value, ok := c.Get(key)
	if !ok {
		return ""
	}
	str, ok := value.(string)
	if !ok {
		return ""
	}
	return str
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
	})
}
