package middleware

import (
	"context"
	"net/http"
	"strings"

	"carpool/internal/models"
	"carpool/internal/utils"
	"carpool/pkg/logger"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// AuthRequired middleware validates JWT token and sets user context.
// Browsers cannot set headers on a websocket handshake, so the token is
// also accepted from the "token" query parameter.
func AuthRequired(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := authenticate(c, secretKey)
		if !ok {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// WebSocketAuth is AuthRequired for live-channel routes: a failure is a
// bare 403 so the handshake carries no detail.
func WebSocketAuth(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := authenticate(c, secretKey)
		if !ok {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// PermissionRequired middleware ensures the principal holds a permission
func PermissionRequired(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if !principal.HasPermission(permission) {
			utils.ForbiddenResponse(c)
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetPrincipal returns the authenticated principal, or the anonymous zero
// value when the route is not behind AuthRequired.
func GetPrincipal(c *gin.Context) models.Principal {
	value, exists := c.Get(principalKey)
	if !exists {
		return models.Principal{}
	}
	principal, ok := value.(models.Principal)
	if !ok {
		return models.Principal{}
	}
	return principal
}

func authenticate(c *gin.Context, secretKey string) (models.Principal, bool) {
	tokenString := bearerToken(c)
	if tokenString == "" {
		return models.Principal{}, false
	}

	claims, err := utils.ValidateToken(tokenString, secretKey)
	if err != nil {
		return models.Principal{}, false
	}

	return models.Principal{
		UserID:      claims.UserID,
		Username:    claims.Username,
		UserType:    claims.UserType,
		Permissions: claims.Permissions,
	}, true
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return ""
		}
		return tokenString
	}
	return c.Query("token")
}

func setPrincipal(c *gin.Context, principal models.Principal) {
	c.Set(principalKey, principal)
	c.Set("user_id", principal.UserID)
	c.Set("user_type", principal.UserType)

	ctx := context.WithValue(c.Request.Context(), logger.UserIDKey, principal.UserID)
	c.Request = c.Request.WithContext(ctx)
}
