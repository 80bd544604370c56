package middleware

import (
	"net/http"
	"strings"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/pkg/auth"
	"github.com/gin-gonic/gin"
)

const claimsContextKey = "dentflow.claims"

// RequireAuth validates the bearer token and stores the claims in the
// request context for downstream handlers.
func RequireAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header must be a bearer token"})
			return
		}

		claims, err := jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// RequireRoles rejects requests whose authenticated role is not in the
// allow list. Must run after RequireAuth.
func RequireRoles(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

// ClaimsFrom retrieves the authenticated claims set by RequireAuth.
func ClaimsFrom(c *gin.Context) (*domain.Claims, bool) {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*domain.Claims)
	return claims, ok
}

// ActorFrom converts the authenticated claims into an ActorContext.
func ActorFrom(c *gin.Context) (domain.ActorContext, bool) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return domain.ActorContext{}, false
	}
	return claims.Actor(), true
}
