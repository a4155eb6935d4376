package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	claimsKey = "claims"
	userIDKey = "user_id"
)

// RequireUser enforces bearer access tokens and stores the caller on the context.
func RequireUser(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := signer.Parse(tokenStr, TokenAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
			return
		}
		c.Set(claimsKey, claims)
		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
