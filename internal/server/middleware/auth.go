package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/proapi/proapi/internal/routing"
	"github.com/proapi/proapi/pkg/api"
)

// ContextToken is the gin context key the bearer token is stored under.
const ContextToken = "auth_token"

// Auth checks for a valid Bearer token in the Authorization header against
// the live routing table. Snapshots swap on reload, so the lookup goes
// through the accessor on every request.
func Auth(snapshot func() *routing.Snapshot) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			_ = c.Error(api.UnauthorizedError("Missing Authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			_ = c.Error(api.UnauthorizedError("Invalid Authorization header format"))
			c.Abort()
			return
		}
		token := parts[1]

		table := snapshot()
		if !table.TokenKnown(token) && !table.TokenKnown(routing.BypassToken) {
			_ = c.Error(api.UnauthorizedError("Unknown API key"))
			c.Abort()
			return
		}

		c.Set(ContextToken, token)
		c.Next()
	}
}
