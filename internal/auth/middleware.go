package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys
const (
	sessionUserID    = "user_id"
	sessionUserEmail = "user_email"
	sessionUserName  = "user_name"
)

// RequireAuth is a middleware that ensures the user is authenticated and
// makes the user id available as the request's actor.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(sessionUserID)

		if userID == nil {
			if wantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
				return
			}
			c.Redirect(http.StatusFound, "/auth/google")
			c.Abort()
			return
		}

		actor := fmt.Sprint(userID)

		// Set context values for downstream handlers
		c.Set("user_id", actor)
		c.Set("user_email", session.Get(sessionUserEmail))
		c.Set("user_name", session.Get(sessionUserName))
		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))

		c.Next()
	}
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json")
}
