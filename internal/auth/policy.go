package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// PagePolicy redirects page navigation based on the identity resolved by
// Identify: unauthenticated visits under protectedPrefix go to the login
// page, authenticated visits under authPrefix go to the dashboard. 307
// preserves the original method.
func (s *Service) PagePolicy(protectedPrefix, authPrefix, loginPath, dashboardPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		_, authed := UserIDFromContext(c)
		switch {
		case strings.HasPrefix(path, protectedPrefix) && !authed:
			c.Redirect(http.StatusTemporaryRedirect, loginPath)
			c.Abort()
		case strings.HasPrefix(path, authPrefix) && authed:
			c.Redirect(http.StatusTemporaryRedirect, dashboardPath)
			c.Abort()
		default:
			c.Next()
		}
	}
}
