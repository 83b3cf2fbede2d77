package auth

import (
	"log"
	"net/http"
	"time"

	"nutriplan/internal/errs"

	"github.com/gin-gonic/gin"
)

const (
	userIDContextKey      = "auth_user_id"
	accessTokenContextKey = "auth_access_token"
)

// Identify resolves the request identity without rejecting anything. It
// checks the bearer header first, then the access cookie, and on success
// stores the user id in the context and re-syncs the session cookies.
// Infrastructure failures during validation are logged and the request
// proceeds unauthenticated; route-level policy decides what that means.
func (s *Service) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := s.extractToken(c)
		if accessToken == "" {
			c.Next()
			return
		}
		userID, exp, err := s.ValidateAccess(c.Request.Context(), accessToken)
		if err != nil {
			if errs.IsKind(err, errs.KindDatabase) {
				log.Printf("auth: session check unavailable: %v", err)
			}
			c.Next()
			return
		}
		c.Set(userIDContextKey, userID)
		c.Set(accessTokenContextKey, accessToken)
		s.mirrorSessionCookies(c, accessToken, exp)
		c.Next()
	}
}

// RequireAuth rejects requests that Identify did not authenticate.
func (s *Service) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserIDFromContext(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		c.Next()
	}
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

// AccessTokenFromContext retrieves the access token captured by Identify.
func AccessTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(accessTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	if token := bearerToken(c.GetHeader(s.headerName)); token != "" {
		return token
	}
	if token, err := c.Cookie(accessCookieName); err == nil && token != "" {
		return token
	}
	return ""
}

// mirrorSessionCookies re-sets the session cookies with canonical
// attributes so a cookie planted with a weaker path or SameSite setting
// does not linger.
func (s *Service) mirrorSessionCookies(c *gin.Context, accessToken string, exp time.Time) {
	maxAge := int(s.accessTTL / time.Second)
	if !exp.IsZero() {
		if remaining := time.Until(exp); remaining > 0 {
			maxAge = int(remaining / time.Second)
		}
	}
	setSessionCookie(c, accessCookieName, accessToken, maxAge)
	if refresh, err := c.Cookie(refreshCookieName); err == nil && refresh != "" {
		setSessionCookie(c, refreshCookieName, refresh, int(s.refreshTTL/time.Second))
	}
}

// SetSessionCookies plants both session cookies after login or refresh.
func (s *Service) SetSessionCookies(c *gin.Context, pair *TokenPair) {
	setSessionCookie(c, accessCookieName, pair.AccessToken, int(time.Until(pair.AccessExpiresAt)/time.Second))
	setSessionCookie(c, refreshCookieName, pair.RefreshToken, int(time.Until(pair.RefreshExpiresAt)/time.Second))
}

// ClearSessionCookies expires both session cookies.
func (s *Service) ClearSessionCookies(c *gin.Context) {
	setSessionCookie(c, accessCookieName, "", -1)
	setSessionCookie(c, refreshCookieName, "", -1)
}

func setSessionCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, maxAge, "/", "", gin.Mode() == gin.ReleaseMode, true)
}
