package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	protectedPrefix = "/app"
	authPrefix      = "/auth"
	loginPath       = "/auth/login"
	dashboardPath   = "/app/dashboard"
)

// RegisterPages serves the single-page frontend from webRoot and installs
// the navigation policy: unauthenticated /app visits bounce to the login
// page, authenticated /auth visits bounce to the dashboard.
func (h *Handler) RegisterPages(router *gin.Engine, webRoot string) {
	if webRoot == "" {
		return
	}
	router.Use(h.auth.PagePolicy(protectedPrefix, authPrefix, loginPath, dashboardPath))
	index := filepath.Join(webRoot, "index.html")
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		// sanitized lookup, SPA index fallback for client-side routes
		rel := filepath.Clean("/" + c.Request.URL.Path)
		candidate := filepath.Join(webRoot, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			c.File(candidate)
			return
		}
		c.File(index)
	})
}
