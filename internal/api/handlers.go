package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"nutriplan/internal/auth"
	"nutriplan/internal/errs"
	"nutriplan/internal/models"
	"nutriplan/internal/service/ai"
	"nutriplan/internal/service/planner"
	"nutriplan/internal/worker"
)

// planContentFromReply parses a structured plan out of an assistant reply.
func planContentFromReply(reply string) (*models.PlanContent, error) {
	return ai.ParsePlanContent(reply)
}

// ChatManager schedules AI work; satisfied by *worker.Manager.
type ChatManager interface {
	CreateSession(ctx context.Context, req worker.CreateRequest) (*worker.CreateResult, error)
	Exchange(ctx context.Context, req worker.ExchangeRequest) (*worker.ExchangeResult, error)
	Purge(sessionID int64)
	ResetUser(userID int64)
}

// ResetMailer delivers password reset codes; satisfied by *mailer.Mailer.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, code string) error
}

// Handler wires HTTP routes to the planner service, the auth service and
// the chat worker manager.
type Handler struct {
	planner         *planner.Service
	auth            *auth.Service
	chat            ChatManager
	mailer          ResetMailer
	fileBase        string
	fileTTL         time.Duration
	defaultProvider string
}

// NewHandler constructs a Handler instance. mailer may be nil; reset
// requests then succeed without sending mail.
func NewHandler(svc *planner.Service, authService *auth.Service, chat ChatManager, mailer ResetMailer, fileBase string, fileTTL time.Duration, defaultProvider string) *Handler {
	if defaultProvider == "" {
		defaultProvider = "openai"
	}
	return &Handler{
		planner:         svc,
		auth:            authService,
		chat:            chat,
		mailer:          mailer,
		fileBase:        fileBase,
		fileTTL:         fileTTL,
		defaultProvider: defaultProvider,
	}
}

// RegisterRoutes attaches all API routes to the router. auth.Identify must
// already be installed globally.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)
	api.POST("/auth/refresh", h.refresh)
	api.POST("/auth/password-reset/request", h.requestPasswordReset)
	api.POST("/auth/password-reset/confirm", h.confirmPasswordReset)

	guarded := api.Group("")
	guarded.Use(h.auth.RequireAuth(), h.auth.CSRFMiddleware())
	guarded.POST("/auth/logout", h.logout)

	guarded.GET("/profile", h.getProfile)
	guarded.PUT("/profile", h.updateProfile)
	guarded.POST("/profile/terms", h.acceptTerms)
	guarded.DELETE("/profile", h.deleteAccount)

	guarded.GET("/plans", h.listPlans)
	guarded.POST("/plans", h.createPlan)
	guarded.GET("/plans/:id", h.getPlan)
	guarded.PUT("/plans/:id", h.updatePlan)
	guarded.DELETE("/plans/:id", h.deletePlan)
	guarded.GET("/plans/:id/export", h.exportPlan)

	guarded.GET("/ai/sessions", h.listSessions)
	guarded.POST("/ai/sessions", h.createSession)
	guarded.GET("/ai/sessions/:id/messages", h.getSessionMessages)
	guarded.POST("/ai/sessions/:id/message", h.postMessage)
	guarded.DELETE("/ai/sessions/:id", h.deleteSession)
	guarded.POST("/ai/sessions/:id/attachments", h.uploadAttachment)
}

// respondError maps domain errors onto HTTP statuses. Upstream failures
// are reported uniformly so provider details never leak to clients.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, worker.ErrBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	case errs.IsKind(err, errs.KindValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errs.IsKind(err, errs.KindNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errs.IsKind(err, errs.KindUpstream):
		log.Printf("api: upstream error: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI service unavailable"})
	case errs.IsKind(err, errs.KindDatabase):
		log.Printf("api: database error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		// unclassified errors carry internal detail that must not reach
		// the client
		log.Printf("api: unclassified error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// auth endpoints

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.planner.RegisterUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"language":   user.Language,
		"theme":      user.Theme,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.planner.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	pair, err := h.auth.IssueTokens(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.auth.SetSessionCookies(c, pair)
	h.setCSRFCookie(c, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":       user.ID,
			"email":    user.Email,
			"language": user.Language,
			"theme":    user.Theme,
		},
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExpiresAt,
	})
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		if cookie, err := c.Cookie(h.auth.RefreshCookieName()); err == nil {
			token = cookie
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token required"})
		return
	}
	_, pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		if errs.IsKind(err, errs.KindDatabase) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	h.auth.SetSessionCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExpiresAt,
	})
}

func (h *Handler) logout(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	h.chat.ResetUser(userID)
	if cookie, err := c.Cookie(h.auth.RefreshCookieName()); err == nil && cookie != "" {
		_ = h.auth.RevokeRefresh(c.Request.Context(), cookie)
	}
	h.auth.ClearSessionCookies(c)
	h.clearCSRFCookie(c)
	c.Status(http.StatusNoContent)
}

// requestPasswordReset always answers 202 for a well-formed email so the
// endpoint cannot be used to probe which addresses exist.
func (h *Handler) requestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	code, err := h.planner.CreatePasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		if errs.IsKind(err, errs.KindDatabase) {
			respondError(c, err)
			return
		}
	} else if h.mailer != nil {
		if err := h.mailer.SendPasswordReset(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)), code); err != nil {
			log.Printf("api: send reset mail failed: %v", err)
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

func (h *Handler) confirmPasswordReset(c *gin.Context) {
	var req struct {
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	userID, err := h.planner.ConfirmPasswordReset(c.Request.Context(), req.Code, req.NewPassword)
	if err != nil {
		respondError(c, err)
		return
	}
	// a password change invalidates every existing session
	_ = h.auth.RevokeUserTokens(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// profile endpoints

func (h *Handler) getProfile(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.planner.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) updateProfile(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Language string `json:"language"`
		Theme    string `json:"theme"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.planner.UpdatePreferences(c.Request.Context(), userID, req.Language, req.Theme)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) acceptTerms(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Version string `json:"version"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.planner.AcceptTerms(c.Request.Context(), userID, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// deleteAccount removes the user; meal plans and tokens cascade away while
// chat sessions are retained without an owner.
func (h *Handler) deleteAccount(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.chat.ResetUser(userID)
	if err := h.planner.DeleteUser(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	h.auth.ClearSessionCookies(c)
	h.clearCSRFCookie(c)
	c.Status(http.StatusNoContent)
}

// meal plan endpoints

func (h *Handler) listPlans(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	plans, err := h.planner.ListPlans(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if plans == nil {
		plans = make([]models.MealPlan, 0)
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

type createPlanRequest struct {
	Name      string              `json:"name"`
	SessionID int64               `json:"session_id"`
	Content   *models.PlanContent `json:"content"`
}

// createPlan stores a plan either from explicit content or from the
// latest assistant reply of one of the user's sessions.
func (h *Handler) createPlan(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	content := req.Content
	if content == nil {
		if req.SessionID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content or session_id is required"})
			return
		}
		reply, err := h.planner.LatestAssistantMessage(c.Request.Context(), userID, req.SessionID)
		if err != nil {
			respondError(c, err)
			return
		}
		content, err = planContentFromReply(reply)
		if err != nil {
			respondError(c, err)
			return
		}
	}
	plan, err := h.planner.CreatePlan(c.Request.Context(), userID, req.Name, content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *Handler) getPlan(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	planID, ok := pathID(c)
	if !ok {
		return
	}
	plan, err := h.planner.GetPlan(c.Request.Context(), userID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *Handler) updatePlan(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	planID, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Name    string              `json:"name"`
		Content *models.PlanContent `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	plan, err := h.planner.UpdatePlan(c.Request.Context(), userID, planID, req.Name, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *Handler) deletePlan(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	planID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.planner.DeletePlan(c.Request.Context(), userID, planID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) exportPlan(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	planID, ok := pathID(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", "json")
	switch format {
	case "json":
		data, err := h.planner.ExportPlanJSON(c.Request.Context(), userID, planID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="plan-%d.json"`, planID))
		c.Data(http.StatusOK, "application/json", data)
	case "markdown":
		doc, err := h.planner.ExportPlanMarkdown(c.Request.Context(), userID, planID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="plan-%d.md"`, planID))
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(doc))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported format"})
	}
}

// chat session endpoints

func (h *Handler) listSessions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessions, err := h.planner.ListSessions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = make([]models.ChatSession, 0)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type createSessionRequest struct {
	Title    string              `json:"title"`
	Startup  *models.StartupData `json:"startup_data"`
	Provider string              `json:"provider"`
	Model    string              `json:"model"`
}

func (h *Handler) createSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = h.defaultProvider
	}
	result, err := h.chat.CreateSession(c.Request.Context(), worker.CreateRequest{
		UserID:   userID,
		Startup:  req.Startup,
		Title:    req.Title,
		Provider: provider,
		Model:    strings.TrimSpace(req.Model),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id":   result.Session.ID,
		"session":      result.Session,
		"message":      gin.H{"role": models.RoleAssistant, "content": result.Reply},
		"prompt_count": result.Session.PromptCount,
	})
}

func (h *Handler) getSessionMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID, ok := pathID(c)
	if !ok {
		return
	}
	session, messages, err := h.planner.GetSessionWithMessages(c.Request.Context(), userID, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  session,
		"messages": messages,
	})
}

type postMessageRequest struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (h *Handler) postMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID, ok := pathID(c)
	if !ok {
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Message.Role != "" && req.Message.Role != string(models.RoleUser) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only user messages can be posted"})
		return
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = h.defaultProvider
	}
	result, err := h.chat.Exchange(c.Request.Context(), worker.ExchangeRequest{
		UserID:    userID,
		SessionID: sessionID,
		Content:   req.Message.Content,
		Provider:  provider,
		Model:     strings.TrimSpace(req.Model),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":   result.SessionID,
		"user_message": result.UserMessage,
		"message":      result.Message,
		"prompt_count": result.PromptCount,
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.planner.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		respondError(c, err)
		return
	}
	h.chat.Purge(sessionID)
	c.Status(http.StatusNoContent)
}

// attachment upload

const (
	maxUploadBytes   = 10 << 20 // 10 MB
	userStorageLimit = 50 << 20 // 50 MB per user
)

var allowedContentTypes = []string{
	"text/plain",
	"text/markdown",
	"application/pdf",
	"application/json",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"image/",
}

func isAllowedContentType(ct string) bool {
	for _, allowed := range allowedContentTypes {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}

func (h *Handler) uploadAttachment(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID, ok := pathID(c)
	if !ok {
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	usage, err := h.planner.StorageUsage(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "calculate usage failed"})
		return
	}
	if usage+file.Size > userStorageLimit {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "storage quota exceeded"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	_ = f.Close()
	contentType := http.DetectContentType(buf[:n])
	if !isAllowedContentType(contentType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}
	filename := filepath.Base(file.Filename)
	destDir, destPath, finalName := h.getUniqueFilePath(userID, sessionID, filename)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create directory failed"})
		return
	}
	if err := c.SaveUploadedFile(file, destPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save file failed"})
		return
	}
	att, err := h.planner.RecordAttachment(c.Request.Context(), &models.Attachment{
		UserID:     userID,
		SessionID:  sessionID,
		FileName:   finalName,
		StoredPath: destPath,
		MimeType:   contentType,
		Size:       file.Size,
	}, h.fileTTL)
	if err != nil {
		_ = os.Remove(destPath)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"file_id":   att.ID,
		"file_name": att.FileName,
		"size":      att.Size,
		"mime":      att.MimeType,
		"used":      usage + att.Size,
		"limit":     userStorageLimit,
	})
}

func (h *Handler) getFilePath(userID, sessionID int64, filename string) (string, string) {
	destDir := filepath.Join(h.fileBase, strconv.FormatInt(userID, 10), strconv.FormatInt(sessionID, 10))
	destPath := filepath.Join(destDir, filename)
	return destDir, destPath
}

func (h *Handler) getUniqueFilePath(userID, sessionID int64, filename string) (string, string, string) {
	destDir, destPath := h.getFilePath(userID, sessionID, filename)
	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		return destDir, destPath, filename
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for idx := 1; idx <= 1000; idx++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, idx, ext)
		dir, path := h.getFilePath(userID, sessionID, candidate)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return dir, path, candidate
		}
	}
	fallback := fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext)
	return destDir, filepath.Join(destDir, fallback), fallback
}

func (h *Handler) setCSRFCookie(c *gin.Context, token string) {
	ttl := int(h.auth.RefreshTTL().Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.auth.CSRFCookieName(), token, ttl, "/", "", gin.Mode() == gin.ReleaseMode, false)
}

func (h *Handler) clearCSRFCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.auth.CSRFCookieName(), "", -1, "/", "", gin.Mode() == gin.ReleaseMode, false)
}
