package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"nutriplan/internal/auth"
	"nutriplan/internal/config"
	"nutriplan/internal/errs"
	"nutriplan/internal/models"
	"nutriplan/internal/service/planner"
	"nutriplan/internal/storage"
	"nutriplan/internal/worker"
)

// fakeChat answers with scripted results so handler tests never touch a
// provider or the worker pool.
type fakeChat struct {
	createResult   *worker.CreateResult
	createErr      error
	exchangeResult *worker.ExchangeResult
	exchangeErr    error

	createCalls   int
	exchangeCalls int
	purged        []int64
	resets        []int64
}

func (f *fakeChat) CreateSession(ctx context.Context, req worker.CreateRequest) (*worker.CreateResult, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResult, nil
}

func (f *fakeChat) Exchange(ctx context.Context, req worker.ExchangeRequest) (*worker.ExchangeResult, error) {
	f.exchangeCalls++
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.exchangeResult, nil
}

func (f *fakeChat) Purge(sessionID int64)  { f.purged = append(f.purged, sessionID) }
func (f *fakeChat) ResetUser(userID int64) { f.resets = append(f.resets, userID) }

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) SendPasswordReset(ctx context.Context, to, code string) error {
	f.sent = append(f.sent, to)
	return f.err
}

type testServer struct {
	router  *gin.Engine
	planner *planner.Service
	auth    *auth.Service
	chat    *fakeChat
	mailer  *fakeMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: dsn},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	svc := planner.NewService(db)
	authSvc := auth.NewService(db, nil, []byte("handler-test-secret"), 15*time.Minute, 24*time.Hour)
	chat := &fakeChat{}
	mail := &fakeMailer{}

	handler := NewHandler(svc, authSvc, chat, mail, t.TempDir(), time.Hour, "openai")
	router := gin.New()
	router.Use(authSvc.Identify())
	handler.RegisterRoutes(router)

	return &testServer{router: router, planner: svc, auth: authSvc, chat: chat, mailer: mail}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// registerAndLogin creates a user and returns their access token.
func (s *testServer) registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": email, "password": "password123"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", email, w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", email, w.Code, w.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("login returned no access token")
	}
	return resp.AccessToken
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func testPlanContent() *models.PlanContent {
	return &models.PlanContent{
		Days: []models.DayPlan{{
			Day:     1,
			Summary: models.MacroSummary{Kcal: 2100, ProteinG: 158, FatG: 70, CarbsG: 210},
			Meals: []models.Meal{{
				Name:        "Oatmeal with berries",
				Ingredients: []string{"80 g oats", "200 ml milk"},
				Preparation: "Simmer oats in milk, top with berries.",
				Summary:     models.MacroSummary{Kcal: 450, ProteinG: 18, FatG: 10, CarbsG: 70},
			}},
		}},
		Exclusions: []string{"peanuts"},
	}
}

func TestLoginSetsSessionCookies(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAndLogin(t, "alice@example.com")

	w := srv.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d", w.Code)
	}
	names := map[string]bool{}
	for _, cookie := range w.Result().Cookies() {
		names[cookie.Name] = true
	}
	for _, want := range []string{"sb-access-token", "sb-refresh-token", "csrf_token"} {
		if !names[want] {
			t.Fatalf("login did not set cookie %q, got %v", want, names)
		}
	}
}

func TestGuardedRoutesRequireAuth(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/api/profile", "/api/plans", "/api/ai/sessions"} {
		w := srv.do(t, http.MethodGet, path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s without auth: status %d want 401", path, w.Code)
		}
	}
}

func TestProfileLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "bob@example.com")

	w := srv.do(t, http.MethodGet, "/api/profile", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get profile: status %d", w.Code)
	}
	var user models.User
	decodeBody(t, w, &user)
	if user.Email != "bob@example.com" || user.Language != "en" {
		t.Fatalf("unexpected profile: %+v", user)
	}

	w = srv.do(t, http.MethodPut, "/api/profile", token, gin.H{"language": "de", "theme": "dark"})
	if w.Code != http.StatusOK {
		t.Fatalf("update profile: status %d: %s", w.Code, w.Body.String())
	}
	decodeBody(t, w, &user)
	if user.Language != "de" || user.Theme != "dark" {
		t.Fatalf("preferences not applied: %+v", user)
	}

	w = srv.do(t, http.MethodPut, "/api/profile", token, gin.H{"theme": "neon"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad theme: status %d want 400", w.Code)
	}

	w = srv.do(t, http.MethodPost, "/api/profile/terms", token, gin.H{"version": "2026-08"})
	if w.Code != http.StatusOK {
		t.Fatalf("accept terms: status %d: %s", w.Code, w.Body.String())
	}
	decodeBody(t, w, &user)
	if user.TermsVersion == nil || *user.TermsVersion != "2026-08" {
		t.Fatalf("terms not recorded: %+v", user.TermsVersion)
	}
}

func TestPlanEndpoints(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "carol@example.com")

	w := srv.do(t, http.MethodPost, "/api/plans", token, gin.H{"name": "Week one", "content": testPlanContent()})
	if w.Code != http.StatusCreated {
		t.Fatalf("create plan: status %d: %s", w.Code, w.Body.String())
	}
	var plan models.MealPlan
	decodeBody(t, w, &plan)
	if plan.ID <= 0 || plan.Name != "Week one" {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	w = srv.do(t, http.MethodGet, fmt.Sprintf("/api/plans/%d", plan.ID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get plan: status %d", w.Code)
	}

	// ownership failures read as missing, not forbidden
	otherToken := srv.registerAndLogin(t, "dave@example.com")
	w = srv.do(t, http.MethodGet, fmt.Sprintf("/api/plans/%d", plan.ID), otherToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign plan: status %d want 404", w.Code)
	}

	w = srv.do(t, http.MethodGet, fmt.Sprintf("/api/plans/%d/export?format=markdown", plan.ID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export markdown: status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "# Week one") {
		t.Fatalf("markdown export missing title:\n%s", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, ".md") {
		t.Fatalf("markdown disposition wrong: %q", cd)
	}

	w = srv.do(t, http.MethodGet, fmt.Sprintf("/api/plans/%d/export?format=xml", plan.ID), token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unsupported format: status %d want 400", w.Code)
	}

	w = srv.do(t, http.MethodDelete, fmt.Sprintf("/api/plans/%d", plan.ID), token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete plan: status %d", w.Code)
	}
	w = srv.do(t, http.MethodGet, fmt.Sprintf("/api/plans/%d", plan.ID), token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted plan: status %d want 404", w.Code)
	}
}

const assistantPlanReply = `{"days":[{"day":1,"summary":{"kcal":2100,"protein_g":158,"fat_g":70,"carbs_g":210},"meals":[{"name":"Oatmeal","ingredients":["oats"],"preparation":"cook","summary":{"kcal":450,"protein_g":18,"fat_g":10,"carbs_g":70}}]}]}`

func TestCreatePlanFromSession(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "erin@example.com")

	user, err := srv.planner.Login(context.Background(), "erin@example.com", "password123")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	startup := &models.StartupData{
		PatientAge: 34, PatientWeightKg: 72.5, PatientHeightCm: 178,
		Sex: "female", ActivityLevel: "moderate", TargetKcal: 2100,
		Macros: models.MacroSplit{ProteinPct: 30, FatPct: 30, CarbsPct: 40},
		Days:   7,
	}
	session, err := srv.planner.CreateSessionWithExchange(context.Background(), user.ID, startup, "t", "sys", assistantPlanReply)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	w := srv.do(t, http.MethodPost, "/api/plans", token, gin.H{"name": "From chat", "session_id": session.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create from session: status %d: %s", w.Code, w.Body.String())
	}
	var plan models.MealPlan
	decodeBody(t, w, &plan)
	if len(plan.Content.Days) != 1 || plan.Content.Days[0].Meals[0].Name != "Oatmeal" {
		t.Fatalf("plan content not derived from reply: %+v", plan.Content)
	}

	w = srv.do(t, http.MethodPost, "/api/plans", token, gin.H{"name": "No source"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing content and session: status %d want 400", w.Code)
	}
}

func TestCreateSessionEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "finn@example.com")
	srv.chat.createResult = &worker.CreateResult{
		Session: &models.ChatSession{ID: 7, Title: "7-day plan", PromptCount: 1},
		Reply:   "opening reply",
	}

	w := srv.do(t, http.MethodPost, "/api/ai/sessions", token, gin.H{
		"startup_data": gin.H{
			"patient_age": 34, "patient_weight_kg": 72.5, "patient_height_cm": 178,
			"sex": "female", "activity_level": "moderate", "target_kcal": 2100,
			"macro_split": gin.H{"protein_pct": 30, "fat_pct": 30, "carbs_pct": 40},
			"days": 7,
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		SessionID   int64          `json:"session_id"`
		Message     models.Message `json:"message"`
		PromptCount int            `json:"prompt_count"`
	}
	decodeBody(t, w, &resp)
	if resp.SessionID != 7 || resp.Message.Content != "opening reply" || resp.PromptCount != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if srv.chat.createCalls != 1 {
		t.Fatalf("chat manager calls: %d", srv.chat.createCalls)
	}
}

func TestPostMessageErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "gina@example.com")

	srv.chat.exchangeErr = errs.Validationf("message content is required")
	w := srv.do(t, http.MethodPost, "/api/ai/sessions/1/message", token, gin.H{"message": gin.H{"content": ""}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("validation error: status %d want 400", w.Code)
	}

	srv.chat.exchangeErr = errs.Upstream("completion failed", errors.New("provider down"))
	w = srv.do(t, http.MethodPost, "/api/ai/sessions/1/message", token, gin.H{"message": gin.H{"content": "hi"}})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("upstream error: status %d want 502", w.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	decodeBody(t, w, &resp)
	if resp.Error != "AI service unavailable" {
		t.Fatalf("upstream error body: %q", resp.Error)
	}

	srv.chat.exchangeErr = worker.ErrBusy
	w = srv.do(t, http.MethodPost, "/api/ai/sessions/1/message", token, gin.H{"message": gin.H{"content": "hi"}})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("busy pool: status %d want 429", w.Code)
	}
	decodeBody(t, w, &resp)
	if resp.Error != "server is busy, please retry" {
		t.Fatalf("busy error body: %q", resp.Error)
	}

	srv.chat.exchangeErr = errs.NotFound("session not found")
	w = srv.do(t, http.MethodPost, "/api/ai/sessions/99/message", token, gin.H{"message": gin.H{"content": "hi"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session: status %d want 404", w.Code)
	}

	// untagged errors fall back to 500 and never echo their message
	srv.chat.exchangeErr = errors.New("dial tcp 10.0.0.7:5432: connection refused")
	w = srv.do(t, http.MethodPost, "/api/ai/sessions/1/message", token, gin.H{"message": gin.H{"content": "hi"}})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unclassified error: status %d want 500", w.Code)
	}
	decodeBody(t, w, &resp)
	if resp.Error != "internal error" {
		t.Fatalf("unclassified error leaked detail: %q", resp.Error)
	}
}

func TestPostMessageRejectsNonUserRole(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "hana@example.com")

	w := srv.do(t, http.MethodPost, "/api/ai/sessions/1/message", token, gin.H{
		"message": gin.H{"role": "assistant", "content": "spoofed"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("assistant role: status %d want 400", w.Code)
	}
	if srv.chat.exchangeCalls != 0 {
		t.Fatalf("spoofed message reached the chat manager")
	}
}

func TestPostMessageSuccess(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "iris@example.com")
	srv.chat.exchangeResult = &worker.ExchangeResult{
		SessionID:   3,
		UserMessage: &models.Message{Role: models.RoleUser, Content: "less rice"},
		Message:     &models.Message{Role: models.RoleAssistant, Content: "updated plan"},
		PromptCount: 2,
	}

	w := srv.do(t, http.MethodPost, "/api/ai/sessions/3/message", token, gin.H{"message": gin.H{"content": "less rice"}})
	if w.Code != http.StatusOK {
		t.Fatalf("post message: status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		SessionID   int64          `json:"session_id"`
		UserMessage models.Message `json:"user_message"`
		Message     models.Message `json:"message"`
		PromptCount int            `json:"prompt_count"`
	}
	decodeBody(t, w, &resp)
	if resp.SessionID != 3 || resp.PromptCount != 2 || resp.Message.Content != "updated plan" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDeleteSessionPurgesState(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "jo@example.com")

	user, err := srv.planner.Login(context.Background(), "jo@example.com", "password123")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	startup := &models.StartupData{
		PatientAge: 34, PatientWeightKg: 72.5, PatientHeightCm: 178,
		Sex: "female", ActivityLevel: "moderate", TargetKcal: 2100,
		Macros: models.MacroSplit{ProteinPct: 30, FatPct: 30, CarbsPct: 40},
		Days:   7,
	}
	session, err := srv.planner.CreateSessionWithExchange(context.Background(), user.ID, startup, "t", "sys", "r")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	w := srv.do(t, http.MethodDelete, fmt.Sprintf("/api/ai/sessions/%d", session.ID), token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete session: status %d: %s", w.Code, w.Body.String())
	}
	if len(srv.chat.purged) != 1 || srv.chat.purged[0] != session.ID {
		t.Fatalf("cached state not purged: %v", srv.chat.purged)
	}
}

func TestUploadAttachment(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "kate@example.com")

	user, err := srv.planner.Login(context.Background(), "kate@example.com", "password123")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	startup := &models.StartupData{
		PatientAge: 34, PatientWeightKg: 72.5, PatientHeightCm: 178,
		Sex: "female", ActivityLevel: "moderate", TargetKcal: 2100,
		Macros: models.MacroSplit{ProteinPct: 30, FatPct: 30, CarbsPct: 40},
		Days:   7,
	}
	session, err := srv.planner.CreateSessionWithExchange(context.Background(), user.ID, startup, "t", "sys", "r")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "labs.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("fasting glucose 92 mg/dL\nldl 110 mg/dL\n")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/ai/sessions/%d/attachments", session.ID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("upload: status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		FileID   int64  `json:"file_id"`
		FileName string `json:"file_name"`
		Mime     string `json:"mime"`
	}
	decodeBody(t, w, &resp)
	if resp.FileID <= 0 || resp.FileName != "labs.txt" {
		t.Fatalf("unexpected upload response: %+v", resp)
	}
	if !strings.HasPrefix(resp.Mime, "text/plain") {
		t.Fatalf("detected mime wrong: %q", resp.Mime)
	}

	files, err := srv.planner.SessionAttachments(context.Background(), user.ID, session.ID)
	if err != nil {
		t.Fatalf("list attachments: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("attachment not recorded: %d", len(files))
	}
}

func TestRefreshRotation(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAndLogin(t, "lena@example.com")

	w := srv.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "lena@example.com", "password": "password123"})
	var loginResp struct {
		RefreshToken string `json:"refresh_token"`
	}
	decodeBody(t, w, &loginResp)

	w = srv.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": loginResp.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status %d: %s", w.Code, w.Body.String())
	}
	var refreshResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	decodeBody(t, w, &refreshResp)
	if refreshResp.RefreshToken == loginResp.RefreshToken {
		t.Fatalf("refresh token not rotated")
	}

	// the consumed token is single use
	w = srv.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": loginResp.RefreshToken})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: status %d want 401", w.Code)
	}
}

func TestPasswordResetEndpoints(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAndLogin(t, "mia@example.com")

	w := srv.do(t, http.MethodPost, "/api/auth/password-reset/request", "", gin.H{"email": "mia@example.com"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("reset request: status %d", w.Code)
	}
	if len(srv.mailer.sent) != 1 || srv.mailer.sent[0] != "mia@example.com" {
		t.Fatalf("reset mail not sent: %v", srv.mailer.sent)
	}

	// unknown addresses get the same answer and no mail
	w = srv.do(t, http.MethodPost, "/api/auth/password-reset/request", "", gin.H{"email": "ghost@example.com"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("unknown email reset request: status %d want 202", w.Code)
	}
	if len(srv.mailer.sent) != 1 {
		t.Fatalf("mail sent for unknown address: %v", srv.mailer.sent)
	}

	code, err := srv.planner.CreatePasswordReset(context.Background(), "mia@example.com")
	if err != nil {
		t.Fatalf("create reset code: %v", err)
	}
	w = srv.do(t, http.MethodPost, "/api/auth/password-reset/confirm", "", gin.H{"code": code, "new_password": "brand-new-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("reset confirm: status %d: %s", w.Code, w.Body.String())
	}
	w = srv.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "mia@example.com", "password": "brand-new-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("login with new password: status %d", w.Code)
	}
	w = srv.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "mia@example.com", "password": "password123"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("old password still valid: status %d", w.Code)
	}
}

func TestPasswordResetConfirmRevokesSessions(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "nora@example.com")

	code, err := srv.planner.CreatePasswordReset(context.Background(), "nora@example.com")
	if err != nil {
		t.Fatalf("create reset code: %v", err)
	}
	w := srv.do(t, http.MethodPost, "/api/auth/password-reset/confirm", "", gin.H{"code": code, "new_password": "brand-new-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("reset confirm: status %d", w.Code)
	}

	w = srv.do(t, http.MethodGet, "/api/profile", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("old session survived password reset: status %d", w.Code)
	}
}

func TestDeleteAccount(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "olga@example.com")

	w := srv.do(t, http.MethodDelete, "/api/profile", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete account: status %d: %s", w.Code, w.Body.String())
	}
	if len(srv.chat.resets) != 1 {
		t.Fatalf("chat state not reset on deletion: %v", srv.chat.resets)
	}
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "sb-access-token" && cookie.MaxAge >= 0 && cookie.Value != "" {
			t.Fatalf("access cookie not cleared: %+v", cookie)
		}
	}

	w = srv.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "olga@example.com", "password": "password123"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("deleted account can still log in: status %d", w.Code)
	}
	w = srv.do(t, http.MethodGet, "/api/profile", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("deleted account token still valid: status %d", w.Code)
	}
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t)
	token := srv.registerAndLogin(t, "pia@example.com")

	w := srv.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d: %s", w.Code, w.Body.String())
	}
	cleared := false
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "sb-access-token" && cookie.Value == "" {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("logout did not clear the access cookie")
	}
}
