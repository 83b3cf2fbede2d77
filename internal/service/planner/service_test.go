package planner

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"nutriplan/internal/config"
	"nutriplan/internal/errs"
	"nutriplan/internal/models"
	"nutriplan/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
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
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(openTestDB(t))
}

func registerTestUser(t *testing.T, svc *Service, email string) *models.User {
	t.Helper()
	user, err := svc.RegisterUser(context.Background(), email, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func testStartup() *models.StartupData {
	return &models.StartupData{
		PatientAge:      34,
		PatientWeightKg: 72.5,
		PatientHeightCm: 178,
		Sex:             "female",
		ActivityLevel:   "moderate",
		TargetKcal:      2100,
		Macros:          models.MacroSplit{ProteinPct: 30, FatPct: 30, CarbsPct: 40},
		Exclusions:      []string{"peanuts"},
		Days:            7,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "Alice@Example.com")
	if user.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.Language != "en" || user.Theme != "system" {
		t.Fatalf("defaults not applied: %+v", user)
	}

	got, err := svc.Login(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("login returned wrong user: %d vs %d", got.ID, user.ID)
	}

	if _, err := svc.Login(ctx, "alice@example.com", "wrong-password"); err == nil {
		t.Fatalf("wrong password accepted")
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password123"); err == nil {
		t.Fatalf("unknown email accepted")
	}
}

func TestRegisterRejections(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "bob@example.com")
	if _, err := svc.RegisterUser(ctx, "bob@example.com", "password123"); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("duplicate email: expected validation error, got %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "short@example.com", "1234567"); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("short password: expected validation error, got %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "not-an-email", "password123"); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("bad email: expected validation error, got %v", err)
	}
}

func TestUpdatePreferences(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "carol@example.com")

	got, err := svc.UpdatePreferences(ctx, user.ID, "pl", "dark")
	if err != nil {
		t.Fatalf("update preferences: %v", err)
	}
	if got.Language != "pl" || got.Theme != "dark" {
		t.Fatalf("preferences not applied: %+v", got)
	}

	// empty values keep the current setting
	got, err = svc.UpdatePreferences(ctx, user.ID, "", "light")
	if err != nil {
		t.Fatalf("partial update: %v", err)
	}
	if got.Language != "pl" || got.Theme != "light" {
		t.Fatalf("partial update wrong: %+v", got)
	}

	if _, err := svc.UpdatePreferences(ctx, user.ID, "xx", ""); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("bad language: expected validation error, got %v", err)
	}
	if _, err := svc.UpdatePreferences(ctx, user.ID, "", "neon"); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("bad theme: expected validation error, got %v", err)
	}
}

func TestAcceptTerms(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "dora@example.com")

	got, err := svc.AcceptTerms(ctx, user.ID, "2026-08")
	if err != nil {
		t.Fatalf("accept terms: %v", err)
	}
	if got.TermsVersion == nil || *got.TermsVersion != "2026-08" {
		t.Fatalf("terms version not stored: %+v", got.TermsVersion)
	}
	if got.TermsAcceptedAt == nil {
		t.Fatalf("acceptance timestamp missing")
	}

	if _, err := svc.AcceptTerms(ctx, user.ID, "  "); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("blank version: expected validation error, got %v", err)
	}
	if _, err := svc.AcceptTerms(ctx, 9999, "2026-08"); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("missing user: expected not found, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "erin@example.com")

	code, err := svc.CreatePasswordReset(ctx, "erin@example.com")
	if err != nil {
		t.Fatalf("create reset: %v", err)
	}
	if code == "" {
		t.Fatalf("empty reset code")
	}

	gotID, err := svc.ConfirmPasswordReset(ctx, code, "new-password-1")
	if err != nil {
		t.Fatalf("confirm reset: %v", err)
	}
	if gotID != user.ID {
		t.Fatalf("reset wrong user: %d", gotID)
	}
	if _, err := svc.Login(ctx, "erin@example.com", "new-password-1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := svc.Login(ctx, "erin@example.com", "password123"); err == nil {
		t.Fatalf("old password still accepted")
	}

	// codes are single use
	if _, err := svc.ConfirmPasswordReset(ctx, code, "another-password"); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("consumed code reused: %v", err)
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.CreatePasswordReset(context.Background(), "ghost@example.com"); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "finn@example.com")

	if err := svc.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := svc.GetUser(ctx, user.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("deleted user still readable: %v", err)
	}
	if err := svc.DeleteUser(ctx, user.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("double delete: expected not found, got %v", err)
	}
}
