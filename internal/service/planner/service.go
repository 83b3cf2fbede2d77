package planner

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"nutriplan/internal/errs"
	"nutriplan/internal/models"
	"nutriplan/internal/storage"
)

const resetCodeTTL = 15 * time.Minute

// Service implements the diet-planning domain: accounts, chat sessions,
// meal plans, attachments. All storage goes through the shared DB wrapper.
type Service struct {
	db *storage.DB
}

func NewService(db *storage.DB) *Service {
	return &Service{db: db}
}

// RegisterUser creates an account. The email must be unused and the
// password at least 8 characters.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errs.Validationf("a valid email is required")
	}
	if len(password) < 8 {
		return nil, errs.Validationf("password must be at least 8 characters")
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email,
	).Scan(&exists)
	if err != nil {
		return nil, errs.Database("check email", err)
	}
	if exists {
		return nil, errs.Validationf("email already registered")
	}

	now := time.Now().UTC()
	hashed := hashPassword(password)
	id, err := s.db.InsertReturningID(ctx,
		`INSERT INTO users (email, password_hash, language, theme, created_at) VALUES (?, ?, 'en', 'system', ?)`,
		email, hashed, now,
	)
	if err != nil {
		return nil, errs.Database("create user", err)
	}
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: hashed,
		Language:     "en",
		Theme:        "system",
		CreatedAt:    now,
	}, nil
}

// Login verifies the credentials and returns the user. The error is the
// same for unknown email and wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return nil, errors.New("invalid credentials")
		}
		return nil, err
	}
	hashed := hashPassword(password)
	if subtle.ConstantTimeCompare([]byte(hashed), []byte(user.PasswordHash)) != 1 {
		return nil, errors.New("invalid credentials")
	}
	return user, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, language, theme, terms_version, terms_accepted_at, created_at
		 FROM users WHERE id = ?`, userID,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Language, &user.Theme,
		&user.TermsVersion, &user.TermsAcceptedAt, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("user not found")
		}
		return nil, errs.Database("get user", err)
	}
	return user, nil
}

func (s *Service) getUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, language, theme, terms_version, terms_accepted_at, created_at
		 FROM users WHERE email = ?`, email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Language, &user.Theme,
		&user.TermsVersion, &user.TermsAcceptedAt, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("user not found")
		}
		return nil, errs.Database("get user by email", err)
	}
	return user, nil
}

// UpdatePreferences sets language and/or theme. Empty values leave the
// current setting unchanged.
func (s *Service) UpdatePreferences(ctx context.Context, userID int64, language, theme string) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if language != "" {
		if !models.AllowedLanguages[language] {
			return nil, errs.Validationf("unsupported language: %s", language)
		}
		user.Language = language
	}
	if theme != "" {
		if !models.AllowedThemes[theme] {
			return nil, errs.Validationf("unsupported theme: %s", theme)
		}
		user.Theme = theme
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET language = ?, theme = ? WHERE id = ?`,
		user.Language, user.Theme, userID,
	)
	if err != nil {
		return nil, errs.Database("update preferences", err)
	}
	return user, nil
}

// AcceptTerms records acceptance of a terms-of-service version.
func (s *Service) AcceptTerms(ctx context.Context, userID int64, version string) (*models.User, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, errs.Validationf("terms version is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET terms_version = ?, terms_accepted_at = ? WHERE id = ?`,
		version, now, userID,
	)
	if err != nil {
		return nil, errs.Database("accept terms", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errs.Database("accept terms rows affected", err)
	}
	if affected == 0 {
		return nil, errs.NotFound("user not found")
	}
	return s.GetUser(ctx, userID)
}

// DeleteUser removes the account. Meal plans, tokens and reset codes
// cascade away; chat sessions are kept without an owner.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return errs.Database("delete user", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Database("delete user rows affected", err)
	}
	if affected == 0 {
		return errs.NotFound("user not found")
	}
	return nil
}

// CreatePasswordReset mints a single-use reset code for the email. The
// code is returned for the caller to mail; it is never exposed in the API
// response.
func (s *Service) CreatePasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	code := hex.EncodeToString(buf)
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO password_resets (code, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		code, user.ID, now, now.Add(resetCodeTTL),
	)
	if err != nil {
		return "", errs.Database("store reset code", err)
	}
	return code, nil
}

// ConfirmPasswordReset consumes the code and sets the new password,
// returning the affected user id.
func (s *Service) ConfirmPasswordReset(ctx context.Context, code, newPassword string) (int64, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, errs.Validationf("reset code is required")
	}
	if len(newPassword) < 8 {
		return 0, errs.Validationf("password must be at least 8 characters")
	}
	var userID int64
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM password_resets WHERE code = ?`, code,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errs.Validationf("invalid reset code")
		}
		return 0, errs.Database("lookup reset code", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM password_resets WHERE code = ?`, code)
		return 0, errs.Validationf("reset code expired")
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hashPassword(newPassword), userID); err != nil {
		return 0, errs.Database("update password", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM password_resets WHERE user_id = ?`, userID); err != nil {
		return 0, errs.Database("consume reset code", err)
	}
	return userID, nil
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
