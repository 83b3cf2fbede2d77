package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"nutriplan/internal/errs"
	"nutriplan/internal/redis"
	"nutriplan/internal/storage"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names match what the front end already expects from the hosted
// auth provider it was built against.
const (
	accessCookieName  = "sb-access-token"
	refreshCookieName = "sb-refresh-token"
)

const sessionCacheTTL = 5 * time.Minute

// Service issues, validates, refreshes, and revokes user sessions. The
// access token is a short-lived JWT; the refresh token is an opaque value
// persisted in user_tokens. Validation always re-checks the server side so
// a signed-but-revoked token is not treated as authenticated.
type Service struct {
	db             *storage.DB
	cache          *redis.Client
	jwtSecret      []byte
	accessTTL      time.Duration
	refreshTTL     time.Duration
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service. cache may be nil; validation then
// hits the database directly.
func NewService(db *storage.DB, cache *redis.Client, jwtSecret []byte, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Service{
		db:             db,
		cache:          cache,
		jwtSecret:      jwtSecret,
		accessTTL:      accessTTL,
		refreshTTL:     refreshTTL,
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// TokenPair is one minted access/refresh pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// IssueTokens mints a new token pair for the user and persists the refresh
// token.
func (s *Service) IssueTokens(ctx context.Context, userID int64) (*TokenPair, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	now := time.Now().UTC()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(accessExp),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	for i := 0; i < 5; i++ {
		refresh, err := generateToken()
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			refresh, userID, now, refreshExp,
		)
		if err == nil {
			s.invalidateSessionCache(ctx, userID)
			return &TokenPair{
				AccessToken:      access,
				RefreshToken:     refresh,
				AccessExpiresAt:  accessExp,
				RefreshExpiresAt: refreshExp,
			}, nil
		}
	}
	return nil, errors.New("could not issue tokens")
}

// ValidateAccess verifies the JWT and re-checks that the user still has a
// live session server-side, returning the user id and token expiry.
// Infrastructure failures come back as errs.KindDatabase so the guard can
// distinguish them from a plainly invalid token.
func (s *Service) ValidateAccess(ctx context.Context, accessToken string) (int64, time.Time, error) {
	if accessToken == "" {
		return 0, time.Time{}, errors.New("token required")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, time.Time{}, errors.New("invalid token")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, time.Time{}, errors.New("invalid token subject")
	}
	live, err := s.hasLiveSession(ctx, userID)
	if err != nil {
		return 0, time.Time{}, err
	}
	if !live {
		return 0, time.Time{}, errors.New("session revoked")
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return userID, exp, nil
}

// Refresh rotates the token pair: the presented refresh token is revoked
// and a fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (int64, *TokenPair, error) {
	if refreshToken == "" {
		return 0, nil, errors.New("refresh token required")
	}
	var userID int64
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, refreshToken,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, errors.New("invalid refresh token")
		}
		return 0, nil, errs.Database("lookup refresh token", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, refreshToken)
		return 0, nil, errors.New("refresh token expired")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, refreshToken); err != nil {
		return 0, nil, errs.Database("rotate refresh token", err)
	}
	pair, err := s.IssueTokens(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	return userID, pair, nil
}

// RevokeRefresh deletes a single refresh token.
func (s *Service) RevokeRefresh(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, refreshToken); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserTokens removes every session belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	s.invalidateSessionCache(ctx, userID)
	return nil
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

func (s *Service) hasLiveSession(ctx context.Context, userID int64) (bool, error) {
	key := sessionCacheKey(userID)
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, key); err == nil {
			return v == "1", nil
		}
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_tokens WHERE user_id = ? AND expires_at > ?)`,
		userID, time.Now().UTC(),
	).Scan(&exists)
	if err != nil {
		return false, errs.Database("check live session", err)
	}
	if s.cache != nil && exists {
		_ = s.cache.Set(ctx, key, "1", sessionCacheTTL)
	}
	return exists, nil
}

func (s *Service) invalidateSessionCache(ctx context.Context, userID int64) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, sessionCacheKey(userID))
	}
}

func sessionCacheKey(userID int64) string {
	return "auth:session:" + strconv.FormatInt(userID, 10)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AccessCookieName returns the cookie carrying the access token.
func (s *Service) AccessCookieName() string { return accessCookieName }

// RefreshCookieName returns the cookie carrying the refresh token.
func (s *Service) RefreshCookieName() string { return refreshCookieName }

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string { return s.csrfCookieName }

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string { return s.csrfHeaderName }

// AccessTTL reports the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }
