package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"nutriplan/internal/errs"
	"nutriplan/internal/models"
)

// CreateSessionWithExchange inserts a new chat session together with its
// opening system prompt and the first assistant reply in one transaction.
// The session starts at prompt_count 1: the startup exchange counts.
func (s *Service) CreateSessionWithExchange(ctx context.Context, userID int64, startup *models.StartupData, title, systemPrompt, assistantReply string) (*models.ChatSession, error) {
	if userID <= 0 {
		return nil, errs.Validationf("user id is required")
	}
	if err := startup.Validate(); err != nil {
		return nil, err
	}
	startupJSON, err := json.Marshal(startup)
	if err != nil {
		return nil, errs.Validationf("encode startup data: %v", err)
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Database("begin tx", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	sessionID, err := tx.InsertReturningID(ctx,
		`INSERT INTO chat_sessions (user_id, title, startup_data, prompt_count, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		userID, title, string(startupJSON), now, now,
	)
	if err != nil {
		return nil, errs.Database("create session", err)
	}
	_, err = tx.InsertReturningID(ctx,
		`INSERT INTO messages (user_id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, sessionID, models.RoleSystem, systemPrompt, now,
	)
	if err != nil {
		return nil, errs.Database("insert system message", err)
	}
	_, err = tx.InsertReturningID(ctx,
		`INSERT INTO messages (user_id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, sessionID, models.RoleAssistant, assistantReply, now,
	)
	if err != nil {
		return nil, errs.Database("insert assistant message", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, errs.Database("commit create session", err)
	}

	return &models.ChatSession{
		ID:          sessionID,
		UserID:      userID,
		Title:       title,
		StartupData: *startup,
		PromptCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetSession loads one session owned by the user.
func (s *Service) GetSession(ctx context.Context, userID, sessionID int64) (*models.ChatSession, error) {
	var (
		session     models.ChatSession
		startupJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, startup_data, prompt_count, created_at, updated_at
		 FROM chat_sessions WHERE id = ? AND user_id = ?`,
		sessionID, userID,
	).Scan(&session.ID, &session.UserID, &session.Title, &startupJSON,
		&session.PromptCount, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("session not found")
		}
		return nil, errs.Database("get session", err)
	}
	if err := json.Unmarshal([]byte(startupJSON), &session.StartupData); err != nil {
		return nil, errs.Database("decode startup data", err)
	}
	return &session, nil
}

// GetSessionWithMessages returns one session and its history in insertion
// order.
func (s *Service) GetSessionWithMessages(ctx context.Context, userID, sessionID int64) (*models.ChatSession, []*models.Message, error) {
	session, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return session, nil, errs.Database("list messages", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return session, nil, errs.Database("scan message", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return session, nil, errs.Database("iterate messages", err)
	}
	return session, messages, nil
}

// ListSessions returns the user's sessions ordered by last activity.
func (s *Service) ListSessions(ctx context.Context, userID int64) ([]models.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, startup_data, prompt_count, created_at, updated_at
		 FROM chat_sessions WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, errs.Database("list sessions", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		var (
			session     models.ChatSession
			startupJSON string
		)
		if err := rows.Scan(&session.ID, &session.UserID, &session.Title, &startupJSON,
			&session.PromptCount, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, errs.Database("scan session", err)
		}
		if err := json.Unmarshal([]byte(startupJSON), &session.StartupData); err != nil {
			return nil, errs.Database("decode startup data", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("iterate sessions", err)
	}
	return sessions, nil
}

// AppendExchange persists one completed user/assistant exchange
// atomically: both messages land and prompt_count moves by exactly one, or
// nothing changes. Returns the stored messages and the new prompt count.
func (s *Service) AppendExchange(ctx context.Context, userID, sessionID int64, userContent, assistantContent string) (*models.Message, *models.Message, int, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, 0, errs.Database("begin tx", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET prompt_count = prompt_count + 1, updated_at = ? WHERE id = ? AND user_id = ?`,
		now, sessionID, userID,
	)
	if err != nil {
		return nil, nil, 0, errs.Database("bump prompt count", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, nil, 0, errs.Database("session rows affected", err)
	}
	if affected == 0 {
		err = errs.NotFound("session not found")
		return nil, nil, 0, err
	}

	userMsgID, err := tx.InsertReturningID(ctx,
		`INSERT INTO messages (user_id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, sessionID, models.RoleUser, userContent, now,
	)
	if err != nil {
		return nil, nil, 0, errs.Database("insert user message", err)
	}
	aiMsgID, err := tx.InsertReturningID(ctx,
		`INSERT INTO messages (user_id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, sessionID, models.RoleAssistant, assistantContent, now,
	)
	if err != nil {
		return nil, nil, 0, errs.Database("insert assistant message", err)
	}

	var promptCount int
	err = tx.QueryRowContext(ctx,
		`SELECT prompt_count FROM chat_sessions WHERE id = ?`, sessionID,
	).Scan(&promptCount)
	if err != nil {
		return nil, nil, 0, errs.Database("read prompt count", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, 0, errs.Database("commit exchange", err)
	}

	userMsg := &models.Message{ID: userMsgID, UserID: userID, SessionID: sessionID, Role: models.RoleUser, Content: userContent, CreatedAt: now}
	aiMsg := &models.Message{ID: aiMsgID, UserID: userID, SessionID: sessionID, Role: models.RoleAssistant, Content: assistantContent, CreatedAt: now}
	return userMsg, aiMsg, promptCount, nil
}

// DeleteSession removes a session and its messages for the user.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID int64) error {
	if sessionID <= 0 {
		return errs.Validationf("invalid session id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Database("begin tx", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ? AND user_id = ?`, sessionID, userID)
	if err != nil {
		return errs.Database("delete session", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Database("session rows affected", err)
	}
	if affected == 0 {
		err = errs.NotFound("session not found")
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return errs.Database("delete messages", err)
	}
	if err = tx.Commit(); err != nil {
		return errs.Database("commit delete session", err)
	}
	return nil
}
