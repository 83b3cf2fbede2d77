package planner

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"nutriplan/internal/errs"
	"nutriplan/internal/models"
)

const (
	DefaultAttachmentTTL             = 24 * time.Hour
	DefaultAttachmentCleanupInterval = time.Hour
)

// RecordAttachment stores metadata for an uploaded file after verifying
// the session belongs to the user.
func (s *Service) RecordAttachment(ctx context.Context, att *models.Attachment, ttl time.Duration) (*models.Attachment, error) {
	if att == nil || att.UserID <= 0 || att.SessionID <= 0 {
		return nil, errs.Validationf("attachment owner and session are required")
	}
	if _, err := s.GetSession(ctx, att.UserID, att.SessionID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultAttachmentTTL
	}
	now := time.Now().UTC()
	att.Status = "active"
	att.CreatedAt = now
	att.ExpiresAt = now.Add(ttl)
	id, err := s.db.InsertReturningID(ctx,
		`INSERT INTO attachments (user_id, session_id, file_name, stored_path, mime_type, size, status, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		att.UserID, att.SessionID, att.FileName, att.StoredPath, att.MimeType, att.Size, att.Status, att.CreatedAt, att.ExpiresAt,
	)
	if err != nil {
		return nil, errs.Database("record attachment", err)
	}
	att.ID = id
	return att, nil
}

// SessionAttachments lists the live attachments of an owned session.
func (s *Service) SessionAttachments(ctx context.Context, userID, sessionID int64) ([]*models.Attachment, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, file_name, stored_path, mime_type, size, status, created_at, expires_at
		 FROM attachments WHERE session_id = ? AND status = 'active' AND expires_at > ?`,
		sessionID, time.Now().UTC(),
	)
	if err != nil {
		return nil, errs.Database("list attachments", err)
	}
	defer rows.Close()

	var files []*models.Attachment
	for rows.Next() {
		a := new(models.Attachment)
		if err := rows.Scan(&a.ID, &a.UserID, &a.SessionID, &a.FileName, &a.StoredPath,
			&a.MimeType, &a.Size, &a.Status, &a.CreatedAt, &a.ExpiresAt); err != nil {
			return nil, errs.Database("scan attachment", err)
		}
		files = append(files, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("iterate attachments", err)
	}
	return files, nil
}

// StorageUsage sums the live attachment bytes a user currently holds.
func (s *Service) StorageUsage(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM attachments WHERE user_id = ? AND status = 'active' AND expires_at > ?`,
		userID, time.Now().UTC(),
	).Scan(&total)
	if err != nil {
		return 0, errs.Database("attachment usage", err)
	}
	return total, nil
}

// StartAttachmentCleaner launches the background loop that removes expired
// attachment files and rows.
func (s *Service) StartAttachmentCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAttachmentCleanupInterval
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.cleanupExpiredAttachments(ctx); err != nil {
				log.Printf("cleanup attachments error: %v", err)
			}
		}
	}
}

func (s *Service) cleanupExpiredAttachments(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stored_path FROM attachments
		WHERE status = 'active' AND expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return err
	}
	defer rows.Close()

	type fileRow struct {
		id   int64
		path string
	}
	var files []fileRow
	for rows.Next() {
		var fr fileRow
		if err := rows.Scan(&fr.id, &fr.path); err != nil {
			return err
		}
		files = append(files, fr)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			log.Printf("remove attachment %s failed: %v", f.path, err)
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, f.id); err != nil {
			log.Printf("delete attachment record %d failed: %v", f.id, err)
		}

		// prune empty directories
		_ = os.Remove(filepath.Dir(f.path))
	}
	return nil
}
