package models

import "time"

// Attachment is a user-supplied document (diet guidelines, lab results)
// tied to a chat session. Rows and files expire after a TTL.
type Attachment struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	SessionID  int64     `json:"session_id"`
	FileName   string    `json:"file_name"`
	StoredPath string    `json:"stored_path"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
