package models

import "time"

// ChatSession is one AI-assisted plan-drafting conversation. PromptCount
// equals the number of completed user/assistant exchanges; the history
// itself lives in the messages table, ordered by insertion.
type ChatSession struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	Title       string      `json:"title"`
	StartupData StartupData `json:"startup_data"`
	PromptCount int         `json:"prompt_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
