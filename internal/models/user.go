package models

import "time"

// User is an account holder. Meal plans cascade away with the account;
// chat sessions are kept for analytics after deletion.
type User struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	Language        string     `json:"language"`
	Theme           string     `json:"theme"`
	TermsVersion    *string    `json:"terms_version,omitempty"`
	TermsAcceptedAt *time.Time `json:"terms_accepted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Languages the UI ships translations for.
var AllowedLanguages = map[string]bool{
	"en": true,
	"pl": true,
	"de": true,
	"es": true,
}

var AllowedThemes = map[string]bool{
	"light":  true,
	"dark":   true,
	"system": true,
}
