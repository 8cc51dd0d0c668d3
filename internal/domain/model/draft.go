package model

import "time"

// DraftPrompt is an anonymous prompt captured before signup. A draft is
// claimed exactly once by the user who presents its token; expired drafts
// are swept periodically.
type DraftPrompt struct {
	ID        string     `json:"id"                   db:"id"`
	Token     string     `json:"token"                db:"token"`
	Prompt    string     `json:"prompt"               db:"prompt"`
	UserID    *string    `json:"user_id,omitempty"    db:"user_id"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	ExpiresAt time.Time  `json:"expires_at"           db:"expires_at"`
	CreatedAt time.Time  `json:"created_at"           db:"created_at"`
}
