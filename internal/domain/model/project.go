package model

import "time"

// Project holds the user-specified generation parameters for a video.
// The row is immutable once a job starts, except TimelinePath which the
// pipeline writes back as an output.
type Project struct {
	ID              string  `json:"id"                db:"id"`
	UserID          string  `json:"user_id"           db:"user_id"`
	NichePreset     string  `json:"niche_preset"      db:"niche_preset"`
	DurationMinutes int     `json:"duration_minutes"  db:"duration_minutes"`
	TemplateID      string  `json:"template_id"       db:"template_id"`
	VoiceID         string  `json:"voice_id"          db:"voice_id"`
	VisualPreset    string  `json:"visual_preset"     db:"visual_preset"`
	Density         string  `json:"density"           db:"density"`
	Resolution      string  `json:"resolution"        db:"resolution"`
	Prompt          string  `json:"prompt"            db:"prompt"`
	TimelinePath    *string `json:"timeline_path,omitempty" db:"timeline_path"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
