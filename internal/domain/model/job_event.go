package model

import (
	"encoding/json"
	"time"
)

// JobEvent is one append-only row in the job transition log. The runner
// writes an event per state transition so polling clients and operators can
// reconstruct what happened to a job.
type JobEvent struct {
	ID        string          `json:"id"                 db:"id"`
	JobID     string          `json:"job_id"             db:"job_id"`
	Stage     string          `json:"stage"              db:"stage"`
	Message   string          `json:"message"            db:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time       `json:"created_at"         db:"created_at"`
}
