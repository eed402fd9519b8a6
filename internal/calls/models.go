package calls

import "time"

// Record is one persisted outbound call attempt.
//
// Lifecycle invariants:
// - Status only moves forward: queued -> in_progress -> success|failed|skipped.
// - DurationSeconds and ProviderCallID are set only on success.
// - ErrorDetail is set only on failed or skipped.
// - A record is never mutated after reaching a terminal status.
type Record struct {
	ID      string `json:"id" db:"id"`
	Number  string `json:"number" db:"number"`
	Message string `json:"message" db:"message"`

	Status Status `json:"status" db:"status"`

	DurationSeconds *int    `json:"duration,omitempty" db:"duration_seconds"`
	ErrorDetail     *string `json:"error,omitempty" db:"error_detail"`

	// ProviderCallID is the voice provider's identifier for the attempt
	// (the Twilio Call SID), kept for traceability in the provider console.
	ProviderCallID *string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Terminal reports whether no further transition may occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// UpdateFields carries the optional columns touched by a status update.
// Nil fields are left untouched.
type UpdateFields struct {
	DurationSeconds *int
	ErrorDetail     *string
	ProviderCallID  *string
}
