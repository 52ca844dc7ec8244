package domain

import "time"

// CallRecord is the journal entry written when a call attempt finishes.
// The backend owns the authoritative call session; this is the client-side
// consultation history shown by the diagnostics API.
type CallRecord struct {
	RecordID      string        `json:"record_id"`
	CallID        CallID        `json:"call_id"`
	AppointmentID AppointmentID `json:"appointment_id"`
	UserID        UserID        `json:"user_id"`
	Role          Role          `json:"role"`
	Initiator     bool          `json:"initiator"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
	Outcome       CallOutcome   `json:"outcome"`
	FailureReason string        `json:"failure_reason,omitempty"`
}

// Duration is the wall time of the attempt, zero when the clock went
// backwards between start and end.
func (r *CallRecord) Duration() time.Duration {
	d := r.EndedAt.Sub(r.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
