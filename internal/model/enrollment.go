// internal/model/enrollment.go
package model

import "time"

// Enrollment statuses. active, queued and paused are "effective": the contact
// is still in the campaign. withdrawn and completed are terminal.
const (
	EnrollmentActive    = "active"
	EnrollmentQueued    = "queued"
	EnrollmentPaused    = "paused"
	EnrollmentWithdrawn = "withdrawn"
	EnrollmentCompleted = "completed"
)

// Enrollment is one contact's attempt at running a campaign. For a given
// (campaign, contact, user) tuple at most one enrollment may be active at a
// time; re-enrollment always creates a new row, never flips an old one back.
type Enrollment struct {
	ID           string      `db:"id" json:"id"`
	CampaignID   int         `db:"campaign_id" json:"campaign_id"`
	ContactID    int         `db:"contact_id" json:"contact_id"`
	UserID       string      `db:"user_id" json:"user_id"`
	Status       string      `db:"status" json:"status"`
	CurrentStep  int         `db:"current_step" json:"current_step"`
	NextSend     *time.Time  `db:"next_send" json:"next_send,omitempty"`
	StepDelays   []DelaySpec `db:"step_delays" json:"step_delays,omitempty"`
	InitialDelay *DelaySpec  `db:"initial_delay" json:"initial_delay,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	WithdrawnAt  *time.Time  `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
}

// Terminal reports whether the enrollment can no longer advance.
func (e *Enrollment) Terminal() bool {
	return e.Status == EnrollmentWithdrawn || e.Status == EnrollmentCompleted
}
