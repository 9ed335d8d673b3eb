// internal/model/scheduled_send.go
package model

import "time"

const (
	SendPending = "pending"
	SendSent    = "sent"
	SendFailed  = "failed"
)

// ScheduledSend is one concrete, timestamped send record for (enrollment,
// step). ScheduledFor is always a UTC instant. Rows are rewritten (deleted and
// recreated) while pending; once sent they are immutable.
type ScheduledSend struct {
	ID                   string     `db:"id" json:"id"`
	CampaignEnrollmentID string     `db:"campaign_enrollment_id" json:"campaign_enrollment_id"`
	StepIndex            int        `db:"step_index" json:"step_index"`
	ScheduledFor         time.Time  `db:"scheduled_for" json:"scheduled_for"`
	Status               string     `db:"status" json:"status"`
	SentAt               *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	LastError            string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}
