// internal/model/campaign.go
package model

import "time"

// Step is one email unit within a campaign. Content is either a template
// reference or an inline subject/body; Delay governs when the step fires
// relative to the prior step (or absolutely).
type Step struct {
	StepType   string    `json:"step_type"`
	TemplateID string    `json:"template_id,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body,omitempty"`
	Delay      DelaySpec `json:"delay"`
}

type Campaign struct {
	ID        int        `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Name      string     `db:"name" json:"name"`
	Status    string     `db:"status" json:"status"`
	Steps     []Step     `db:"steps" json:"steps"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
