// internal/errors/errors.go
package appErrors

import (
	"fmt"
	"time"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrEnrollmentNotFound is returned when an enrollment id resolves to nothing.
type ErrEnrollmentNotFound struct {
	EnrollmentID string
}

func (e *ErrEnrollmentNotFound) Error() string {
	return fmt.Sprintf("enrollment %s not found", e.EnrollmentID)
}

func NewEnrollmentNotFound(id string) error {
	return &ErrEnrollmentNotFound{EnrollmentID: id}
}

// ErrContactNotOwned is an authorization error: the contact does not belong to
// the acting user (or does not exist at all).
type ErrContactNotOwned struct {
	ContactID int
	UserID    string
}

func (e *ErrContactNotOwned) Error() string {
	return fmt.Sprintf("contact %d does not belong to user %s", e.ContactID, e.UserID)
}

func NewContactNotOwned(contactID int, userID string) error {
	return &ErrContactNotOwned{ContactID: contactID, UserID: userID}
}

// ErrPastAnchor rejects a schedule anchor that is not far enough in the
// future. Nothing is written when this is returned.
type ErrPastAnchor struct {
	Anchor time.Time
	Now    time.Time
}

func (e *ErrPastAnchor) Error() string {
	return fmt.Sprintf("anchor %s must be at least 1 minute after %s",
		e.Anchor.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

func NewPastAnchor(anchor, now time.Time) error {
	return &ErrPastAnchor{Anchor: anchor, Now: now}
}

// ErrInvalidDelay covers malformed delay specs (unknown unit, missing fields).
type ErrInvalidDelay struct {
	Reason string
}

func (e *ErrInvalidDelay) Error() string {
	return fmt.Sprintf("invalid delay spec: %s", e.Reason)
}

func NewInvalidDelay(reason string) error {
	return &ErrInvalidDelay{Reason: reason}
}

// ErrStepImmutable is returned when a caller tries to rewrite a step whose
// scheduled send is no longer pending.
type ErrStepImmutable struct {
	StepIndex int
	Status    string
}

func (e *ErrStepImmutable) Error() string {
	return fmt.Sprintf("step %d cannot be rewritten: send is %s", e.StepIndex, e.Status)
}

func NewStepImmutable(stepIndex int, status string) error {
	return &ErrStepImmutable{StepIndex: stepIndex, Status: status}
}

// ErrNothingEnrolled signals a caller bug: an enroll call that enrolled no one
// and validly skipped no one (usually a missing re-enroll choice).
type ErrNothingEnrolled struct {
	CampaignID int
}

func (e *ErrNothingEnrolled) Error() string {
	return fmt.Sprintf("no contacts enrolled or skipped for campaign %d; missing re-enroll choice?", e.CampaignID)
}

func NewNothingEnrolled(campaignID int) error {
	return &ErrNothingEnrolled{CampaignID: campaignID}
}

// ErrInvalidTransition is returned for illegal enrollment status transitions.
type ErrInvalidTransition struct {
	From string
	To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot transition enrollment from %s to %s", e.From, e.To)
}

func NewInvalidTransition(from, to string) error {
	return &ErrInvalidTransition{From: from, To: to}
}
