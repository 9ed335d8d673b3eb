// internal/service/ledger_service.go
package service

import (
	"fmt"
	"time"

	"github.com/mcardwell78/RBAconnector-sub000/internal/delay"
	appErrors "github.com/mcardwell78/RBAconnector-sub000/internal/errors"
	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
	"github.com/mcardwell78/RBAconnector-sub000/internal/repository"
)

// LedgerService owns the scheduled-send records derived from an enrollment:
// bulk materialization, partial rewrite of unsent steps, and cleanup.
type LedgerService struct {
	CampaignRepo   repository.CampaignRepositoryInterface
	EnrollmentRepo repository.EnrollmentRepositoryInterface
	SendRepo       repository.ScheduledSendRepositoryInterface

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

func (s *LedgerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Materialize resolves the enrollment's full schedule and writes one pending
// row per remaining step, then points the enrollment's next_send at the
// earliest of them.
//
// Any pending rows already present are wiped first, so re-running after a
// crash between enroll and materialize (or on an active enrollment found with
// an empty ledger) repairs the state instead of duplicating it. Resolution
// errors happen before the wipe: a rejected anchor writes nothing.
func (s *LedgerService) Materialize(enrollmentID string, anchor delay.Anchor, overrides []model.DelaySpec) ([]*model.ScheduledSend, error) {
	e, err := s.EnrollmentRepo.GetByID(enrollmentID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, appErrors.NewEnrollmentNotFound(enrollmentID)
	}
	if e.Status != model.EnrollmentActive {
		return nil, fmt.Errorf("enrollment %s is %s; only active enrollments get a ledger", e.ID, e.Status)
	}

	campaign, err := s.CampaignRepo.GetByID(e.CampaignID)
	if err != nil {
		return nil, err
	}

	if overrides == nil {
		overrides = e.StepDelays
	}

	times, err := delay.Resolve(anchor, campaign.Steps, overrides, s.now())
	if err != nil {
		return nil, err
	}

	if _, err := s.SendRepo.DeletePending(enrollmentID); err != nil {
		return nil, err
	}

	created := []*model.ScheduledSend{}
	for i := e.CurrentStep; i < len(times); i++ {
		row := &model.ScheduledSend{
			CampaignEnrollmentID: e.ID,
			StepIndex:            i,
			ScheduledFor:         times[i],
		}
		if err := s.SendRepo.Create(row); err != nil {
			// Partial writes stand; a retry re-materializes from scratch.
			return created, err
		}
		created = append(created, row)
	}

	e.StepDelays = overrides
	e.NextSend = earliest(created)
	if err := s.EnrollmentRepo.Update(e); err != nil {
		return created, err
	}
	return created, nil
}

// ScheduleRequest is the scheduling entry point's payload: one anchor shared
// by every listed enrollment, with optional per-enrollment delay overrides.
type ScheduleRequest struct {
	EnrollmentIDs   []string                     `json:"enrollment_ids" validate:"required,min=1"`
	CustomDelays    map[string][]model.DelaySpec `json:"custom_delays_by_enrollment,omitempty"`
	InitialDate     string                       `json:"initial_date" validate:"required"`
	InitialTime     string                       `json:"initial_time" validate:"required"`
	TZOffsetMinutes int                          `json:"timezone_offset_minutes"`
}

// ScheduleSteps materializes the ledger for each listed enrollment in order,
// stopping at the first failure.
func (s *LedgerService) ScheduleSteps(userID string, req ScheduleRequest) error {
	anchor := delay.Anchor{Date: req.InitialDate, Time: req.InitialTime, TZOffsetMinutes: req.TZOffsetMinutes}
	for _, id := range req.EnrollmentIDs {
		e, err := s.EnrollmentRepo.GetByID(id)
		if err != nil {
			return err
		}
		if e == nil {
			return appErrors.NewEnrollmentNotFound(id)
		}
		if e.UserID != userID {
			return appErrors.NewContactNotOwned(e.ContactID, userID)
		}
		if _, err := s.Materialize(id, anchor, req.CustomDelays[id]); err != nil {
			return err
		}
	}
	return nil
}

// RewriteStep replaces one pending step's delay and re-chains every later
// unsent step off the new value, because relative delays cascade. Sent rows
// are immutable: they are neither rewritten nor recomputed, and rewriting a
// step whose send already went out is an error.
func (s *LedgerService) RewriteStep(enrollmentID string, stepIndex int, newSpec model.DelaySpec) error {
	e, err := s.EnrollmentRepo.GetByID(enrollmentID)
	if err != nil {
		return err
	}
	if e == nil {
		return appErrors.NewEnrollmentNotFound(enrollmentID)
	}

	campaign, err := s.CampaignRepo.GetByID(e.CampaignID)
	if err != nil {
		return err
	}
	if stepIndex < 0 || stepIndex >= len(campaign.Steps) {
		return appErrors.NewInvalidDelay(fmt.Sprintf("step %d out of range", stepIndex))
	}

	sends, err := s.SendRepo.ListByEnrollment(enrollmentID)
	if err != nil {
		return err
	}
	byIndex := map[int]*model.ScheduledSend{}
	for _, snd := range sends {
		byIndex[snd.StepIndex] = snd
	}

	target := byIndex[stepIndex]
	if target == nil {
		return fmt.Errorf("no scheduled send for enrollment %s step %d", enrollmentID, stepIndex)
	}
	if target.Status != model.SendPending {
		return appErrors.NewStepImmutable(stepIndex, target.Status)
	}

	var prev time.Time
	if newSpec.Relative != nil {
		if stepIndex == 0 {
			return appErrors.NewInvalidDelay("step 0 has no prior step; pin it to an absolute time")
		}
		prevRow := byIndex[stepIndex-1]
		if prevRow == nil {
			// A resumed enrollment has no rows below CurrentStep, so its
			// first scheduled step has nothing to chain from.
			return appErrors.NewInvalidDelay(fmt.Sprintf(
				"step %d has no earlier scheduled send to chain from; pin it to an absolute time", stepIndex))
		}
		prev = prevRow.ScheduledFor
	}
	newTime, err := delay.Chain(prev, newSpec)
	if err != nil {
		return err
	}

	// Remember the override so later re-materializations keep the edit.
	for len(e.StepDelays) < len(campaign.Steps) {
		e.StepDelays = append(e.StepDelays, model.DelaySpec{})
	}
	e.StepDelays[stepIndex] = newSpec

	if _, err := s.SendRepo.DeletePendingFrom(enrollmentID, stepIndex); err != nil {
		return err
	}
	if err := s.SendRepo.Create(&model.ScheduledSend{
		CampaignEnrollmentID: e.ID,
		StepIndex:            stepIndex,
		ScheduledFor:         newTime,
	}); err != nil {
		return err
	}

	prevTime := newTime
	for j := stepIndex + 1; j < len(campaign.Steps); j++ {
		old := byIndex[j]
		if old == nil {
			continue
		}
		if old.Status != model.SendPending {
			prevTime = old.ScheduledFor
			continue
		}
		spec := campaign.Steps[j].Delay
		if !e.StepDelays[j].IsZero() {
			spec = e.StepDelays[j]
		}
		t, err := delay.Chain(prevTime, spec)
		if err != nil {
			return err
		}
		if err := s.SendRepo.Create(&model.ScheduledSend{
			CampaignEnrollmentID: e.ID,
			StepIndex:            j,
			ScheduledFor:         t,
		}); err != nil {
			return err
		}
		prevTime = t
	}

	next, err := s.SendRepo.NextPending(enrollmentID)
	if err != nil {
		return err
	}
	e.NextSend = nil
	if next != nil {
		e.NextSend = &next.ScheduledFor
	}
	return s.EnrollmentRepo.Update(e)
}

// NextPending reads the earliest pending send straight from the store rather
// than trusting the enrollment's possibly-stale next_send field.
func (s *LedgerService) NextPending(enrollmentID string) (*model.ScheduledSend, error) {
	return s.SendRepo.NextPending(enrollmentID)
}

// DeleteUnsent removes every pending record for the enrollment and reports
// how many were removed.
func (s *LedgerService) DeleteUnsent(enrollmentID string) (int, error) {
	return s.SendRepo.DeletePending(enrollmentID)
}

func earliest(rows []*model.ScheduledSend) *time.Time {
	var min *time.Time
	for _, r := range rows {
		t := r.ScheduledFor
		if min == nil || t.Before(*min) {
			min = &t
		}
	}
	return min
}
