// internal/service/lifecycle_service.go
package service

import (
	"time"

	"github.com/mcardwell78/RBAconnector-sub000/internal/delay"
	appErrors "github.com/mcardwell78/RBAconnector-sub000/internal/errors"
	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
	"github.com/mcardwell78/RBAconnector-sub000/internal/repository"
)

// LifecycleService handles terminal and near-terminal enrollment transitions:
// withdraw, complete, pause, and promotion of queued enrollments.
type LifecycleService struct {
	EnrollmentRepo repository.EnrollmentRepositoryInterface
	SendRepo       repository.ScheduledSendRepositoryInterface
	Ledger         *LedgerService

	Now func() time.Time
}

func (s *LifecycleService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type WithdrawResult struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted"`
}

// Withdraw stops a campaign early: marks the enrollment withdrawn and deletes
// its unsent ledger rows, reporting the count for user-facing confirmation.
// Withdrawing an already-withdrawn enrollment is a no-op success.
func (s *LifecycleService) Withdraw(userID, enrollmentID string) (*WithdrawResult, error) {
	e, err := s.EnrollmentRepo.GetByID(enrollmentID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, appErrors.NewEnrollmentNotFound(enrollmentID)
	}
	if e.UserID != userID {
		return nil, appErrors.NewContactNotOwned(e.ContactID, userID)
	}
	if e.Status == model.EnrollmentWithdrawn {
		// A prior withdraw may have flipped the status and then failed to
		// clear the ledger; sweep again so a retry repairs it.
		deleted, err := s.SendRepo.DeletePending(enrollmentID)
		if err != nil {
			return nil, err
		}
		return &WithdrawResult{Success: true, Deleted: deleted}, nil
	}
	if e.Terminal() {
		return nil, appErrors.NewInvalidTransition(e.Status, model.EnrollmentWithdrawn)
	}

	at := s.now()
	e.Status = model.EnrollmentWithdrawn
	e.WithdrawnAt = &at
	e.NextSend = nil
	if err := s.EnrollmentRepo.Update(e); err != nil {
		return nil, err
	}

	deleted, err := s.SendRepo.DeletePending(enrollmentID)
	if err != nil {
		return nil, err
	}
	return &WithdrawResult{Success: true, Deleted: deleted}, nil
}

// Complete marks the enrollment completed. Invoked when the last step's send
// goes out, or by explicit user action. Idempotent.
func (s *LifecycleService) Complete(enrollmentID string) error {
	e, err := s.EnrollmentRepo.GetByID(enrollmentID)
	if err != nil {
		return err
	}
	if e == nil {
		return appErrors.NewEnrollmentNotFound(enrollmentID)
	}
	if e.Status == model.EnrollmentCompleted {
		return nil
	}

	at := s.now()
	e.Status = model.EnrollmentCompleted
	e.CompletedAt = &at
	e.NextSend = nil
	return s.EnrollmentRepo.Update(e)
}

// Pause suspends an active enrollment without touching its ledger.
func (s *LifecycleService) Pause(enrollmentID string) error {
	e, err := s.EnrollmentRepo.GetByID(enrollmentID)
	if err != nil {
		return err
	}
	if e == nil {
		return appErrors.NewEnrollmentNotFound(enrollmentID)
	}
	if e.Status == model.EnrollmentPaused {
		return nil
	}
	if e.Status != model.EnrollmentActive {
		return appErrors.NewInvalidTransition(e.Status, model.EnrollmentPaused)
	}
	e.Status = model.EnrollmentPaused
	return s.EnrollmentRepo.Update(e)
}

// Resume reactivates a paused enrollment.
func (s *LifecycleService) Resume(enrollmentID string) error {
	e, err := s.EnrollmentRepo.GetByID(enrollmentID)
	if err != nil {
		return err
	}
	if e == nil {
		return appErrors.NewEnrollmentNotFound(enrollmentID)
	}
	if e.Status == model.EnrollmentActive {
		return nil
	}
	if e.Status != model.EnrollmentPaused {
		return appErrors.NewInvalidTransition(e.Status, model.EnrollmentActive)
	}
	e.Status = model.EnrollmentActive
	return s.EnrollmentRepo.Update(e)
}

// PromoteQueued activates a queued enrollment once the contact's prior
// campaign has finished, anchoring its schedule at now plus the stored
// initial delay, then materializes its ledger.
func (s *LifecycleService) PromoteQueued(enrollmentID string) error {
	e, err := s.EnrollmentRepo.GetByID(enrollmentID)
	if err != nil {
		return err
	}
	if e == nil {
		return appErrors.NewEnrollmentNotFound(enrollmentID)
	}
	if e.Status != model.EnrollmentQueued {
		return appErrors.NewInvalidTransition(e.Status, model.EnrollmentActive)
	}

	start := s.now().Add(delay.MinLeadTime)
	if e.InitialDelay != nil {
		if e.InitialDelay.Relative != nil {
			d, err := delay.Duration(*e.InitialDelay.Relative)
			if err != nil {
				return err
			}
			start = s.now().Add(d)
		} else if e.InitialDelay.Absolute != nil {
			start, err = delay.Chain(time.Time{}, *e.InitialDelay)
			if err != nil {
				return err
			}
		}
	}

	e.Status = model.EnrollmentActive
	if err := s.EnrollmentRepo.Update(e); err != nil {
		return err
	}

	_, err = s.Ledger.Materialize(enrollmentID, delay.AnchorAt(start), e.StepDelays)
	return err
}
