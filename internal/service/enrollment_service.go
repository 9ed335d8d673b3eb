// internal/service/enrollment_service.go
package service

import (
	"errors"
	"fmt"
	"time"

	appErrors "github.com/mcardwell78/RBAconnector-sub000/internal/errors"
	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
	"github.com/mcardwell78/RBAconnector-sub000/internal/repository"
)

const (
	ReEnrollResume  = "resume"
	ReEnrollRestart = "restart"
)

type EnrollmentService struct {
	CampaignRepo   repository.CampaignRepositoryInterface
	ContactRepo    repository.ContactRepositoryInterface
	EnrollmentRepo repository.EnrollmentRepositoryInterface
}

// ReEnrollChoice is the caller-supplied answer to the resume/restart prompt
// for one contact.
type ReEnrollChoice struct {
	Mode     string `json:"mode"`
	LastStep int    `json:"last_step"`
}

type ReEnrollInfo struct {
	ContactID  int               `json:"contact_id"`
	Enrollment *model.Enrollment `json:"enrollment"`
}

type EnrollResult struct {
	Enrolled     []string       `json:"enrolled"`
	Skipped      []int          `json:"skipped"`
	ReEnrollInfo []ReEnrollInfo `json:"re_enroll_info"`
}

// Enroll enrolls contacts into a campaign for the acting user.
//
// Contacts with no prior enrollment get a fresh active enrollment at step 0.
// Contacts with history are skipped unless a re-enroll choice was supplied;
// with a choice, every prior non-completed enrollment for the tuple is marked
// completed and a brand-new active enrollment is created at the chosen step.
// A write failure stops the batch and returns the partial result together
// with the error; nothing already written is rolled back, and re-running the
// call is safe because already-enrolled contacts come back as skipped.
func (s *EnrollmentService) Enroll(userID string, campaignID int, contactIDs []int, choices map[int]ReEnrollChoice) (*EnrollResult, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}

	result := &EnrollResult{
		Enrolled:     []string{},
		Skipped:      []int{},
		ReEnrollInfo: []ReEnrollInfo{},
	}
	var authErrs []error

	for _, contactID := range contactIDs {
		contact, err := s.ContactRepo.GetByID(contactID)
		if err != nil {
			return result, err
		}
		if contact == nil || contact.UserID != userID {
			authErrs = append(authErrs, appErrors.NewContactNotOwned(contactID, userID))
			continue
		}

		history, err := s.EnrollmentRepo.ListByTuple(campaignID, contactID, userID)
		if err != nil {
			return result, err
		}

		if len(history) == 0 {
			startStep := 0
			// A resume choice reused across a mixed contact set can name a
			// starting step for contacts that were never enrolled.
			if ch, ok := choices[contactID]; ok && ch.Mode == ReEnrollResume && ch.LastStep > 0 {
				startStep = ch.LastStep
			}
			e, err := s.createActive(userID, campaignID, contactID, startStep, nil)
			if err != nil {
				return result, err
			}
			result.Enrolled = append(result.Enrolled, e.ID)
			continue
		}

		ch, ok := choices[contactID]
		if !ok {
			result.Skipped = append(result.Skipped, contactID)
			result.ReEnrollInfo = append(result.ReEnrollInfo, ReEnrollInfo{ContactID: contactID, Enrollment: history[0]})
			continue
		}

		startStep := 0
		switch ch.Mode {
		case ReEnrollResume:
			startStep = ch.LastStep
		case ReEnrollRestart:
		default:
			return result, fmt.Errorf("unknown re-enroll mode %q for contact %d", ch.Mode, contactID)
		}

		if _, err := s.EnrollmentRepo.CompleteAllNonCompleted(campaignID, contactID, userID); err != nil {
			return result, err
		}
		e, err := s.createActive(userID, campaignID, contactID, startStep, nil)
		if err != nil {
			return result, err
		}
		result.Enrolled = append(result.Enrolled, e.ID)
		result.ReEnrollInfo = append(result.ReEnrollInfo, ReEnrollInfo{ContactID: contactID, Enrollment: history[0]})
	}

	// Zero enrolled and zero validly skipped is a caller bug (missing
	// re-enroll choice) and must surface, not vanish.
	if len(result.Enrolled) == 0 && len(result.Skipped) == 0 {
		authErrs = append(authErrs, appErrors.NewNothingEnrolled(campaignID))
	}
	if len(authErrs) > 0 {
		return result, errors.Join(authErrs...)
	}
	return result, nil
}

type BulkEnrollOptions struct {
	QueueIfAlreadyEnrolled bool
	StepDelays             []model.DelaySpec
	InitialDelay           *model.DelaySpec
}

type BulkEnrollResult struct {
	Enrolled []string `json:"enrolled"`
	Queued   []string `json:"queued"`
	Skipped  []int    `json:"skipped"`
}

// BulkEnrollOrQueue is the bulk-assign variant: contacts already in the
// campaign are skipped by default, or handed a queued enrollment that waits
// behind their current one. Queued enrollments carry the initial delay to
// apply at promotion time and get no ledger until promoted.
func (s *EnrollmentService) BulkEnrollOrQueue(userID string, campaignID int, contactIDs []int, opts BulkEnrollOptions) (*BulkEnrollResult, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}

	result := &BulkEnrollResult{Enrolled: []string{}, Queued: []string{}, Skipped: []int{}}
	var authErrs []error

	for _, contactID := range contactIDs {
		contact, err := s.ContactRepo.GetByID(contactID)
		if err != nil {
			return result, err
		}
		if contact == nil || contact.UserID != userID {
			authErrs = append(authErrs, appErrors.NewContactNotOwned(contactID, userID))
			continue
		}

		history, err := s.EnrollmentRepo.ListByTuple(campaignID, contactID, userID)
		if err != nil {
			return result, err
		}

		if len(history) == 0 {
			e, err := s.createActive(userID, campaignID, contactID, 0, opts.StepDelays)
			if err != nil {
				return result, err
			}
			result.Enrolled = append(result.Enrolled, e.ID)
			continue
		}

		if !opts.QueueIfAlreadyEnrolled {
			result.Skipped = append(result.Skipped, contactID)
			continue
		}

		e := &model.Enrollment{
			CampaignID:   campaignID,
			ContactID:    contactID,
			UserID:       userID,
			Status:       model.EnrollmentQueued,
			StepDelays:   opts.StepDelays,
			InitialDelay: opts.InitialDelay,
		}
		if err := s.EnrollmentRepo.Create(e); err != nil {
			return result, err
		}
		result.Queued = append(result.Queued, e.ID)
	}

	if len(authErrs) > 0 {
		return result, errors.Join(authErrs...)
	}
	return result, nil
}

// ReEnrollDecision inspects a tuple's history and says which re-enroll prompt
// to offer: resume (plus the step to resume from) when any enrollment was
// withdrawn, restart when the latest is completed with no withdrawals, or ""
// for a fresh enroll with no prompt.
func (s *EnrollmentService) ReEnrollDecision(history []*model.Enrollment) (string, int) {
	if len(history) == 0 {
		return "", 0
	}

	var latestWithdrawn *model.Enrollment
	for _, e := range history {
		if e.Status != model.EnrollmentWithdrawn {
			continue
		}
		if latestWithdrawn == nil || e.CreatedAt.After(latestWithdrawn.CreatedAt) {
			latestWithdrawn = e
		}
	}
	if latestWithdrawn != nil {
		return ReEnrollResume, latestWithdrawn.CurrentStep
	}
	if history[0].Status == model.EnrollmentCompleted {
		return ReEnrollRestart, 0
	}
	return "", 0
}

// EnrollmentPatch carries optional field updates; nil means leave alone.
type EnrollmentPatch struct {
	Status      *string           `json:"status,omitempty"`
	CurrentStep *int              `json:"current_step,omitempty"`
	NextSend    *time.Time        `json:"next_send,omitempty"`
	StepDelays  []model.DelaySpec `json:"step_delays,omitempty"`
}

func (s *EnrollmentService) UpdateEnrollment(userID, id string, patch EnrollmentPatch) (*model.Enrollment, error) {
	e, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil {
		e.Status = *patch.Status
	}
	if patch.CurrentStep != nil {
		e.CurrentStep = *patch.CurrentStep
	}
	if patch.NextSend != nil {
		e.NextSend = patch.NextSend
	}
	if patch.StepDelays != nil {
		e.StepDelays = patch.StepDelays
	}
	if err := s.EnrollmentRepo.Update(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EnrollmentService) RemoveEnrollment(userID, id string) error {
	if _, err := s.owned(userID, id); err != nil {
		return err
	}
	return s.EnrollmentRepo.Delete(id)
}

func (s *EnrollmentService) GetEnrollmentsForCampaign(userID string, campaignID int) ([]*model.Enrollment, error) {
	return s.EnrollmentRepo.ListByCampaign(campaignID, userID)
}

func (s *EnrollmentService) GetEnrollmentsForContact(userID string, contactID int) ([]*model.Enrollment, error) {
	return s.EnrollmentRepo.ListByContact(contactID, userID)
}

func (s *EnrollmentService) createActive(userID string, campaignID, contactID, startStep int, stepDelays []model.DelaySpec) (*model.Enrollment, error) {
	e := &model.Enrollment{
		CampaignID:  campaignID,
		ContactID:   contactID,
		UserID:      userID,
		Status:      model.EnrollmentActive,
		CurrentStep: startStep,
		StepDelays:  stepDelays,
	}
	if err := s.EnrollmentRepo.Create(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EnrollmentService) owned(userID, id string) (*model.Enrollment, error) {
	e, err := s.EnrollmentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, appErrors.NewEnrollmentNotFound(id)
	}
	if e.UserID != userID {
		return nil, appErrors.NewContactNotOwned(e.ContactID, userID)
	}
	return e, nil
}
