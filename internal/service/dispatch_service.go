// internal/service/dispatch_service.go
package service

import (
	"log"
	"strings"
	"time"

	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
	"github.com/mcardwell78/RBAconnector-sub000/internal/repository"
)

// SendFunc hands a rendered email off to the transactional sender. The
// decision of when to send lives here; the actual transmission does not.
type SendFunc func(to, subject, body string) error

// DispatchService processes due scheduled sends: hand off to the sender, mark
// the row sent or failed, advance the enrollment, and complete it when the
// last step has gone out.
type DispatchService struct {
	CampaignRepo   repository.CampaignRepositoryInterface
	ContactRepo    repository.ContactRepositoryInterface
	EnrollmentRepo repository.EnrollmentRepositoryInterface
	SendRepo       repository.ScheduledSendRepositoryInterface
	Lifecycle      *LifecycleService
	Send           SendFunc

	Now func() time.Time
}

func (s *DispatchService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ProcessSend handles one scheduled-send id. Missing or already-processed
// rows are a no-op, so redelivered queue messages are safe.
func (s *DispatchService) ProcessSend(sendID string) error {
	snd, err := s.SendRepo.GetByID(sendID)
	if err != nil {
		return err
	}
	if snd == nil || snd.Status != model.SendPending {
		return nil
	}

	e, err := s.EnrollmentRepo.GetByID(snd.CampaignEnrollmentID)
	if err != nil {
		return err
	}
	if e == nil || e.Status != model.EnrollmentActive {
		// Withdrawn or paused mid-flight; leave the row alone.
		return nil
	}

	campaign, err := s.CampaignRepo.GetByID(e.CampaignID)
	if err != nil {
		return err
	}
	if snd.StepIndex >= len(campaign.Steps) {
		return s.SendRepo.MarkFailed(snd.ID, "step index out of range")
	}
	step := campaign.Steps[snd.StepIndex]

	contact, err := s.ContactRepo.GetByID(e.ContactID)
	if err != nil {
		return err
	}
	if contact == nil {
		return s.SendRepo.MarkFailed(snd.ID, "contact no longer exists")
	}

	subject, body := renderStep(step, contact)
	if err := s.Send(contact.Email, subject, body); err != nil {
		log.Println("⚠️ send failed for", snd.ID, ":", err)
		if markErr := s.SendRepo.MarkFailed(snd.ID, err.Error()); markErr != nil {
			return markErr
		}
		return err
	}

	if err := s.SendRepo.MarkSent(snd.ID, s.now()); err != nil {
		return err
	}

	// Advance the enrollment past this step.
	if snd.StepIndex+1 > e.CurrentStep {
		e.CurrentStep = snd.StepIndex + 1
	}
	next, err := s.SendRepo.NextPending(e.ID)
	if err != nil {
		return err
	}
	if next == nil {
		e.NextSend = nil
		if err := s.EnrollmentRepo.Update(e); err != nil {
			return err
		}
		return s.Lifecycle.Complete(e.ID)
	}
	e.NextSend = &next.ScheduledFor
	return s.EnrollmentRepo.Update(e)
}

// renderStep fills contact tokens into the step's inline content. Template-id
// resolution belongs to the template store; here the id doubles as the
// subject fallback.
func renderStep(step model.Step, contact *model.Contact) (string, string) {
	data := map[string]string{
		"first_name": contact.FirstName,
		"last_name":  contact.LastName,
		"email":      contact.Email,
	}
	subject := step.Subject
	if subject == "" {
		subject = step.TemplateID
	}
	return RenderTemplate(subject, data), RenderTemplate(step.Body, data)
}

// RenderTemplate substitutes {token} placeholders with contact data.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		if v == "" {
			v = "<unknown>"
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
