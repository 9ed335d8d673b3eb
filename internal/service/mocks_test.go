package service_test

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/mcardwell78/RBAconnector-sub000/internal/errors"
	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
)

// In-memory fakes shared by the service tests.

type fakeCampaignRepo struct {
	campaigns map[int]*model.Campaign
}

func (f *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (f *fakeCampaignRepo) ListByUser(userID string) ([]*model.Campaign, error) {
	out := []*model.Campaign{}
	for _, c := range f.campaigns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaignRepo) Create(c *model.Campaign) error {
	c.ID = len(f.campaigns) + 1
	f.campaigns[c.ID] = c
	return nil
}

func (f *fakeCampaignRepo) Delete(id int) error {
	delete(f.campaigns, id)
	return nil
}

type fakeContactRepo struct {
	contacts map[int]*model.Contact
}

func (f *fakeContactRepo) GetByID(id int) (*model.Contact, error) {
	return f.contacts[id], nil
}

func (f *fakeContactRepo) ListByUser(userID string) ([]model.Contact, error) {
	out := []model.Contact{}
	for _, c := range f.contacts {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeEnrollmentRepo struct {
	enrollments map[string]*model.Enrollment
	clock       time.Time

	// failAfter makes Create fail once this many rows exist; -1 disables.
	failAfter int
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{
		enrollments: map[string]*model.Enrollment{},
		clock:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		failAfter:   -1,
	}
}

func (f *fakeEnrollmentRepo) Create(e *model.Enrollment) error {
	if f.failAfter >= 0 && len(f.enrollments) >= f.failAfter {
		return fmt.Errorf("store unreachable")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.EnrollmentActive
	}
	f.clock = f.clock.Add(time.Second)
	e.CreatedAt = f.clock
	cp := *e
	f.enrollments[e.ID] = &cp
	return nil
}

func (f *fakeEnrollmentRepo) GetByID(id string) (*model.Enrollment, error) {
	e, ok := f.enrollments[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEnrollmentRepo) ListByTuple(campaignID, contactID int, userID string) ([]*model.Enrollment, error) {
	out := []*model.Enrollment{}
	for _, e := range f.enrollments {
		if e.CampaignID == campaignID && e.ContactID == contactID && e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeEnrollmentRepo) ListByCampaign(campaignID int, userID string) ([]*model.Enrollment, error) {
	out := []*model.Enrollment{}
	for _, e := range f.enrollments {
		if e.CampaignID == campaignID && e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeEnrollmentRepo) ListByContact(contactID int, userID string) ([]*model.Enrollment, error) {
	out := []*model.Enrollment{}
	for _, e := range f.enrollments {
		if e.ContactID == contactID && e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeEnrollmentRepo) Update(e *model.Enrollment) error {
	if _, ok := f.enrollments[e.ID]; !ok {
		return fmt.Errorf("enrollment %s missing", e.ID)
	}
	cp := *e
	f.enrollments[e.ID] = &cp
	return nil
}

func (f *fakeEnrollmentRepo) CompleteAllNonCompleted(campaignID, contactID int, userID string) (int, error) {
	n := 0
	for _, e := range f.enrollments {
		if e.CampaignID == campaignID && e.ContactID == contactID && e.UserID == userID &&
			e.Status != model.EnrollmentCompleted {
			e.Status = model.EnrollmentCompleted
			at := f.clock
			e.CompletedAt = &at
			n++
		}
	}
	return n, nil
}

func (f *fakeEnrollmentRepo) Delete(id string) error {
	delete(f.enrollments, id)
	return nil
}

func (f *fakeEnrollmentRepo) StatusCounts(campaignID int, userID string) (map[string]int, error) {
	counts := map[string]int{}
	for _, e := range f.enrollments {
		if e.CampaignID == campaignID && e.UserID == userID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

type fakeSendRepo struct {
	sends map[string]*model.ScheduledSend

	// failNextDelete makes the next DeletePending call fail once.
	failNextDelete bool
}

func newFakeSendRepo() *fakeSendRepo {
	return &fakeSendRepo{sends: map[string]*model.ScheduledSend{}}
}

func (f *fakeSendRepo) Create(s *model.ScheduledSend) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = model.SendPending
	}
	cp := *s
	f.sends[s.ID] = &cp
	return nil
}

func (f *fakeSendRepo) GetByID(id string) (*model.ScheduledSend, error) {
	s, ok := f.sends[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSendRepo) ListByEnrollment(enrollmentID string) ([]*model.ScheduledSend, error) {
	out := []*model.ScheduledSend{}
	for _, s := range f.sends {
		if s.CampaignEnrollmentID == enrollmentID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

func (f *fakeSendRepo) NextPending(enrollmentID string) (*model.ScheduledSend, error) {
	var next *model.ScheduledSend
	for _, s := range f.sends {
		if s.CampaignEnrollmentID != enrollmentID || s.Status != model.SendPending {
			continue
		}
		if next == nil || s.ScheduledFor.Before(next.ScheduledFor) {
			cp := *s
			next = &cp
		}
	}
	return next, nil
}

func (f *fakeSendRepo) DeletePending(enrollmentID string) (int, error) {
	if f.failNextDelete {
		f.failNextDelete = false
		return 0, fmt.Errorf("store unreachable")
	}
	n := 0
	for id, s := range f.sends {
		if s.CampaignEnrollmentID == enrollmentID && s.Status == model.SendPending {
			delete(f.sends, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSendRepo) DeletePendingFrom(enrollmentID string, stepIndex int) (int, error) {
	n := 0
	for id, s := range f.sends {
		if s.CampaignEnrollmentID == enrollmentID && s.Status == model.SendPending && s.StepIndex >= stepIndex {
			delete(f.sends, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSendRepo) MarkSent(id string, at time.Time) error {
	s, ok := f.sends[id]
	if !ok {
		return fmt.Errorf("send %s missing", id)
	}
	s.Status = model.SendSent
	sentAt := at
	s.SentAt = &sentAt
	s.LastError = ""
	return nil
}

func (f *fakeSendRepo) MarkFailed(id string, reason string) error {
	s, ok := f.sends[id]
	if !ok {
		return fmt.Errorf("send %s missing", id)
	}
	s.Status = model.SendFailed
	s.LastError = reason
	return nil
}

func (f *fakeSendRepo) ListDue(now time.Time, limit int) ([]*model.ScheduledSend, error) {
	out := []*model.ScheduledSend{}
	for _, s := range f.sends {
		if s.Status == model.SendPending && !s.ScheduledFor.After(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
