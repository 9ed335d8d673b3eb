package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
	"github.com/mcardwell78/RBAconnector-sub000/internal/service"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

func newDispatchFixture(t *testing.T) (*service.DispatchService, *service.LifecycleService, *service.LedgerService, *fakeEnrollmentRepo, *fakeSendRepo, *model.Enrollment, *[]sentMail) {
	t.Helper()
	campaigns := &fakeCampaignRepo{campaigns: map[int]*model.Campaign{
		1: {ID: 1, UserID: "user-1", Name: "Welcome drip", Status: "active", Steps: []model.Step{
			{StepType: "email", Subject: "Welcome, {first_name}!", Body: "Hi {first_name}.", Delay: model.NewRelative(1, model.DelayUnitMinutes)},
			{StepType: "email", Subject: "Tips", Body: "Some tips.", Delay: model.NewRelative(2, model.DelayUnitDays)},
		}},
	}}
	contacts := &fakeContactRepo{contacts: map[int]*model.Contact{
		10: {ID: 10, UserID: "user-1", Email: "alice@example.com", FirstName: "Alice"},
	}}
	enrollRepo := newFakeEnrollmentRepo()
	sendRepo := newFakeSendRepo()

	e := &model.Enrollment{CampaignID: 1, ContactID: 10, UserID: "user-1", Status: model.EnrollmentActive}
	require.NoError(t, enrollRepo.Create(e))

	ledger := &service.LedgerService{
		CampaignRepo:   campaigns,
		EnrollmentRepo: enrollRepo,
		SendRepo:       sendRepo,
		Now:            func() time.Time { return testNow },
	}
	lifecycle := &service.LifecycleService{
		EnrollmentRepo: enrollRepo,
		SendRepo:       sendRepo,
		Ledger:         ledger,
		Now:            func() time.Time { return testNow },
	}

	sent := &[]sentMail{}
	dispatch := &service.DispatchService{
		CampaignRepo:   campaigns,
		ContactRepo:    contacts,
		EnrollmentRepo: enrollRepo,
		SendRepo:       sendRepo,
		Lifecycle:      lifecycle,
		Now:            func() time.Time { return testNow },
		Send: func(to, subject, body string) error {
			*sent = append(*sent, sentMail{to: to, subject: subject, body: body})
			return nil
		},
	}

	_, err := ledger.Materialize(e.ID, testAnchor, nil)
	require.NoError(t, err)
	return dispatch, lifecycle, ledger, enrollRepo, sendRepo, e, sent
}

func TestProcessSendMarksSentAndAdvances(t *testing.T) {
	dispatch, _, _, enrollRepo, sendRepo, e, sent := newDispatchFixture(t)

	step0 := rowByStep(t, sendRepo, e.ID, 0)
	require.NoError(t, dispatch.ProcessSend(step0.ID))

	require.Len(t, *sent, 1)
	assert.Equal(t, "alice@example.com", (*sent)[0].to)
	assert.Equal(t, "Welcome, Alice!", (*sent)[0].subject)

	after0 := rowByStep(t, sendRepo, e.ID, 0)
	assert.Equal(t, model.SendSent, after0.Status)
	require.NotNil(t, after0.SentAt)

	fresh, _ := enrollRepo.GetByID(e.ID)
	assert.Equal(t, 1, fresh.CurrentStep)
	require.NotNil(t, fresh.NextSend)
	step1 := rowByStep(t, sendRepo, e.ID, 1)
	assert.Equal(t, step1.ScheduledFor, *fresh.NextSend)
}

func TestProcessSendCompletesEnrollmentOnLastStep(t *testing.T) {
	dispatch, _, _, enrollRepo, sendRepo, e, _ := newDispatchFixture(t)

	step0 := rowByStep(t, sendRepo, e.ID, 0)
	require.NoError(t, dispatch.ProcessSend(step0.ID))
	step1 := rowByStep(t, sendRepo, e.ID, 1)
	require.NoError(t, dispatch.ProcessSend(step1.ID))

	fresh, _ := enrollRepo.GetByID(e.ID)
	assert.Equal(t, model.EnrollmentCompleted, fresh.Status)
	require.NotNil(t, fresh.CompletedAt)
	assert.Nil(t, fresh.NextSend)
}

func TestProcessSendIsIdempotent(t *testing.T) {
	dispatch, _, _, _, sendRepo, e, sent := newDispatchFixture(t)

	step0 := rowByStep(t, sendRepo, e.ID, 0)
	require.NoError(t, dispatch.ProcessSend(step0.ID))
	require.NoError(t, dispatch.ProcessSend(step0.ID))

	// Redelivery does not send twice.
	assert.Len(t, *sent, 1)
}

func TestProcessSendLeavesPausedEnrollmentsAlone(t *testing.T) {
	dispatch, lifecycle, _, _, sendRepo, e, sent := newDispatchFixture(t)

	require.NoError(t, lifecycle.Pause(e.ID))

	step0 := rowByStep(t, sendRepo, e.ID, 0)
	require.NoError(t, dispatch.ProcessSend(step0.ID))

	assert.Empty(t, *sent)
	after0 := rowByStep(t, sendRepo, e.ID, 0)
	assert.Equal(t, model.SendPending, after0.Status)
}

func TestProcessSendFailureMarksRowFailed(t *testing.T) {
	dispatch, _, _, _, sendRepo, e, _ := newDispatchFixture(t)
	dispatch.Send = func(to, subject, body string) error {
		return fmt.Errorf("smtp unavailable")
	}

	step0 := rowByStep(t, sendRepo, e.ID, 0)
	require.Error(t, dispatch.ProcessSend(step0.ID))

	after0 := rowByStep(t, sendRepo, e.ID, 0)
	assert.Equal(t, model.SendFailed, after0.Status)
	assert.Equal(t, "smtp unavailable", after0.LastError)
}

func TestProcessSendUnknownIDIsNoop(t *testing.T) {
	dispatch, _, _, _, _, _, sent := newDispatchFixture(t)
	require.NoError(t, dispatch.ProcessSend("nope"))
	assert.Empty(t, *sent)
}
