package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/mcardwell78/RBAconnector-sub000/internal/errors"
	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
	"github.com/mcardwell78/RBAconnector-sub000/internal/service"
)

func newLifecycleFixture(t *testing.T) (*service.LifecycleService, *service.LedgerService, *fakeEnrollmentRepo, *fakeSendRepo, *model.Enrollment) {
	t.Helper()
	ledger, enrollRepo, sendRepo, e := newLedgerFixture(t)
	lifecycle := &service.LifecycleService{
		EnrollmentRepo: enrollRepo,
		SendRepo:       sendRepo,
		Ledger:         ledger,
		Now:            func() time.Time { return testNow },
	}
	return lifecycle, ledger, enrollRepo, sendRepo, e
}

func TestWithdrawDeletesOnlyPendingRows(t *testing.T) {
	lifecycle, ledger, enrollRepo, sendRepo, e := newLifecycleFixture(t)

	_, err := ledger.Materialize(e.ID, testAnchor, nil)
	require.NoError(t, err)

	step0 := rowByStep(t, sendRepo, e.ID, 0)
	require.NoError(t, sendRepo.MarkSent(step0.ID, step0.ScheduledFor))

	result, err := lifecycle.Withdraw("user-1", e.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Deleted)

	// The sent record survives withdrawal.
	rows, _ := sendRepo.ListByEnrollment(e.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SendSent, rows[0].Status)

	fresh, _ := enrollRepo.GetByID(e.ID)
	assert.Equal(t, model.EnrollmentWithdrawn, fresh.Status)
	require.NotNil(t, fresh.WithdrawnAt)
	assert.Nil(t, fresh.NextSend)
}

func TestWithdrawIsIdempotent(t *testing.T) {
	lifecycle, ledger, _, _, e := newLifecycleFixture(t)

	_, err := ledger.Materialize(e.ID, testAnchor, nil)
	require.NoError(t, err)

	first, err := lifecycle.Withdraw("user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Deleted)

	second, err := lifecycle.Withdraw("user-1", e.ID)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Deleted)
}

func TestWithdrawRetrySweepsRowsAfterDeleteFailure(t *testing.T) {
	lifecycle, ledger, enrollRepo, sendRepo, e := newLifecycleFixture(t)

	_, err := ledger.Materialize(e.ID, testAnchor, nil)
	require.NoError(t, err)

	sendRepo.failNextDelete = true
	_, err = lifecycle.Withdraw("user-1", e.ID)
	require.Error(t, err)

	// The status flip stuck but the ledger did not get cleared.
	fresh, _ := enrollRepo.GetByID(e.ID)
	require.Equal(t, model.EnrollmentWithdrawn, fresh.Status)
	rows, _ := sendRepo.ListByEnrollment(e.ID)
	require.Len(t, rows, 3)

	// Retrying must sweep the orphaned pending rows, not short-circuit.
	result, err := lifecycle.Withdraw("user-1", e.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Deleted)

	rows, _ = sendRepo.ListByEnrollment(e.ID)
	assert.Empty(t, rows)
}

func TestWithdrawRejectsCompletedEnrollment(t *testing.T) {
	lifecycle, _, _, _, e := newLifecycleFixture(t)

	require.NoError(t, lifecycle.Complete(e.ID))

	_, err := lifecycle.Withdraw("user-1", e.ID)
	require.Error(t, err)
	var badTransition *appErrors.ErrInvalidTransition
	assert.ErrorAs(t, err, &badTransition)
}

func TestWithdrawIsUserScoped(t *testing.T) {
	lifecycle, _, _, _, e := newLifecycleFixture(t)

	_, err := lifecycle.Withdraw("user-2", e.ID)
	require.Error(t, err)
}

func TestCompleteIsIdempotent(t *testing.T) {
	lifecycle, _, enrollRepo, _, e := newLifecycleFixture(t)

	require.NoError(t, lifecycle.Complete(e.ID))
	fresh, _ := enrollRepo.GetByID(e.ID)
	assert.Equal(t, model.EnrollmentCompleted, fresh.Status)
	require.NotNil(t, fresh.CompletedAt)

	require.NoError(t, lifecycle.Complete(e.ID))
}

func TestPauseAndResumeTransitions(t *testing.T) {
	lifecycle, _, enrollRepo, _, e := newLifecycleFixture(t)

	require.NoError(t, lifecycle.Pause(e.ID))
	fresh, _ := enrollRepo.GetByID(e.ID)
	assert.Equal(t, model.EnrollmentPaused, fresh.Status)

	require.NoError(t, lifecycle.Resume(e.ID))
	fresh, _ = enrollRepo.GetByID(e.ID)
	assert.Equal(t, model.EnrollmentActive, fresh.Status)

	// Pausing a terminal enrollment is an error.
	require.NoError(t, lifecycle.Complete(e.ID))
	require.Error(t, lifecycle.Pause(e.ID))
}

func TestPromoteQueuedActivatesAndMaterializes(t *testing.T) {
	lifecycle, _, enrollRepo, sendRepo, _ := newLifecycleFixture(t)

	initial := model.NewRelative(3, model.DelayUnitDays)
	queued := &model.Enrollment{CampaignID: 1, ContactID: 11, UserID: "user-1",
		Status: model.EnrollmentQueued, InitialDelay: &initial}
	require.NoError(t, enrollRepo.Create(queued))

	require.NoError(t, lifecycle.PromoteQueued(queued.ID))

	fresh, _ := enrollRepo.GetByID(queued.ID)
	assert.Equal(t, model.EnrollmentActive, fresh.Status)

	// Ledger anchored three days out from promotion time.
	rows, _ := sendRepo.ListByEnrollment(queued.ID)
	require.Len(t, rows, 3)
	step0 := rowByStep(t, sendRepo, queued.ID, 0)
	assert.Equal(t, testNow.Add(3*24*time.Hour), step0.ScheduledFor)
}

func TestPromoteRejectsNonQueued(t *testing.T) {
	lifecycle, _, _, _, e := newLifecycleFixture(t)
	require.Error(t, lifecycle.PromoteQueued(e.ID))
}
