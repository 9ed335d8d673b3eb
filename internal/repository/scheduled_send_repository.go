package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
)

type ScheduledSendRepositoryInterface interface {
	Create(s *model.ScheduledSend) error
	GetByID(id string) (*model.ScheduledSend, error)
	ListByEnrollment(enrollmentID string) ([]*model.ScheduledSend, error)
	NextPending(enrollmentID string) (*model.ScheduledSend, error)
	DeletePending(enrollmentID string) (int, error)
	DeletePendingFrom(enrollmentID string, stepIndex int) (int, error)
	MarkSent(id string, at time.Time) error
	MarkFailed(id string, reason string) error
	ListDue(now time.Time, limit int) ([]*model.ScheduledSend, error)
}

type ScheduledSendRepository struct {
	DB *sql.DB
}

const sendColumns = `id, campaign_enrollment_id, step_index, scheduled_for, status, sent_at, last_error, created_at`

func (r *ScheduledSendRepository) Create(s *model.ScheduledSend) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = model.SendPending
	}
	s.CreatedAt = time.Now()

	query := `
        INSERT INTO scheduled_sends
        (id, campaign_enrollment_id, step_index, scheduled_for, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.DB.Exec(query, s.ID, s.CampaignEnrollmentID, s.StepIndex, s.ScheduledFor.UTC(), s.Status, s.CreatedAt)
	return err
}

func (r *ScheduledSendRepository) GetByID(id string) (*model.ScheduledSend, error) {
	query := `SELECT ` + sendColumns + ` FROM scheduled_sends WHERE id=$1`
	s, err := scanSend(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *ScheduledSendRepository) ListByEnrollment(enrollmentID string) ([]*model.ScheduledSend, error) {
	query := `
        SELECT ` + sendColumns + `
        FROM scheduled_sends
        WHERE campaign_enrollment_id=$1
        ORDER BY step_index
    `
	return r.listSends(query, enrollmentID)
}

// NextPending returns the earliest pending record regardless of stored order.
// Sent and failed rows never count toward "next".
func (r *ScheduledSendRepository) NextPending(enrollmentID string) (*model.ScheduledSend, error) {
	query := `
        SELECT ` + sendColumns + `
        FROM scheduled_sends
        WHERE campaign_enrollment_id=$1 AND status=$2
        ORDER BY scheduled_for ASC
        LIMIT 1
    `
	s, err := scanSend(r.DB.QueryRow(query, enrollmentID, model.SendPending))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// DeletePending removes every not-yet-sent row for the enrollment and reports
// how many went away. Sent rows always survive.
func (r *ScheduledSendRepository) DeletePending(enrollmentID string) (int, error) {
	res, err := r.DB.Exec(
		`DELETE FROM scheduled_sends WHERE campaign_enrollment_id=$1 AND status=$2`,
		enrollmentID, model.SendPending,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeletePendingFrom removes pending rows at or after stepIndex; used by the
// partial rewrite path so sent rows and earlier pending rows stay put.
func (r *ScheduledSendRepository) DeletePendingFrom(enrollmentID string, stepIndex int) (int, error) {
	res, err := r.DB.Exec(
		`DELETE FROM scheduled_sends WHERE campaign_enrollment_id=$1 AND status=$2 AND step_index >= $3`,
		enrollmentID, model.SendPending, stepIndex,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *ScheduledSendRepository) MarkSent(id string, at time.Time) error {
	query := `UPDATE scheduled_sends SET status=$1, sent_at=$2, last_error='' WHERE id=$3`
	_, err := r.DB.Exec(query, model.SendSent, at.UTC(), id)
	return err
}

func (r *ScheduledSendRepository) MarkFailed(id string, reason string) error {
	query := `UPDATE scheduled_sends SET status=$1, last_error=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, model.SendFailed, reason, id)
	return err
}

// ListDue returns pending rows whose scheduled_for has passed; the dispatcher
// feeds these to the send queue.
func (r *ScheduledSendRepository) ListDue(now time.Time, limit int) ([]*model.ScheduledSend, error) {
	query := `
        SELECT ` + sendColumns + `
        FROM scheduled_sends
        WHERE status=$1 AND scheduled_for <= $2
        ORDER BY scheduled_for ASC
        LIMIT $3
    `
	return r.listSends(query, model.SendPending, now.UTC(), limit)
}

func (r *ScheduledSendRepository) listSends(query string, args ...interface{}) ([]*model.ScheduledSend, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sends := []*model.ScheduledSend{}
	for rows.Next() {
		s, err := scanSend(rows)
		if err != nil {
			return nil, err
		}
		sends = append(sends, s)
	}
	return sends, nil
}

func scanSend(row rowScanner) (*model.ScheduledSend, error) {
	var s model.ScheduledSend
	var lastError sql.NullString
	err := row.Scan(&s.ID, &s.CampaignEnrollmentID, &s.StepIndex, &s.ScheduledFor,
		&s.Status, &s.SentAt, &lastError, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.LastError = lastError.String
	s.ScheduledFor = s.ScheduledFor.UTC()
	return &s, nil
}

var _ ScheduledSendRepositoryInterface = (*ScheduledSendRepository)(nil)
