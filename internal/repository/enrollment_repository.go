package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
)

type EnrollmentRepositoryInterface interface {
	Create(e *model.Enrollment) error
	GetByID(id string) (*model.Enrollment, error)
	ListByTuple(campaignID, contactID int, userID string) ([]*model.Enrollment, error)
	ListByCampaign(campaignID int, userID string) ([]*model.Enrollment, error)
	ListByContact(contactID int, userID string) ([]*model.Enrollment, error)
	Update(e *model.Enrollment) error
	CompleteAllNonCompleted(campaignID, contactID int, userID string) (int, error)
	Delete(id string) error
	StatusCounts(campaignID int, userID string) (map[string]int, error)
}

type EnrollmentRepository struct {
	DB *sql.DB
}

const enrollmentColumns = `id, campaign_id, contact_id, user_id, status, current_step,
        next_send, step_delays, initial_delay, created_at, completed_at, withdrawn_at`

// Create inserts a new enrollment document. Re-enrollment always goes through
// here: history is preserved as separate rows, never flipped in place.
func (r *EnrollmentRepository) Create(e *model.Enrollment) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.EnrollmentActive
	}
	e.CreatedAt = time.Now()

	stepDelays, err := marshalNullable(e.StepDelays)
	if err != nil {
		return err
	}
	initialDelay, err := marshalNullable(e.InitialDelay)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO campaign_enrollments
        (id, campaign_id, contact_id, user_id, status, current_step, next_send, step_delays, initial_delay, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err = r.DB.Exec(query,
		e.ID, e.CampaignID, e.ContactID, e.UserID, e.Status, e.CurrentStep,
		e.NextSend, stepDelays, initialDelay, e.CreatedAt,
	)
	return err
}

func (r *EnrollmentRepository) GetByID(id string) (*model.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM campaign_enrollments WHERE id=$1`
	e, err := scanEnrollment(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// ListByTuple returns every enrollment for (campaign, contact, user), newest
// first. The re-enroll decision walks this history.
func (r *EnrollmentRepository) ListByTuple(campaignID, contactID int, userID string) ([]*model.Enrollment, error) {
	query := `
        SELECT ` + enrollmentColumns + `
        FROM campaign_enrollments
        WHERE campaign_id=$1 AND contact_id=$2 AND user_id=$3
        ORDER BY created_at DESC
    `
	return r.list(query, campaignID, contactID, userID)
}

func (r *EnrollmentRepository) ListByCampaign(campaignID int, userID string) ([]*model.Enrollment, error) {
	query := `
        SELECT ` + enrollmentColumns + `
        FROM campaign_enrollments
        WHERE campaign_id=$1 AND user_id=$2
        ORDER BY created_at DESC
    `
	return r.list(query, campaignID, userID)
}

func (r *EnrollmentRepository) ListByContact(contactID int, userID string) ([]*model.Enrollment, error) {
	query := `
        SELECT ` + enrollmentColumns + `
        FROM campaign_enrollments
        WHERE contact_id=$1 AND user_id=$2
        ORDER BY created_at DESC
    `
	return r.list(query, contactID, userID)
}

// Update writes every mutable field back.
func (r *EnrollmentRepository) Update(e *model.Enrollment) error {
	stepDelays, err := marshalNullable(e.StepDelays)
	if err != nil {
		return err
	}
	initialDelay, err := marshalNullable(e.InitialDelay)
	if err != nil {
		return err
	}
	query := `
        UPDATE campaign_enrollments
        SET status=$1, current_step=$2, next_send=$3, step_delays=$4, initial_delay=$5,
            completed_at=$6, withdrawn_at=$7
        WHERE id=$8
    `
	_, err = r.DB.Exec(query, e.Status, e.CurrentStep, e.NextSend, stepDelays, initialDelay,
		e.CompletedAt, e.WithdrawnAt, e.ID)
	return err
}

// CompleteAllNonCompleted marks every non-completed enrollment for the tuple
// as completed. Runs before a resume/restart creates the replacement row.
func (r *EnrollmentRepository) CompleteAllNonCompleted(campaignID, contactID int, userID string) (int, error) {
	query := `
        UPDATE campaign_enrollments
        SET status=$1, completed_at=NOW()
        WHERE campaign_id=$2 AND contact_id=$3 AND user_id=$4 AND status != $1
    `
	res, err := r.DB.Exec(query, model.EnrollmentCompleted, campaignID, contactID, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *EnrollmentRepository) Delete(id string) error {
	_, err := r.DB.Exec(`DELETE FROM campaign_enrollments WHERE id=$1`, id)
	return err
}

// StatusCounts aggregates enrollment statuses for a campaign.
func (r *EnrollmentRepository) StatusCounts(campaignID int, userID string) (map[string]int, error) {
	query := `
        SELECT status, COUNT(*)
        FROM campaign_enrollments
        WHERE campaign_id=$1 AND user_id=$2
        GROUP BY status
    `
	rows, err := r.DB.Query(query, campaignID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{
		model.EnrollmentActive:    0,
		model.EnrollmentQueued:    0,
		model.EnrollmentPaused:    0,
		model.EnrollmentWithdrawn: 0,
		model.EnrollmentCompleted: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, nil
}

func (r *EnrollmentRepository) list(query string, args ...interface{}) ([]*model.Enrollment, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enrollments := []*model.Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEnrollment(row rowScanner) (*model.Enrollment, error) {
	var e model.Enrollment
	var stepDelays, initialDelay []byte
	err := row.Scan(
		&e.ID, &e.CampaignID, &e.ContactID, &e.UserID, &e.Status, &e.CurrentStep,
		&e.NextSend, &stepDelays, &initialDelay, &e.CreatedAt, &e.CompletedAt, &e.WithdrawnAt,
	)
	if err != nil {
		return nil, err
	}
	if len(stepDelays) > 0 {
		if err := json.Unmarshal(stepDelays, &e.StepDelays); err != nil {
			return nil, err
		}
	}
	if len(initialDelay) > 0 {
		if err := json.Unmarshal(initialDelay, &e.InitialDelay); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func marshalNullable(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []model.DelaySpec:
		if t == nil {
			return nil, nil
		}
	case *model.DelaySpec:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

var _ EnrollmentRepositoryInterface = (*EnrollmentRepository)(nil)
