package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	appErrors "github.com/mcardwell78/RBAconnector-sub000/internal/errors"
	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
)

// CampaignRepositoryInterface exposes the campaign definition store. The
// enrollment core treats campaigns as read-only apart from Create (seeder,
// tests) and Delete (cascades to enrollments and sends).
type CampaignRepositoryInterface interface {
	GetByID(id int) (*model.Campaign, error)
	ListByUser(userID string) ([]*model.Campaign, error)
	Create(c *model.Campaign) error
	Delete(id int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = "draft"
	}
	steps, err := json.Marshal(c.Steps)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (user_id, name, status, steps, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	return r.DB.QueryRow(query, c.UserID, c.Name, c.Status, steps, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `
        SELECT id, user_id, name, status, steps, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	var steps []byte
	err := r.DB.QueryRow(query, id).Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &steps, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	if err := json.Unmarshal(steps, &c.Steps); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListByUser(userID string) ([]*model.Campaign, error) {
	query := `
        SELECT id, user_id, name, status, steps, created_at, updated_at
        FROM campaigns WHERE user_id=$1 ORDER BY id DESC
    `
	rows, err := r.DB.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		var steps []byte
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &steps, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(steps, &c.Steps); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}

// Delete removes a campaign. Enrollments and scheduled sends go with it via
// ON DELETE CASCADE; this is the only path that physically deletes history.
func (r *CampaignRepository) Delete(id int) error {
	_, err := r.DB.Exec(`DELETE FROM campaigns WHERE id=$1`, id)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
