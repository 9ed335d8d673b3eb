package repository

import (
	"database/sql"

	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
)

// ContactRepositoryInterface defines methods used by services
type ContactRepositoryInterface interface {
	GetByID(id int) (*model.Contact, error)
	ListByUser(userID string) ([]model.Contact, error)
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

// GetByID fetches a contact by ID
func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `
        SELECT id, user_id, email, first_name, last_name
        FROM contacts
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var c model.Contact
	if err := row.Scan(&c.ID, &c.UserID, &c.Email, &c.FirstName, &c.LastName); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

// ListByUser fetches all contacts owned by a user
func (r *ContactRepository) ListByUser(userID string) ([]model.Contact, error) {
	query := `
        SELECT id, user_id, email, first_name, last_name
        FROM contacts
        WHERE user_id = $1
        ORDER BY id
    `
	rows, err := r.DB.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Email, &c.FirstName, &c.LastName); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
