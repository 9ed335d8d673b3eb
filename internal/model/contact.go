// internal/model/contact.go
package model

type Contact struct {
	ID        int    `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"user_id"`
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}
