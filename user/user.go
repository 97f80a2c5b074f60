// Package user is the boundary to the user collaborator. Registration,
// authentication and password storage live elsewhere; the core only needs
// existence and admin checks.
package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID
	Auth0ID   sql.NullString `db:"auth0_id"`
	StripeID  sql.NullString `db:"stripe_id"`
	Email     string
	FullName  string `db:"full_name"`
	IsAdmin   bool   `db:"is_admin"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
