package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, getUser, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const getUser = `SELECT * FROM users WHERE id = $1`

func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, userExists, id)
	return exists, err
}

const userExists = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

func (r *Repository) IsAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	var isAdmin bool
	err := r.db.GetContext(ctx, &isAdmin, userIsAdmin, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return isAdmin, err
}

const userIsAdmin = `SELECT is_admin FROM users WHERE id = $1`

func (r *Repository) GetByAuth0ID(ctx context.Context, auth0ID string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, getUserByAuth0ID, auth0ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const getUserByAuth0ID = `SELECT * FROM users WHERE auth0_id = $1`

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, countUsers)
	return n, err
}

const countUsers = `SELECT count(*) FROM users`
