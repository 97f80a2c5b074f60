package ride

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound          = errors.New("ride not found")
	ErrNotActive         = errors.New("ride is not active")
	ErrUserAlreadyRiding = errors.New("user already has an active ride")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, getByID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNotFound
	}
	return ride, err
}

const getByID = `SELECT * FROM rides WHERE id = $1`

func (r *Repository) HasActiveForUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, hasActiveForUser, userID)
	return exists, err
}

const hasActiveForUser = `SELECT EXISTS (SELECT 1 FROM rides WHERE user_id = $1 AND status = 'active')`

// CreateActive persists a new active ride. The transaction re-checks the
// one-active-ride-per-user invariant under FOR UPDATE; the partial unique
// indexes on rides back the same invariant at the storage layer.
func (r *Repository) CreateActive(ctx context.Context, ride *Ride) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var activeIDs []uuid.UUID
	err = tx.SelectContext(ctx, &activeIDs, activeRidesForUpdate, ride.UserID)
	if err != nil {
		return err
	}
	if len(activeIDs) > 0 {
		return ErrUserAlreadyRiding
	}

	err = tx.GetContext(ctx, ride, createActive,
		ride.ID, ride.UserID, ride.ScooterID, ride.StartLatitude, ride.StartLongitude)
	if err != nil {
		return err
	}

	return tx.Commit()
}

const activeRidesForUpdate = `SELECT id FROM rides WHERE user_id = $1 AND status = 'active' FOR UPDATE`

const createActive = `
INSERT INTO rides (id, user_id, scooter_id, status, start_latitude, start_longitude, started_at)
VALUES ($1, $2, $3, 'active', $4, $5, now())
RETURNING *
`

// Complete moves an active ride to completed. The status guard in the WHERE
// clause makes a second completion (or completing a cancelled ride) observe
// ErrNotActive without touching the row.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, p Completion) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, completeRide,
		p.EndLatitude, p.EndLongitude, p.DistanceKm, p.DurationMinutes, p.TotalCost, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNotActive
	}
	return ride, err
}

const completeRide = `
UPDATE rides
SET status = 'completed',
    end_latitude = $1,
    end_longitude = $2,
    distance_km = $3,
    duration_minutes = $4,
    total_cost_cents = $5,
    ended_at = now()
WHERE id = $6 AND status = 'active'
RETURNING *
`

// Cancel aborts an active ride without fare computation.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, cancelRide, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNotActive
	}
	return ride, err
}

const cancelRide = `
UPDATE rides
SET status = 'cancelled', ended_at = now()
WHERE id = $1 AND status = 'active'
RETURNING *
`

// GetByUserID returns a user's ride history, most recent first.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]Ride, error) {
	var rides []Ride
	err := r.db.SelectContext(ctx, &rides, getByUserID, userID)
	return rides, err
}

const getByUserID = `SELECT * FROM rides WHERE user_id = $1 ORDER BY started_at DESC`
