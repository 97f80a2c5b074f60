package ride

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/voltride/fleetengine-backend/pricing"
	"github.com/voltride/fleetengine-backend/scooter"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Ride is one trip by one user on one scooter. User and scooter references
// are immutable once created; completion fields stay null until the ride
// reaches a terminal state.
type Ride struct {
	ID              uuid.UUID           `db:"id"`
	UserID          uuid.UUID           `db:"user_id"`
	ScooterID       uuid.UUID           `db:"scooter_id"`
	Status          Status              `db:"status"`
	StartLatitude   scooter.Coordinate  `db:"start_latitude"`
	StartLongitude  scooter.Coordinate  `db:"start_longitude"`
	EndLatitude     *scooter.Coordinate `db:"end_latitude"`
	EndLongitude    *scooter.Coordinate `db:"end_longitude"`
	DistanceKm      *float64            `db:"distance_km"`
	DurationMinutes *int                `db:"duration_minutes"`
	TotalCost       *pricing.Cents      `db:"total_cost_cents"`
	StartedAt       time.Time           `db:"started_at"`
	EndedAt         sql.NullTime        `db:"ended_at"`
	CreatedAt       time.Time           `db:"created_at"`
}

// Completion carries everything a ride needs to move from active to
// completed.
type Completion struct {
	EndLatitude     scooter.Coordinate
	EndLongitude    scooter.Coordinate
	DistanceKm      float64
	DurationMinutes int
	TotalCost       pricing.Cents
}
