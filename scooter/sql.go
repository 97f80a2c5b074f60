package scooter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound       = errors.New("scooter not found")
	ErrNotAvailable   = errors.New("scooter not available")
	ErrInvalidBattery = errors.New("battery level must be between 0 and 100")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Scooter, error) {
	var sc Scooter
	err := r.db.GetContext(ctx, &sc, getScooter, id)
	if errors.Is(err, sql.ErrNoRows) {
		return sc, ErrNotFound
	}
	return sc, err
}

const getScooter = `SELECT * FROM scooters WHERE id = $1`

func (r *Repository) GetBySerial(ctx context.Context, serial string) (Scooter, error) {
	var sc Scooter
	err := r.db.GetContext(ctx, &sc, getScooterBySerial, serial)
	if errors.Is(err, sql.ErrNoRows) {
		return sc, ErrNotFound
	}
	return sc, err
}

const getScooterBySerial = `SELECT * FROM scooters WHERE serial_number = $1`

// List returns the whole fleet, or only scooters ready to be ridden when
// onlyAvailable is set.
func (r *Repository) List(ctx context.Context, onlyAvailable bool) ([]Scooter, error) {
	var scooters []Scooter
	if onlyAvailable {
		err := r.db.SelectContext(ctx, &scooters, listAvailableScooters)
		return scooters, err
	}
	err := r.db.SelectContext(ctx, &scooters, listScooters)
	return scooters, err
}

const listScooters = `SELECT * FROM scooters ORDER BY serial_number`
const listAvailableScooters = `SELECT * FROM scooters WHERE status = 'available' AND battery_level > 0 ORDER BY serial_number`

// Create onboards a new scooter into the fleet.
func (r *Repository) Create(ctx context.Context, sc *Scooter) error {
	if sc.BatteryLevel < 0 || sc.BatteryLevel > 100 {
		return ErrInvalidBattery
	}
	return r.db.GetContext(ctx, sc, createScooter,
		sc.ID, sc.SerialNumber, sc.BatteryLevel, sc.Latitude, sc.Longitude)
}

const createScooter = `
INSERT INTO scooters (id, serial_number, status, battery_level, latitude, longitude, is_locked)
VALUES ($1, $2, 'available', $3, $4, $5, true)
RETURNING *
`

// TryReserve claims an available scooter for a ride start. The conditional
// update makes the claim atomic: of any number of racing callers exactly one
// observes an affected row, the rest get ErrNotAvailable. The scooter stays
// locked until CommitInUse confirms the hardware unlocked.
func (r *Repository) TryReserve(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, tryReserve, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var status Status
	err = r.db.GetContext(ctx, &status, getScooterStatus, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: status is %s", ErrNotAvailable, status)
}

const tryReserve = `UPDATE scooters SET status = 'in_use', updated_at = now() WHERE id = $1 AND status = 'available'`
const getScooterStatus = `SELECT status FROM scooters WHERE id = $1`

// CommitInUse finalizes a reservation after the device acknowledged the
// unlock. Only valid after TryReserve succeeded.
func (r *Repository) CommitInUse(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, commitInUse, id)
	return err
}

const commitInUse = `UPDATE scooters SET status = 'in_use', is_locked = false, updated_at = now() WHERE id = $1`

// Release returns a scooter to the available pool, both on normal ride end
// and when rolling back a failed start.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, releaseScooter, id)
	return err
}

const releaseScooter = `UPDATE scooters SET status = 'available', is_locked = true, updated_at = now() WHERE id = $1`

// SetLocked reconciles the registry with a positively acknowledged device
// command. It never changes status.
func (r *Repository) SetLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	_, err := r.db.ExecContext(ctx, setLocked, locked, id)
	return err
}

const setLocked = `UPDATE scooters SET is_locked = $1, updated_at = now() WHERE id = $2`

// UpdateTelemetry ingests a location/battery report from the device. Always
// permitted regardless of status.
func (r *Repository) UpdateTelemetry(ctx context.Context, id uuid.UUID, lat, lon Coordinate, battery int) (Scooter, error) {
	if battery < 0 || battery > 100 {
		return Scooter{}, ErrInvalidBattery
	}

	var sc Scooter
	err := r.db.GetContext(ctx, &sc, updateTelemetry, lat, lon, battery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return sc, ErrNotFound
	}
	return sc, err
}

const updateTelemetry = `
UPDATE scooters
SET latitude = $1, longitude = $2, battery_level = $3, last_ping = now(), updated_at = now()
WHERE id = $4
RETURNING *
`
