// Package scooter is the fleet registry: it owns scooter identity and all
// mutable scooter state (status, lock, battery, location).
package scooter

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Status int

const (
	Available Status = iota
	InUse
	Maintenance
	Charging
)

func (s Status) String() string {
	return [...]string{"available", "in_use", "maintenance", "charging"}[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) Scan(i any) error {
	var v string
	switch t := i.(type) {
	case string:
		v = t
	case []byte:
		v = string(t)
	default:
		return fmt.Errorf("cannot scan %T into scooter.Status", i)
	}

	switch v {
	case "available":
		*s = Available
	case "in_use":
		*s = InUse
	case "maintenance":
		*s = Maintenance
	case "charging":
		*s = Charging
	default:
		return fmt.Errorf("unknown scooter status %q", v)
	}
	return nil
}

func (s Status) Value() (driver.Value, error) {
	return s.String(), nil
}

// Coordinate is a signed decimal degree. It is stored as numeric(10,7) and
// serialized with seven fractional digits.
type Coordinate float64

func (c Coordinate) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(c), 'f', 7, 64)), nil
}

// Scooter is a single vehicle in the fleet. SerialNumber is the immutable
// physical identity printed on the device; ID is the internal identifier.
type Scooter struct {
	ID           uuid.UUID
	SerialNumber string `db:"serial_number"`
	Status       Status
	BatteryLevel int `db:"battery_level"`
	Latitude     Coordinate
	Longitude    Coordinate
	IsLocked     bool      `db:"is_locked"`
	LastPing     time.Time `db:"last_ping"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
