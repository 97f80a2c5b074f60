// Package payment is the boundary to the payment collaborator. Card
// tokenization and charge creation are external; the core reads completed
// payment sums and hands completed rides off for invoicing.
package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/voltride/fleetengine-backend/pricing"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

type Payment struct {
	ID        uuid.UUID     `db:"id"`
	RideID    uuid.UUID     `db:"ride_id"`
	UserID    uuid.UUID     `db:"user_id"`
	Amount    pricing.Cents `db:"amount_cents"`
	Status    Status        `db:"status"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}
