package payment

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/voltride/fleetengine-backend/pricing"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// SumCompleted totals payments in completed status, optionally only those
// created at or after since. Pending, failed and refunded payments never
// count towards revenue.
func (r *Repository) SumCompleted(ctx context.Context, since *time.Time) (pricing.Cents, error) {
	var total pricing.Cents
	if since != nil {
		err := r.db.GetContext(ctx, &total, sumCompletedSince, *since)
		return total, err
	}
	err := r.db.GetContext(ctx, &total, sumCompleted)
	return total, err
}

const sumCompleted = `SELECT COALESCE(sum(amount_cents), 0)::bigint FROM payments WHERE status = 'completed'`

const sumCompletedSince = `
SELECT COALESCE(sum(amount_cents), 0)::bigint FROM payments
WHERE status = 'completed' AND created_at >= $1
`
