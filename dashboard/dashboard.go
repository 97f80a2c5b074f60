// Package dashboard computes fleet utilization and revenue snapshots across
// the other components' state.
package dashboard

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/voltride/fleetengine-backend/pricing"
)

type Metrics struct {
	TotalUsers        int           `json:"totalUsers"`
	ActiveRides       int           `json:"activeRides"`
	TotalScooters     int           `json:"totalScooters"`
	AvailableScooters int           `json:"availableScooters"`
	TotalRevenue      pricing.Cents `json:"totalRevenue"`
	RidesToday        int           `json:"ridesToday"`
	RevenueToday      pricing.Cents `json:"revenueToday"`
}

// PaymentSource is the external payment collaborator's completed-payment
// sum; revenue figures come exclusively from it.
type PaymentSource interface {
	SumCompleted(ctx context.Context, since *time.Time) (pricing.Cents, error)
}

type Aggregator struct {
	db       *sqlx.DB
	payments PaymentSource
}

func NewAggregator(db *sqlx.DB, payments PaymentSource) *Aggregator {
	return &Aggregator{db: db, payments: payments}
}

// Snapshot counts fleet and ride state and sums revenue. "Today" starts at
// midnight server-local time.
func (a *Aggregator) Snapshot(ctx context.Context) (Metrics, error) {
	var m Metrics

	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if err := a.db.GetContext(ctx, &m.TotalUsers, countUsers); err != nil {
		return Metrics{}, err
	}
	if err := a.db.GetContext(ctx, &m.ActiveRides, countActiveRides); err != nil {
		return Metrics{}, err
	}
	if err := a.db.GetContext(ctx, &m.TotalScooters, countScooters); err != nil {
		return Metrics{}, err
	}
	if err := a.db.GetContext(ctx, &m.AvailableScooters, countAvailableScooters); err != nil {
		return Metrics{}, err
	}
	if err := a.db.GetContext(ctx, &m.RidesToday, countRidesSince, startOfDay); err != nil {
		return Metrics{}, err
	}

	total, err := a.payments.SumCompleted(ctx, nil)
	if err != nil {
		return Metrics{}, err
	}
	m.TotalRevenue = total

	today, err := a.payments.SumCompleted(ctx, &startOfDay)
	if err != nil {
		return Metrics{}, err
	}
	m.RevenueToday = today

	return m, nil
}

const countUsers = `SELECT count(*) FROM users`
const countActiveRides = `SELECT count(*) FROM rides WHERE status = 'active'`
const countScooters = `SELECT count(*) FROM scooters`
const countAvailableScooters = `SELECT count(*) FROM scooters WHERE status = 'available'`
const countRidesSince = `SELECT count(*) FROM rides WHERE created_at >= $1`
