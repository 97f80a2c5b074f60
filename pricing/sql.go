package pricing

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNoActivePricing = errors.New("no active pricing configured")
	ErrInvalidPrice    = errors.New("prices must be positive")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ActiveRule resolves the single fare rule in force. If several rows are
// flagged active the most recently created wins, ties broken by id.
func (r *Repository) ActiveRule(ctx context.Context) (Rule, error) {
	var rule Rule
	err := r.db.GetContext(ctx, &rule, activeRule)
	if errors.Is(err, sql.ErrNoRows) {
		return rule, ErrNoActivePricing
	}
	return rule, err
}

const activeRule = `
SELECT * FROM pricing
WHERE is_active = true
ORDER BY created_at DESC, id DESC
LIMIT 1
`

// Create activates a new fare rule, retiring whatever was active before in
// the same transaction.
func (r *Repository) Create(ctx context.Context, basePrice, pricePerMinute Cents) (Rule, error) {
	if basePrice <= 0 || pricePerMinute <= 0 {
		return Rule{}, ErrInvalidPrice
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Rule{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deactivateRules); err != nil {
		return Rule{}, err
	}

	var rule Rule
	err = tx.GetContext(ctx, &rule, createRule, uuid.New(), basePrice, pricePerMinute)
	if err != nil {
		return Rule{}, err
	}

	return rule, tx.Commit()
}

const deactivateRules = `UPDATE pricing SET is_active = false, updated_at = now() WHERE is_active = true`

const createRule = `
INSERT INTO pricing (id, base_price_cents, price_per_minute_cents, is_active)
VALUES ($1, $2, $3, true)
RETURNING *
`
