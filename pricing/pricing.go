// Package pricing holds fare rules and computes trip cost.
package pricing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cents is an exact monetary amount. All fare arithmetic happens in integer
// cents; the two-fractional-digit decimal form only exists at the API
// boundary.
type Cents int64

func (c Cents) String() string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseCents parses a decimal amount like "2.50" or "3" into cents without
// going through floating point. At most two fractional digits are accepted.
func ParseCents(s string) (Cents, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	// ParseUint keeps signs and other non-digits out of either part, so a
	// stray "-" or "+" after the decimal point errors instead of skewing the
	// amount.
	units, err := strconv.ParseUint(whole, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	hundredths, err := strconv.ParseUint(frac, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	c := Cents(units*100 + hundredths)
	if neg {
		c = -c
	}
	return c, nil
}

// Rule is a fare rule. At most one rule is active at a time; the resolver
// picks the most recently created when several are flagged active.
type Rule struct {
	ID             uuid.UUID
	BasePrice      Cents     `db:"base_price_cents"`
	PricePerMinute Cents     `db:"price_per_minute_cents"`
	IsActive       bool      `db:"is_active"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Fare computes base price plus the per-minute rate over the ride duration.
// Negative durations are clamped to zero extra minutes.
func (r Rule) Fare(durationMinutes int) Cents {
	if durationMinutes < 0 {
		durationMinutes = 0
	}
	return r.BasePrice + r.PricePerMinute*Cents(durationMinutes)
}
