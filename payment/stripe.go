package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/invoice"

	"github.com/voltride/fleetengine-backend/pricing"
)

// Biller invoices a finished ride for the fare recorded on it. Invoicing is
// best-effort and happens off the ride-end path; a billing failure never
// un-completes a ride.
type Biller interface {
	InvoiceRide(ctx context.Context, stripeCustomerID string, total pricing.Cents, durationMinutes int) error
}

// StripeBiller issues a Stripe invoice for a completed ride.
type StripeBiller struct {
	logger *slog.Logger
}

func NewStripeBiller(apiKey string, logger *slog.Logger) *StripeBiller {
	stripe.Key = apiKey
	return &StripeBiller{logger: logger}
}

func (b *StripeBiller) InvoiceRide(ctx context.Context, stripeCustomerID string, total pricing.Cents, durationMinutes int) error {
	in, err := invoice.New(&stripe.InvoiceParams{
		Customer: stripe.String(stripeCustomerID),
	})
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}

	_, err = invoice.AddLines(in.ID, &stripe.InvoiceAddLinesParams{
		Lines: []*stripe.InvoiceAddLinesLineParams{
			{
				Amount:      stripe.Int64(int64(total)),
				Description: stripe.String(fmt.Sprintf("Ride - %d minutes", durationMinutes)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add invoice lines: %w", err)
	}

	if _, err := invoice.FinalizeInvoice(in.ID, &stripe.InvoiceFinalizeInvoiceParams{}); err != nil {
		return fmt.Errorf("finalize invoice: %w", err)
	}
	if _, err := invoice.Pay(in.ID, nil); err != nil {
		return fmt.Errorf("pay invoice: %w", err)
	}

	b.logger.Info("ride invoiced", "stripeCustomerId", stripeCustomerID, "invoiceId", in.ID)
	return nil
}
