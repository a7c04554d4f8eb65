package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/client"
)

// Compile-time assertion.
var _ Purchaser = (*StripePurchaser)(nil)

// PaymentProfileLookup resolves a user to their Stripe customer and saved
// payment method, both created during onboarding outside this service.
type PaymentProfileLookup func(ctx context.Context, userID string) (customerID, paymentMethodID string, err error)

// StripePurchaser charges the annual premium as an off-session PaymentIntent.
type StripePurchaser struct {
	api     *client.API
	profile PaymentProfileLookup
	log     *slog.Logger
}

// NewStripePurchaser creates a StripePurchaser with the given API key.
func NewStripePurchaser(apiKey string, profile PaymentProfileLookup, log *slog.Logger) *StripePurchaser {
	if log == nil {
		log = slog.Default()
	}
	return &StripePurchaser{
		api:     client.New(apiKey, nil),
		profile: profile,
		log:     log,
	}
}

// Purchase confirms an off-session PaymentIntent for the order. The
// idempotency key is derived from the order fields, so a transport-level
// retry of the same confirmation can never double-charge.
func (p *StripePurchaser) Purchase(ctx context.Context, order Order) error {
	customerID, paymentMethodID, err := p.profile(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("purchase: payment profile for user %s: %w", order.UserID, err)
	}

	amountPence := int64(math.Round(order.Price * 100))
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountPence),
		Currency:      stripe.String(string(stripe.CurrencyGBP)),
		Customer:      stripe.String(customerID),
		PaymentMethod: stripe.String(paymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Description:   stripe.String(fmt.Sprintf("Car insurance policy: %s", order.InsurerName)),
	}
	params.Context = ctx
	params.AddMetadata("user_id", order.UserID)
	params.AddMetadata("vehicle_reg", order.VehicleReg)
	params.AddMetadata("insurer", order.InsurerName)
	params.SetIdempotencyKey(fmt.Sprintf(
		"policy-%s-%s-%s-%d", order.UserID, order.VehicleReg, order.InsurerName, amountPence,
	))

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return fmt.Errorf("purchase: payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		p.log.Info("payment intent confirmed",
			"payment_intent_id", pi.ID, "status", pi.Status, "amount_pence", amountPence)
		return nil
	default:
		return fmt.Errorf("purchase: payment intent %s in unexpected status %s", pi.ID, pi.Status)
	}
}
