// Package purchase defines the purchase collaborator: the component that
// turns a confirmed insurer selection into a payment.
package purchase

import "context"

// Order describes one confirmed purchase.
type Order struct {
	UserID      string
	VehicleReg  string
	InsurerName string

	// Price is the annual premium in GBP.
	Price float64
}

// Purchaser executes orders. The orchestrator calls Purchase at most once per
// confirmed selection; implementations own idempotency beyond that (safe
// retries on transport errors, duplicate suppression).
type Purchaser interface {
	Purchase(ctx context.Context, order Order) error
}
