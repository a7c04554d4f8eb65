// Package mock provides a recording mock Purchaser for tests.
package mock

import (
	"context"
	"sync"

	"github.com/alfielabs/alfie-voice/internal/purchase"
)

var _ purchase.Purchaser = (*Purchaser)(nil)

// Purchaser records every Purchase call and returns a configurable error.
type Purchaser struct {
	mu sync.Mutex

	// Orders records the orders passed to Purchase, in call order.
	Orders []purchase.Order

	// Err, when non-nil, is returned by Purchase.
	Err error
}

// Purchase records the order.
func (p *Purchaser) Purchase(_ context.Context, order purchase.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Orders = append(p.Orders, order)
	return p.Err
}

// Calls returns the number of recorded Purchase calls.
func (p *Purchaser) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Orders)
}

// Reset clears recorded calls and the configured error.
func (p *Purchaser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Orders = nil
	p.Err = nil
}
