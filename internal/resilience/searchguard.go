package resilience

import (
	"context"

	"github.com/alfielabs/alfie-voice/pkg/quotes"
)

// Compile-time assertion.
var _ quotes.Searcher = (*SearchGuard)(nil)

// SearchGuard wraps a quote searcher with a circuit breaker. When the quote
// aggregator fails repeatedly, searches short-circuit with [ErrOpen] instead
// of holding a live voice turn for the full HTTP timeout.
type SearchGuard struct {
	inner   quotes.Searcher
	breaker *Breaker
}

// NewSearchGuard wraps inner with a breaker. A zero cfg gets the [Breaker]
// defaults and the name "quote-service".
func NewSearchGuard(inner quotes.Searcher, cfg BreakerConfig) *SearchGuard {
	if cfg.Name == "" {
		cfg.Name = "quote-service"
	}
	return &SearchGuard{
		inner:   inner,
		breaker: NewBreaker(cfg),
	}
}

// Search forwards to the wrapped searcher under breaker control.
func (g *SearchGuard) Search(ctx context.Context, policyContext string) ([]quotes.Result, error) {
	var results []quotes.Result
	err := g.breaker.Do(func() error {
		var searchErr error
		results, searchErr = g.inner.Search(ctx, policyContext)
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// State exposes the breaker state for readiness reporting.
func (g *SearchGuard) State() State {
	return g.breaker.State()
}
