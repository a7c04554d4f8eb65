// Package flow holds the conversation state machine that drives the
// "search quotes → select insurer → confirm → purchase" voice flow, and the
// per-conversation Session it operates on.
package flow

import (
	"time"

	"github.com/alfielabs/alfie-voice/pkg/quotes"
)

// State enumerates the stages of a purchase-oriented conversation. Exactly
// one state is active per session; transitions happen only through
// [Machine.HandleIntent].
type State int

const (
	// Idle means no flow is in progress.
	Idle State = iota

	// SearchingQuotes means a quote search is in flight.
	SearchingQuotes

	// QuotesReady means quotes are on offer and a selection is expected.
	QuotesReady

	// AwaitingConfirmation means an insurer was selected and the user must
	// confirm before purchase.
	AwaitingConfirmation

	// Purchasing means a purchase call is in flight.
	Purchasing

	// Completed means a purchase succeeded. Transient: the session resets to
	// Idle in the same turn, ready for a new cycle.
	Completed
)

// String returns the state's log name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SearchingQuotes:
		return "searching_quotes"
	case QuotesReady:
		return "quotes_ready"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Purchasing:
		return "purchasing"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Selection is the insurer the user picked from the active quote set.
type Selection struct {
	Name  string
	Price float64
}

// Session is one voice conversation. It is exclusively owned by the bridge
// that created it; all mutation happens on the bridge's serialized
// turn-handling path, so no locking is needed.
type Session struct {
	ID         string
	UserID     string
	VehicleReg string
	CreatedAt  time.Time

	State State

	// Quotes is the active quote set, pre-ranked best-first. Replaced
	// wholesale on a new search, never partially updated. Index 0 is the
	// referent for "the first one" / "the best" / "the cheapest".
	Quotes []quotes.Result

	// Selected is the chosen insurer, nil until a selection resolves.
	// Cleared on cancellation and after any terminal purchase outcome.
	Selected *Selection
}

// NewSession creates an Idle session for the given user.
func NewSession(id, userID string) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now(),
		State:     Idle,
	}
}

// InsurerNames returns the names in the active quote set, in rank order.
func (s *Session) InsurerNames() []string {
	names := make([]string, len(s.Quotes))
	for i, q := range s.Quotes {
		names[i] = q.InsurerName
	}
	return names
}
