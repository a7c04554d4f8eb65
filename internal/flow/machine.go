package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alfielabs/alfie-voice/internal/insurer"
	"github.com/alfielabs/alfie-voice/internal/intent"
	"github.com/alfielabs/alfie-voice/internal/observe"
	"github.com/alfielabs/alfie-voice/internal/purchase"
	"github.com/alfielabs/alfie-voice/pkg/quotes"
)

// Speaker delivers a flow-owned spoken reply. The bridge implements it by
// acquiring response ownership and pushing the text upstream for synthesis.
type Speaker interface {
	Speak(text string) error
}

// Outcome reports whether the machine handled an intent.
type Outcome int

const (
	// NotHandled means the (state, intent) pair has no transition; control
	// returns to the caller, which may let the upstream model reply on its
	// own or emit a fixed guidance reply.
	NotHandled Outcome = iota

	// Handled means the machine transitioned and spoke.
	Handled
)

// Option is a functional option for configuring a Machine.
type Option func(*Machine)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// WithStrictGuidance makes the machine answer unmatched intents with a fixed
// guidance reply instead of reporting NotHandled. Off by default: general
// chat is normally delegated to the upstream model.
func WithStrictGuidance() Option {
	return func(m *Machine) { m.strictGuidance = true }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

// Machine executes the conversation flow transitions. It is stateless apart
// from its collaborators; all conversation state lives on the Session.
//
// HandleIntent is synchronous: the quote-search and purchase collaborator
// calls complete within the turn, which is what serializes intent handling —
// the bridge processes one finalized utterance at a time, so no second intent
// can interleave with an in-flight collaborator call.
type Machine struct {
	searcher  quotes.Searcher
	purchaser purchase.Purchaser
	matcher   *insurer.Matcher

	strictGuidance bool
	metrics        *observe.Metrics
	log            *slog.Logger
}

// NewMachine creates a Machine with the given collaborators.
func NewMachine(searcher quotes.Searcher, purchaser purchase.Purchaser, matcher *insurer.Matcher, opts ...Option) *Machine {
	m := &Machine{
		searcher:  searcher,
		purchaser: purchaser,
		matcher:   matcher,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// HandleIntent applies one classified intent to the session. Only the
// transitions enumerated below mutate state; every other (state, intent)
// pair is a no-op returning NotHandled. Errors from collaborators never
// escape: they resolve to a state transition plus a spoken apology.
func (m *Machine) HandleIntent(ctx context.Context, s *Session, it intent.Intent, speak Speaker) Outcome {
	switch {
	case s.State == Idle && it.Kind == intent.QuoteSearch:
		m.searchQuotes(ctx, s, speak)
		return Handled

	case s.State == QuotesReady && it.Kind == intent.InsurerSelection:
		m.selectInsurer(s, it, speak)
		return Handled

	case s.State == AwaitingConfirmation && it.Kind == intent.Confirmation:
		m.purchaseSelected(ctx, s, speak)
		return Handled

	case s.State == AwaitingConfirmation && it.Kind == intent.Cancellation:
		s.Selected = nil
		s.State = QuotesReady
		m.speak(speak, replyCancelled)
		return Handled
	}

	if m.strictGuidance {
		m.speak(speak, replyGuidance)
		return Handled
	}
	return NotHandled
}

// searchQuotes acknowledges, runs the search, and lands in QuotesReady or
// back in Idle.
func (m *Machine) searchQuotes(ctx context.Context, s *Session, speak Speaker) {
	s.State = SearchingQuotes
	m.speak(speak, replySearching)

	results, err := m.searcher.Search(ctx, s.policyContext())
	if err != nil || len(results) == 0 {
		status := "empty"
		if err != nil {
			status = "error"
			m.log.Warn("quote search failed", "session_id", s.ID, "error", err)
		}
		observe.RecordStatus(ctx, m.metrics.QuoteSearches, status)
		s.State = Idle
		s.Quotes = nil
		m.speak(speak, replyNoQuotes)
		return
	}
	observe.RecordStatus(ctx, m.metrics.QuoteSearches, "ok")

	s.Quotes = results
	s.Selected = nil
	s.State = QuotesReady
	m.speak(speak, replyQuotesFound(results))
	m.log.Info("quotes ready", "session_id", s.ID, "count", len(results))
}

// selectInsurer resolves the referent against the active quote set.
func (m *Machine) selectInsurer(s *Session, it intent.Intent, speak Speaker) {
	q, ok := m.resolveSelection(s, it)
	if !ok {
		m.speak(speak, replySelectionReprompt)
		return
	}

	s.Selected = &Selection{Name: q.InsurerName, Price: q.AnnualCost}
	s.State = AwaitingConfirmation
	m.speak(speak, replyConfirmPrompt(q.InsurerName, q.AnnualCost))
	m.log.Info("insurer selected", "session_id", s.ID, "insurer", q.InsurerName)
}

// purchaseSelected runs the purchase collaborator exactly once for this
// confirmation. Success resets the session to Idle for a fresh cycle;
// failure returns to QuotesReady with the selection cleared, so a second
// attempt needs a new selection and confirmation.
func (m *Machine) purchaseSelected(ctx context.Context, s *Session, speak Speaker) {
	sel := s.Selected
	if sel == nil {
		s.State = QuotesReady
		m.speak(speak, replySelectionReprompt)
		return
	}

	s.State = Purchasing
	m.speak(speak, replyPurchasing(sel.Name))

	err := m.purchaser.Purchase(ctx, purchase.Order{
		UserID:      s.UserID,
		VehicleReg:  s.VehicleReg,
		InsurerName: sel.Name,
		Price:       sel.Price,
	})
	if err != nil {
		observe.RecordStatus(ctx, m.metrics.Purchases, "error")
		m.log.Warn("purchase failed", "session_id", s.ID, "insurer", sel.Name, "error", err)
		s.State = QuotesReady
		s.Selected = nil
		m.speak(speak, replyPurchaseFailed)
		return
	}
	observe.RecordStatus(ctx, m.metrics.Purchases, "ok")

	s.State = Completed
	m.speak(speak, replyPurchaseDone(sel.Name))
	m.log.Info("purchase completed", "session_id", s.ID, "insurer", sel.Name, "price", sel.Price)

	// Completed is transient: reset for a new cycle.
	s.State = Idle
	s.Quotes = nil
	s.Selected = nil
}

// resolveSelection maps the intent to one quote: positional terms by index
// (the set is pre-ranked, so first/best/cheapest all mean index 0), names by
// phonetic-tolerant matching against the quote set.
func (m *Machine) resolveSelection(s *Session, it intent.Intent) (quotes.Result, bool) {
	if len(s.Quotes) == 0 {
		return quotes.Result{}, false
	}

	if it.InsurerHint != "" {
		if q, ok := findQuote(s.Quotes, it.InsurerHint); ok {
			return q, true
		}
	}

	if name, _, ok := m.matcher.Resolve(it.RawText, s.InsurerNames()); ok {
		if q, ok := findQuote(s.Quotes, name); ok {
			return q, true
		}
	}

	if idx, ok := positionalIndex(it.RawText); ok && idx < len(s.Quotes) {
		return s.Quotes[idx], true
	}

	return quotes.Result{}, false
}

// positionalIndex maps positional language to a quote index. Terms match on
// word boundaries, so "top" never fires inside "stop".
func positionalIndex(raw string) (int, bool) {
	lower := strings.ToLower(raw)
	switch {
	case intent.ContainsAnyPhrase(lower, "second", "number two"):
		return 1, true
	case intent.ContainsAnyPhrase(lower, "third", "number three"):
		return 2, true
	case intent.ContainsAnyPhrase(lower, "first", "best", "cheapest", "top", "that one", "this one", "number one"):
		return 0, true
	}
	return 0, false
}

// findQuote matches a name against the quote set with case-insensitive
// substring containment in both directions, tolerating partial hearing.
func findQuote(qs []quotes.Result, name string) (quotes.Result, bool) {
	nl := strings.ToLower(strings.TrimSpace(name))
	if nl == "" {
		return quotes.Result{}, false
	}
	for _, q := range qs {
		ql := strings.ToLower(q.InsurerName)
		if strings.Contains(ql, nl) || strings.Contains(nl, ql) {
			return q, true
		}
	}
	return quotes.Result{}, false
}

// policyContext is the search input derived from the session.
func (s *Session) policyContext() string {
	var b strings.Builder
	b.WriteString("car insurance")
	if s.VehicleReg != "" {
		b.WriteString(", vehicle registration ")
		b.WriteString(s.VehicleReg)
	}
	return b.String()
}

// speak pushes a reply and logs delivery failures; a failed speak never
// aborts a transition.
func (m *Machine) speak(speak Speaker, text string) {
	if err := speak.Speak(text); err != nil {
		m.log.Warn("failed to deliver reply", "error", err)
	}
}
