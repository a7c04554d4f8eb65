// Package intent classifies finalized user utterances into the closed set of
// conversation intents that drive the purchase flow.
//
// Classification has two paths. The primary path asks a remote text model,
// bounded by a hard per-attempt timeout with a single jittered retry. When
// both attempts fail, time out, or return an unparseable label, the
// deterministic keyword fallback takes over. Classify therefore never returns
// an error: every utterance resolves to some intent.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/alfielabs/alfie-voice/internal/insurer"
	"github.com/alfielabs/alfie-voice/internal/observe"
	"github.com/alfielabs/alfie-voice/pkg/provider/llm"
)

// Kind enumerates the conversation intents.
type Kind int

const (
	// GeneralChat is the default: anything that is not a flow action.
	GeneralChat Kind = iota

	// QuoteSearch asks for insurance quotes.
	QuoteSearch

	// InsurerSelection picks one quote, by name or by position.
	InsurerSelection

	// Confirmation approves the pending action.
	Confirmation

	// Cancellation declines or aborts the pending action.
	Cancellation
)

// String returns the intent's label, which is also the wire format used with
// the remote classifier.
func (k Kind) String() string {
	switch k {
	case QuoteSearch:
		return "QuoteSearch"
	case InsurerSelection:
		return "InsurerSelection"
	case Confirmation:
		return "Confirmation"
	case Cancellation:
		return "Cancellation"
	default:
		return "GeneralChat"
	}
}

// kindFromLabel parses a remote classifier label. ok is false for anything
// outside the closed set.
func kindFromLabel(label string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(strings.Trim(label, `."'`))) {
	case "quotesearch", "quote_search":
		return QuoteSearch, true
	case "insurerselection", "insurer_selection":
		return InsurerSelection, true
	case "confirmation":
		return Confirmation, true
	case "cancellation":
		return Cancellation, true
	case "generalchat", "general_chat":
		return GeneralChat, true
	default:
		return GeneralChat, false
	}
}

// Intent is the classification result for one utterance. Produced fresh per
// utterance, never mutated.
type Intent struct {
	Kind Kind

	// Confidence in [0,1] is advisory only; callers branch on Kind alone.
	Confidence float64

	// InsurerHint is the insurer name detected in the utterance, when any.
	InsurerHint string

	// RawText is the utterance that was classified.
	RawText string
}

const (
	// remoteTimeout bounds one remote classification attempt.
	remoteTimeout = 2000 * time.Millisecond

	// retryJitterMin/Max bound the random delay before the single retry.
	retryJitterMin = 100 * time.Millisecond
	retryJitterMax = 400 * time.Millisecond

	remoteConfidence   = 0.9
	fallbackConfidence = 0.6
)

const systemPrompt = `You classify one utterance from a car-insurance voice assistant conversation.
Answer with exactly one label and nothing else:

QuoteSearch - the user asks to find, get or compare insurance quotes or prices.
  Examples: "find me quotes for my car", "how much would insurance cost", "I need cover for my Ford"
InsurerSelection - the user picks one of the offered quotes, by name or position.
  Examples: "go with Admiral", "the first one", "let's take the cheapest"
Confirmation - the user approves the pending action.
  Examples: "yes", "go ahead", "sounds good", "no, just go ahead"
Cancellation - the user declines or aborts the pending action.
  Examples: "no", "cancel that", "stop", "never mind"
GeneralChat - anything else.
  Examples: "what's the weather like", "tell me about yourself"`

// Option is a functional option for configuring a Classifier.
type Option func(*Classifier)

// WithTimeout overrides the per-attempt remote timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Classifier) { c.log = log }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

// Classifier maps utterances to intents. Safe for concurrent use.
type Classifier struct {
	remote  llm.Client
	matcher *insurer.Matcher
	timeout time.Duration
	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates a Classifier. remote may be nil, in which case only the
// deterministic fallback runs.
func New(remote llm.Client, matcher *insurer.Matcher, opts ...Option) *Classifier {
	c := &Classifier{
		remote:  remote,
		matcher: matcher,
		timeout: remoteTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Classify resolves the utterance to an intent. knownInsurers is the list of
// insurer names currently on offer; it feeds both the insurer hint and the
// fallback's selection detection. Classify never fails — any remote error
// path ends in the deterministic fallback.
func (c *Classifier) Classify(ctx context.Context, utterance string, knownInsurers []string) Intent {
	if c.remote == nil {
		return c.Fallback(utterance, knownInsurers)
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			jitter := retryJitterMin + rand.N(retryJitterMax-retryJitterMin)
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				c.metrics.ClassifierFallbacks.Add(ctx, 1)
				return c.Fallback(utterance, knownInsurers)
			}
		}

		kind, err := c.classifyRemote(ctx, utterance)
		if err != nil {
			c.log.Debug("remote intent classification failed",
				"attempt", attempt+1, "error", err)
			continue
		}

		intent := Intent{
			Kind:       kind,
			Confidence: remoteConfidence,
			RawText:    utterance,
		}
		if hint, _, ok := c.resolveInsurer(utterance, knownInsurers); ok {
			intent.InsurerHint = hint
		}
		return intent
	}

	c.log.Info("falling back to keyword intent classification", "utterance_len", len(utterance))
	c.metrics.ClassifierFallbacks.Add(ctx, 1)
	return c.Fallback(utterance, knownInsurers)
}

// classifyRemote runs one bounded remote attempt.
func (c *Classifier) classifyRemote(ctx context.Context, utterance string) (Kind, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	label, err := c.remote.Complete(attemptCtx, llm.Request{
		System:      systemPrompt,
		User:        utterance,
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return GeneralChat, err
	}

	kind, ok := kindFromLabel(label)
	if !ok {
		return GeneralChat, fmt.Errorf("intent: unparseable label %q", label)
	}
	return kind, nil
}

// resolveInsurer finds an insurer mention using the phonetic matcher when one
// is configured, or plain bidirectional substring matching otherwise.
func (c *Classifier) resolveInsurer(utterance string, names []string) (string, float64, bool) {
	if c.matcher != nil {
		return c.matcher.Resolve(utterance, names)
	}
	lower := strings.ToLower(utterance)
	for _, n := range names {
		nl := strings.ToLower(n)
		if nl != "" && (strings.Contains(lower, nl) || strings.Contains(nl, lower)) {
			return n, 1, true
		}
	}
	return "", 0, false
}
