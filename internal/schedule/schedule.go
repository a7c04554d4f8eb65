// Package schedule runs the recurring quote watch: every interval it
// re-fetches quotes and reports whether one meets the user's budget and
// required features.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alfielabs/alfie-voice/pkg/quotes"
)

// defaultInterval is one week between checks.
const defaultInterval = 7 * 24 * time.Hour

// Outcome is the result of one scheduled check.
type Outcome struct {
	Date    time.Time
	Matched bool

	// Quote is the best matching quote when Matched is true.
	Quote quotes.Result

	// Message is the human-readable match/no-match summary.
	Message string
}

// Option is a functional option for configuring a Runner.
type Option func(*Runner)

// WithInterval overrides the check interval. Primarily used in tests.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// Runner periodically checks quotes against extracted preferences.
type Runner struct {
	searcher      quotes.Searcher
	policyContext string
	prefs         quotes.Preferences

	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New creates a Runner. prefText is the user's free-text preferences; budget
// and required features are extracted from it once, up front.
func New(searcher quotes.Searcher, policyContext, prefText string, opts ...Option) *Runner {
	r := &Runner{
		searcher:      searcher,
		policyContext: policyContext,
		prefs:         quotes.ExtractPreferences(prefText),
		interval:      defaultInterval,
		log:           slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start launches the periodic check loop. Calling Start on a running Runner
// is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.done = make(chan struct{})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case <-ticker.C:
				out := r.RunOnce(ctx)
				r.log.Info("quote watch run",
					"date", out.Date.Format(time.DateOnly),
					"match_found", out.Matched,
					"message", out.Message,
				)
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight check, if any.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	close(r.done)
	r.mu.Unlock()
	r.wg.Wait()
}

// RunOnce performs a single check and returns the outcome. A match requires
// the quote to fit the budget and include every requested feature.
func (r *Runner) RunOnce(ctx context.Context) Outcome {
	out := Outcome{Date: time.Now()}

	results, err := r.searcher.Search(ctx, r.policyContext)
	if err != nil {
		out.Message = fmt.Sprintf("quote fetch failed: %v", err)
		return out
	}

	match, ok := quotes.BestMatch(results, r.prefs.Budget, r.prefs.Features)
	if ok {
		out.Matched = true
		out.Quote = match
		if r.prefs.Budget != nil {
			out.Message = fmt.Sprintf(
				"found %s quote for £%.2f, below budget £%.2f with all requested features",
				match.InsurerName, match.AnnualCost, *r.prefs.Budget,
			)
		} else {
			out.Message = fmt.Sprintf(
				"found %s quote for £%.2f with requested features",
				match.InsurerName, match.AnnualCost,
			)
		}
		return out
	}

	var reasons []string
	if r.prefs.Budget != nil {
		reasons = append(reasons, "no quote within budget")
	}
	if len(r.prefs.Features) > 0 {
		reasons = append(reasons, "missing required features")
	}
	if len(reasons) == 0 {
		out.Message = "no quotes available"
	} else {
		out.Message = strings.Join(reasons, " and ")
	}
	return out
}
