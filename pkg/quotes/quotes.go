// Package quotes provides the quote-search collaborator: a client for the
// quote aggregation service, fit-score ranking, and free-text preference
// extraction.
package quotes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Result is one insurer quote, as surfaced to the conversation flow.
type Result struct {
	InsurerName string  `json:"insurer_name"`
	AnnualCost  float64 `json:"annual_cost"`
	MonthlyCost float64 `json:"monthly_cost"`
	TrustRating float64 `json:"trust_rating"`
	FitScore    float64 `json:"fit_score"`
	Summary     string  `json:"summary"`

	// Features holds the normalized feature names the policy includes.
	Features []string `json:"features,omitempty"`
}

// Searcher is the quote-search collaborator contract. Implementations return
// results pre-ranked best-first; index 0 is always the top referent for
// positional selection. The slice may be empty.
type Searcher interface {
	Search(ctx context.Context, policyContext string) ([]Result, error)
}

// ── HTTP client ────────────────────────────────────────────────────────────────

// Compile-time assertion.
var _ Searcher = (*Client)(nil)

const defaultTimeout = 60 * time.Second

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// Client calls the quote aggregation service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a quote aggregation client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchRequest struct {
	PolicyContext       string   `json:"policy_context"`
	ConversationHistory []string `json:"conversation_history"`
}

// searchResponse mirrors the aggregation service's analysis payload. Prices
// can live either at the top level of an entry or nested under the original
// quote, depending on the upstream pipeline stage that produced it.
type searchResponse struct {
	Quotes []quoteEntry `json:"quotes_with_insights"`
}

type quoteEntry struct {
	InsurerName   string   `json:"insurer_name"`
	FitScore      float64  `json:"alfie_touch_score"`
	Message       string   `json:"alfie_message"`
	Features      []string `json:"available_features"`
	PriceAnalysis struct {
		QuotePrice float64 `json:"quote_price"`
	} `json:"price_analysis"`
	TrustContext struct {
		Rating float64 `json:"rating"`
	} `json:"trust_pilot_context"`
	OriginalQuote struct {
		Output struct {
			InsurerName string  `json:"insurer_name"`
			PolicyCost  float64 `json:"policy_cost"`
		} `json:"output"`
	} `json:"original_quote"`
}

// Search posts the policy context to the aggregation service and returns the
// top-ranked results, best-first.
func (c *Client) Search(ctx context.Context, policyContext string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{
		PolicyContext:       policyContext,
		ConversationHistory: []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("quotes: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/complete-analysis", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("quotes: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quotes: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quotes: search: unexpected status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("quotes: decode response: %w", err)
	}

	results := make([]Result, 0, len(sr.Quotes))
	for _, q := range sr.Quotes {
		name := q.InsurerName
		if name == "" {
			name = q.OriginalQuote.Output.InsurerName
		}
		price := q.PriceAnalysis.QuotePrice
		if price == 0 {
			price = q.OriginalQuote.Output.PolicyCost
		}
		if name == "" || price == 0 {
			continue
		}

		features := make([]string, 0, len(q.Features))
		for _, f := range q.Features {
			features = append(features, NormalizeFeature(f))
		}

		results = append(results, Result{
			InsurerName: name,
			AnnualCost:  price,
			MonthlyCost: price / 12,
			TrustRating: q.TrustContext.Rating,
			FitScore:    q.FitScore,
			Summary:     q.Message,
			Features:    features,
		})
	}

	return Rank(results), nil
}
