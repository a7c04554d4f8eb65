package quotes

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// featureAliases normalizes spoken or typed feature names, including common
// typos and the UK/US windscreen/windshield split, to canonical feature keys.
var featureAliases = map[string]string{
	"windshield":       "windshield_cover",
	"windscreen":       "windshield_cover",
	"windshield cover": "windshield_cover",
	"windscreen cover": "windshield_cover",
	"windshield_cover": "windshield_cover",
	"windscreen_cover": "windshield_cover",
	"legal":            "legal_cover",
	"legal cover":      "legal_cover",
	"legul cover":      "legal_cover",
	"courtesy car":     "courtesy_car",
	"courtesy_car":     "courtesy_car",
	"breakdown":        "breakdown_cover",
	"breakdown cover":  "breakdown_cover",
	"breakdown_cover":  "breakdown_cover",
	"european":         "european_cover",
	"european cover":   "european_cover",
	"european_cover":   "european_cover",
	"europe":           "european_cover",
}

var numberPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)`)

// Preferences is the structured form of a user's free-text quote preferences.
type Preferences struct {
	// Budget is the annual budget in GBP; nil when none was mentioned.
	Budget *float64

	// Features holds canonical feature names, ordered by first mention.
	Features []string

	// RawText is the original preference text.
	RawText string
}

// ExtractPreferences parses budget and required features out of free-text
// preferences. The first number found is treated as the budget; features are
// matched as whole words against the alias map to tolerate typos and regional
// spellings.
func ExtractPreferences(text string) Preferences {
	prefs := Preferences{RawText: text}

	if m := numberPattern.FindStringSubmatch(strings.ReplaceAll(text, ",", "")); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			prefs.Budget = &v
		}
	}

	lower := strings.ToLower(text)

	type hit struct {
		pos       int
		canonical string
	}
	var hits []hit
	seen := make(map[string]int) // canonical → earliest position
	for alias, canonical := range featureAliases {
		pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`)
		loc := pattern.FindStringIndex(lower)
		if loc == nil {
			continue
		}
		if prev, ok := seen[canonical]; !ok || loc[0] < prev {
			seen[canonical] = loc[0]
		}
	}
	for canonical, pos := range seen {
		hits = append(hits, hit{pos: pos, canonical: canonical})
	}
	slices.SortFunc(hits, func(a, b hit) int { return a.pos - b.pos })
	for _, h := range hits {
		prefs.Features = append(prefs.Features, h.canonical)
	}
	return prefs
}

// NormalizeFeature maps a feature key from the aggregation API to its
// canonical name (e.g. legal_cover_included → legal_cover).
func NormalizeFeature(feature string) string {
	f := strings.ToLower(strings.TrimSpace(feature))
	f = strings.TrimSuffix(f, "_included")
	if canonical, ok := featureAliases[f]; ok {
		return canonical
	}
	return f
}

// MeetsRequirements reports whether a quote fits the budget and includes all
// required features. A nil budget means no price ceiling.
func MeetsRequirements(q Result, budget *float64, required []string) bool {
	if budget != nil && q.AnnualCost > *budget {
		return false
	}
	for _, f := range required {
		if !slices.Contains(q.Features, f) {
			return false
		}
	}
	return true
}

// BestMatch returns the cheapest quote satisfying the requirements, or false
// when none qualifies.
func BestMatch(results []Result, budget *float64, required []string) (Result, bool) {
	var best Result
	found := false
	for _, q := range results {
		if !MeetsRequirements(q, budget, required) {
			continue
		}
		if !found || q.AnnualCost < best.AnnualCost {
			best = q
			found = true
		}
	}
	return best, found
}
