package intent

import "strings"

// Vocabulary for the deterministic fallback. Single source of truth — the
// primary path's insurer-hint detection and the fallback share it, so the
// lists are never duplicated per call site.
var (
	quoteVocab = []string{
		"insurance", "insure", "quote", "quotes", "premium", "policy",
		"price", "prices", "cover", "coverage",
	}

	vehicleBrands = []string{
		"ford", "toyota", "bmw", "audi", "vauxhall", "volkswagen", "honda",
		"nissan", "mercedes", "kia", "hyundai", "tesla", "peugeot", "renault",
		"skoda", "mini", "fiat", "volvo", "mazda", "seat",
	}

	affirmations = []string{
		"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm",
		"go ahead", "do it", "sounds good", "absolutely", "definitely",
		"correct", "proceed", "buy it", "let's do it",
	}

	// positiveActions flip a leading negation into a confirmation
	// ("no, just go ahead"). Checked before plain negation.
	positiveActions = []string{
		"go ahead", "proceed", "do it", "buy", "purchase", "continue", "confirm",
	}

	negations = []string{
		"no", "nope", "nah", "cancel", "stop", "don't", "do not",
		"never mind", "nevermind", "not now", "forget it", "go back",
		"changed my mind",
	}

	negationLeads = []string{"no", "nope", "nah", "don't", "do not"}

	positionals = []string{
		"first", "second", "third", "cheapest", "best", "top",
		"that one", "this one", "number one", "number two", "number three",
	}
)

// Fallback is the deterministic keyword classifier. It runs over the
// normalized lowercase utterance and always produces an intent.
func (c *Classifier) Fallback(utterance string, knownInsurers []string) Intent {
	lower := strings.ToLower(strings.TrimSpace(utterance))
	intent := Intent{
		Kind:       GeneralChat,
		Confidence: fallbackConfidence,
		RawText:    utterance,
	}
	if lower == "" {
		return intent
	}

	switch {
	case ContainsAnyPhrase(lower, quoteVocab...) || ContainsAnyPhrase(lower, vehicleBrands...):
		intent.Kind = QuoteSearch

	// A leading negation immediately followed by a positive action means
	// "go ahead", not "stop" — this must win over plain negation.
	case ContainsAnyPhrase(lower, affirmations...) || negatedPositive(lower):
		intent.Kind = Confirmation

	case ContainsAnyPhrase(lower, negations...) && !ContainsAnyPhrase(lower, positiveActions...):
		intent.Kind = Cancellation

	default:
		if hint, conf, ok := c.resolveInsurer(lower, knownInsurers); ok {
			intent.Kind = InsurerSelection
			intent.InsurerHint = hint
			intent.Confidence = conf
		} else if ContainsAnyPhrase(lower, positionals...) {
			intent.Kind = InsurerSelection
		}
	}

	// An insurer mention is a useful hint even when another kind won.
	if intent.InsurerHint == "" {
		if hint, _, ok := c.resolveInsurer(lower, knownInsurers); ok {
			intent.InsurerHint = hint
		}
	}
	return intent
}

// negatedPositive reports whether the utterance starts with a negation token
// immediately followed by a positive-action token, as in "no, go ahead".
func negatedPositive(lower string) bool {
	for _, neg := range negationLeads {
		if !strings.HasPrefix(lower, neg) {
			continue
		}
		rest := lower[len(neg):]
		// The negation must end at a word boundary ("no" must not match
		// inside "nothing").
		if rest != "" && isAlnum(rune(rest[0])) {
			continue
		}
		rest = strings.TrimLeft(rest, " ,.!-")
		// Tolerate one filler word between the negation and the action
		// ("no, just go ahead").
		if w, tail, found := strings.Cut(rest, " "); found {
			if w == "just" || w == "please" || w == "actually" {
				rest = tail
			}
		}
		if ContainsAnyPhrase(rest, positiveActions...) {
			return true
		}
	}
	return false
}

// ContainsAnyPhrase reports whether s contains any of the phrases with word
// boundaries on both sides, so "no" never matches inside "nothing". s must
// already be lowercase.
func ContainsAnyPhrase(s string, phrases ...string) bool {
	for _, p := range phrases {
		if ContainsPhrase(s, p) {
			return true
		}
	}
	return false
}

// ContainsPhrase reports whether phrase occurs in s bounded by non-alphanumeric
// characters or the string edges.
func ContainsPhrase(s, phrase string) bool {
	for i := 0; i <= len(s)-len(phrase); {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(phrase)
		beforeOK := start == 0 || !isAlnum(rune(s[start-1]))
		afterOK := end == len(s) || !isAlnum(rune(s[end]))
		if beforeOK && afterOK {
			return true
		}
		i = start + 1
	}
	return false
}

func isAlnum(r rune) bool {
	return ('a' <= r && r <= 'z') || ('0' <= r && r <= '9')
}
