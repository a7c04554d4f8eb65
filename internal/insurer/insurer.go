// Package insurer resolves insurer names mentioned in user utterances.
//
// Speech recognition regularly mangles brand names ("admirul" for "Admiral",
// "a viva" for "Aviva"), so exact matching is not enough. Resolution proceeds
// in two stages:
//
//  1. Substring containment, in both directions, on the lowercased strings.
//     This catches partial hearing ("go with direct" → "Direct Line") and is
//     always preferred when it hits.
//
//  2. Phonetic matching: Double Metaphone codes are computed for each
//     utterance token and each known name; phonetically-overlapping names are
//     ranked by Jaro-Winkler similarity and accepted above a threshold. When
//     no phonetic candidate exists, a pure Jaro-Winkler pass with a stricter
//     threshold runs as a last resort.
//
// The Matcher is read-only after construction and safe for concurrent use.
package insurer

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched name to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher resolves misheard insurer names against a candidate list.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Resolve finds the insurer name from names that the utterance most likely
// refers to. When matched is false, name is empty and confidence is 0.
func (m *Matcher) Resolve(utterance string, names []string) (name string, confidence float64, matched bool) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" || len(names) == 0 {
		return "", 0, false
	}
	lower := strings.ToLower(utterance)

	// Stage 1: substring containment in either direction.
	for _, n := range names {
		nl := strings.ToLower(strings.TrimSpace(n))
		if nl == "" {
			continue
		}
		if strings.Contains(lower, nl) || strings.Contains(nl, lower) {
			return n, 1, true
		}
	}

	// Stage 2: phonetic candidates ranked by Jaro-Winkler. Each utterance
	// token (and adjacent-token bigram, for multi-word names) is compared
	// against each candidate name.
	tokens := strings.Fields(lower)
	phrases := make([]string, 0, len(tokens)*2)
	phrases = append(phrases, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		phrases = append(phrases, tokens[i]+" "+tokens[i+1])
	}

	type candidate struct {
		name     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, n := range names {
		nl := strings.ToLower(strings.TrimSpace(n))
		if nl == "" {
			continue
		}
		nameCodes := codesForTokens(strings.Fields(nl))

		for _, phrase := range phrases {
			phraseCodes := codesForTokens(strings.Fields(phrase))
			phonetic := codesOverlap(phraseCodes, nameCodes)
			score := bestJWScore(phrase, nl)

			if phonetic {
				if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
					best = candidate{name: n, score: score, phonetic: true}
				}
			} else if !best.phonetic {
				if score >= m.fuzzyThreshold && score > best.score {
					best = candidate{name: n, score: score, phonetic: false}
				}
			}
		}
	}

	if best.name != "" {
		return best.name, best.score, true
	}
	return "", 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens, excluding empty codes.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the phrase
// and the name, trying the full strings, the space-stripped strings, and the
// best pairwise token score.
func bestJWScore(phrase, name string) float64 {
	score := matchr.JaroWinkler(phrase, name, false)

	pTokens := strings.Fields(phrase)
	nTokens := strings.Fields(name)
	if len(pTokens) > 1 || len(nTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(pTokens, ""), strings.Join(nTokens, ""), false); s > score {
			score = s
		}
	}
	for _, pt := range pTokens {
		for _, nt := range nTokens {
			if s := matchr.JaroWinkler(pt, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}
