package quotes

import "sort"

// topN is how many quotes survive ranking. The voice flow only ever refers to
// "first", "second" and "third", so anything beyond three is noise.
const topN = 3

// Rank orders quotes by fit score descending and keeps the top three. The
// input slice is not modified. The returned order is the positional-selection
// order: index 0 is "the best one".
func Rank(in []Result) []Result {
	out := make([]Result, len(in))
	copy(out, in)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FitScore > out[j].FitScore
	})

	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
