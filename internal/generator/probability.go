package generator

import (
	"math/rand"
	"sort"

	"github.com/xtalopt/engine/internal/candidate"
)

// SortByEnthalpy sorts candidates ascending by enthalpy, tie-broken by
// Index, the ordering ProbabilityList requires of its input.
func SortByEnthalpy(cands []*candidate.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Enthalpy != cands[j].Enthalpy {
			return cands[i].Enthalpy < cands[j].Enthalpy
		}
		return cands[i].Index < cands[j].Index
	})
}

// ProbabilityList builds the cumulative weighted-probability list from a
// population already sorted ascending by enthalpy. The input is truncated
// to popSize+1 before weighting; the trailing "+1" element gets the
// smallest raw weight, 1/(n+1), not zero.
func ProbabilityList(sortedAscending []*candidate.Candidate, popSize int) []float64 {
	cands := sortedAscending
	if len(cands) > popSize+1 {
		cands = cands[:popSize+1]
	}
	n := len(cands)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []float64{1.0}
	}

	lo := cands[0].Enthalpy
	hi := cands[n-1].Enthalpy
	spread := (hi - lo) * float64(n+1) / float64(n)
	if spread == 0 {
		spread = 1
	}

	weights := make([]float64, n)
	total := 0.0
	for i, c := range cands {
		weights[i] = 1 - (c.Enthalpy-lo)/spread
		total += weights[i]
	}

	probs := make([]float64, n)
	cum := 0.0
	for i, w := range weights {
		cum += w / total
		probs[i] = cum
	}
	return probs
}

// SampleIndex draws a uniform random number and returns the smallest index
// i such that r < probs[i].
func SampleIndex(rng *rand.Rand, probs []float64) int {
	r := rng.Float64()
	for i, p := range probs {
		if r < p {
			return i
		}
	}
	return len(probs) - 1
}
