package generator

import (
	"math/rand"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/enginerr"
)

// operatorKind names one of the three genetic operators, used only for
// selecting which breeding function to call.
type operatorKind int

const (
	opCrossover operatorKind = iota
	opStripple
	opPermustrain
)

// Breed draws a random operator weighted by p_cross/p_strip/p_perm, selects
// parents from pop (already optimized, sorted ascending by enthalpy) via
// the probability list, and runs the chosen operator. On operator failure
// it retries the same operator up to maxOperatorAttempts times with fresh
// random draws; on exhaustion it re-draws a (possibly different) operator
// and starts over, up to maxOperatorRedraws times.
func (g *Generator) Breed(rng *rand.Rand, pop []*candidate.Candidate) (*candidate.Candidate, error) {
	if len(pop) < 3 {
		return nil, enginerr.New(enginerr.OperatorFailed, "breed: population too small").WithOperation("Breed")
	}

	sorted := make([]*candidate.Candidate, len(pop))
	copy(sorted, pop)
	SortByEnthalpy(sorted)
	probs := ProbabilityList(sorted, g.cfg.PopSize)

	var lastErr error
	for redraw := 0; redraw < maxOperatorRedraws; redraw++ {
		op := g.drawOperator(rng)

		for attempt := 0; attempt < maxOperatorAttempts; attempt++ {
			child, err := g.runOperator(rng, op, sorted, probs)
			if err == nil {
				return child, nil
			}
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = enginerr.New(enginerr.OperatorFailed, "breed: exhausted redraws").WithOperation("Breed")
	}
	return nil, lastErr
}

func (g *Generator) drawOperator(rng *rand.Rand) operatorKind {
	r := rng.Float64() * 100
	switch {
	case r < g.cfg.PCross:
		return opCrossover
	case r < g.cfg.PCross+g.cfg.PStrip:
		return opStripple
	default:
		return opPermustrain
	}
}

func (g *Generator) runOperator(rng *rand.Rand, op operatorKind, sorted []*candidate.Candidate, probs []float64) (*candidate.Candidate, error) {
	switch op {
	case opCrossover:
		i1 := SampleIndex(rng, probs)
		i2 := SampleIndex(rng, probs)
		for i2 == i1 && len(sorted) > 1 {
			i2 = SampleIndex(rng, probs)
		}
		return g.Crossover(rng, sorted[i1], sorted[i2])
	case opStripple:
		i := SampleIndex(rng, probs)
		return g.Stripple(rng, sorted[i])
	default:
		i := SampleIndex(rng, probs)
		return g.Permustrain(rng, sorted[i])
	}
}
