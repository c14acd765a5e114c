package generator

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/lattice"
)

// Stripple displaces every atom's fractional c-coordinate by a sinusoidal
// wave over its a,b position, then applies a symmetric random strain to the
// cell. Amplitude and strain standard deviation are each drawn uniformly
// from the session's configured ranges; the wave numbers are the session's
// fixed stripple_period1/2.
func (g *Generator) Stripple(rng *rand.Rand, parent *candidate.Candidate) (*candidate.Candidate, error) {
	amplitude := uniform(rng, g.cfg.StrippleAmplitudeMin, g.cfg.StrippleAmplitudeMax)
	per1 := float64(g.cfg.StripplePeriod1)
	per2 := float64(g.cfg.StripplePeriod2)

	parentFrac := toFrac(parent)
	atoms := make([]lattice.Atom, len(parentFrac))
	for i, a := range parentFrac {
		disp := amplitude * math.Sin(2*math.Pi*per1*a.frac[0]) * math.Sin(2*math.Pi*per2*a.frac[1])
		frac := a.frac
		frac[2] = math.Mod(frac[2]+disp+1, 1)
		cart := lattice.FracToCart(parent.Cell, frac)
		atoms[i] = lattice.Atom{AtomicNumber: a.z, X: cart[0], Y: cart[1], Z: cart[2]}
	}

	stdev := uniform(rng, g.cfg.StrippleStrainStdevMin, g.cfg.StrippleStrainStdevMax)
	cell := lattice.Strain(parent.Cell, symmetricStrain(rng, stdev))

	child := candidate.New(cell)
	child.Generation = parent.Generation + 1
	child.Atoms = atoms
	child.Parents = fmt.Sprintf("Stripple: %s stdev=%.4f amp=%.4f waves=%d,%d",
		parent.Key().String(), stdev, amplitude, g.cfg.StripplePeriod1, g.cfg.StripplePeriod2)
	child.Status = candidate.WaitingForOptimization
	child.InvalidateFingerprint()
	return child, nil
}

// symmetricStrain draws a symmetric strain tensor with each independent
// entry normally distributed with the given standard deviation.
func symmetricStrain(rng *rand.Rand, stdev float64) [3][3]float64 {
	if stdev <= 0 {
		return [3][3]float64{}
	}
	var eps [3][3]float64
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			v := rng.NormFloat64() * stdev
			eps[i][j] = v
			eps[j][i] = v
		}
	}
	return eps
}
