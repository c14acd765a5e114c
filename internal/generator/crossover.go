package generator

import (
	"fmt"
	"math/rand"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/enginerr"
	"github.com/xtalopt/engine/internal/lattice"
)

type fracAtom struct {
	z    int
	frac [3]float64
}

// Crossover assembles a child from fractional-coordinate slabs of two
// parents, cutting along a random axis so that parent 1 contributes
// between cross_min_contribution and (100 - cross_min_contribution)
// percent of the atoms. It returns OperatorFailed if the cut produces a
// contribution outside that band; the caller retries with a fresh cut.
func (g *Generator) Crossover(rng *rand.Rand, p1, p2 *candidate.Candidate) (*candidate.Candidate, error) {
	axis := rng.Intn(3)
	cut := rng.Float64()

	p1Frac := toFrac(p1)
	p2Frac := toFrac(p2)

	childCell := averageCell(p1.Cell, p2.Cell)

	var childAtoms []fracAtom
	contributedFromP1 := 0

	for _, z := range g.comp.Sorted() {
		target := g.comp[z]

		var included, reserve []fracAtom
		var includedFromP1 []bool

		for _, a := range p1Frac {
			if a.z != z {
				continue
			}
			if a.frac[axis] < cut {
				included = append(included, a)
				includedFromP1 = append(includedFromP1, true)
			} else {
				reserve = append(reserve, a)
			}
		}
		reserveFromP1 := len(reserve)
		for _, a := range p2Frac {
			if a.z != z {
				continue
			}
			if a.frac[axis] >= cut {
				included = append(included, a)
				includedFromP1 = append(includedFromP1, false)
			} else {
				reserve = append(reserve, a)
			}
		}

		for len(included) > target {
			idx := rng.Intn(len(included))
			included = append(included[:idx], included[idx+1:]...)
			includedFromP1 = append(includedFromP1[:idx], includedFromP1[idx+1:]...)
		}
		for len(included) < target && len(reserve) > 0 {
			idx := rng.Intn(len(reserve))
			included = append(included, reserve[idx])
			includedFromP1 = append(includedFromP1, idx < reserveFromP1)
			reserve = append(reserve[:idx], reserve[idx+1:]...)
			if idx < reserveFromP1 {
				reserveFromP1--
			}
		}
		if len(included) != target {
			return nil, enginerr.New(enginerr.OperatorFailed, "crossover: could not satisfy composition").WithOperation("Crossover")
		}

		for i, a := range included {
			childAtoms = append(childAtoms, a)
			if includedFromP1[i] {
				contributedFromP1++
			}
		}
	}

	total := len(childAtoms)
	percent1 := 100 * float64(contributedFromP1) / float64(total)
	minC := float64(g.cfg.CrossMinContribution)
	if percent1 < minC || percent1 > 100-minC {
		return nil, enginerr.Newf(enginerr.OperatorFailed,
			"crossover: parent-1 contribution %.1f%% outside [%v,%v]", percent1, minC, 100-minC).WithOperation("Crossover")
	}

	atoms := make([]lattice.Atom, total)
	for i, a := range childAtoms {
		cart := lattice.FracToCart(childCell, a.frac)
		atoms[i] = lattice.Atom{AtomicNumber: a.z, X: cart[0], Y: cart[1], Z: cart[2]}
	}

	gen := p1.Generation
	if p2.Generation > gen {
		gen = p2.Generation
	}

	child := candidate.New(childCell)
	child.Generation = gen + 1
	child.Atoms = atoms
	child.Parents = fmt.Sprintf("Crossover: %dx%d (%.0f%%) + %dx%d (%.0f%%)",
		p1.Generation, p1.IDNumber, percent1, p2.Generation, p2.IDNumber, 100-percent1)
	child.Status = candidate.WaitingForOptimization
	child.InvalidateFingerprint()
	return child, nil
}

func toFrac(c *candidate.Candidate) []fracAtom {
	out := make([]fracAtom, len(c.Atoms))
	for i, a := range c.Atoms {
		f := lattice.CartToFrac(c.Cell, [3]float64{a.X, a.Y, a.Z})
		out[i] = fracAtom{z: a.AtomicNumber, frac: f}
	}
	return out
}

func averageCell(a, b lattice.Cell) lattice.Cell {
	return lattice.Cell{
		A:     (a.A + b.A) / 2,
		B:     (a.B + b.B) / 2,
		C:     (a.C + b.C) / 2,
		Alpha: (a.Alpha + b.Alpha) / 2,
		Beta:  (a.Beta + b.Beta) / 2,
		Gamma: (a.Gamma + b.Gamma) / 2,
	}
}
