package generator

import (
	"fmt"
	"math/rand"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/enginerr"
	"github.com/xtalopt/engine/internal/lattice"
)

// Permustrain swaps the positions of permustrain_exchanges pairs of atoms of
// differing species, then applies a symmetric random strain to the cell.
// It fails if the composition has fewer than two distinct species, since
// no swap can then change anything.
func (g *Generator) Permustrain(rng *rand.Rand, parent *candidate.Candidate) (*candidate.Candidate, error) {
	atoms := make([]lattice.Atom, len(parent.Atoms))
	copy(atoms, parent.Atoms)

	speciesCount := len(g.comp)
	if speciesCount < 2 {
		return nil, enginerr.New(enginerr.OperatorFailed,
			"permustrain: composition has fewer than two species").WithOperation("Permustrain")
	}

	for ex := 0; ex < g.cfg.PermustrainExchanges; ex++ {
		i, j, ok := pickDifferentSpeciesPair(rng, atoms)
		if !ok {
			break
		}
		atoms[i].AtomicNumber, atoms[j].AtomicNumber = atoms[j].AtomicNumber, atoms[i].AtomicNumber
	}

	stdev := uniform(rng, 0, g.cfg.PermustrainStrainStdevMax)
	cell := lattice.Strain(parent.Cell, symmetricStrain(rng, stdev))

	child := candidate.New(cell)
	child.Generation = parent.Generation + 1
	child.Atoms = atoms
	child.Parents = fmt.Sprintf("Permustrain: %s stdev=%.4f exch=%d",
		parent.Key().String(), stdev, g.cfg.PermustrainExchanges)
	child.Status = candidate.WaitingForOptimization
	child.InvalidateFingerprint()
	return child, nil
}

func pickDifferentSpeciesPair(rng *rand.Rand, atoms []lattice.Atom) (int, int, bool) {
	if len(atoms) < 2 {
		return 0, 0, false
	}
	for try := 0; try < 50; try++ {
		i := rng.Intn(len(atoms))
		j := rng.Intn(len(atoms))
		if i != j && atoms[i].AtomicNumber != atoms[j].AtomicNumber {
			return i, j, true
		}
	}
	return 0, 0, false
}
