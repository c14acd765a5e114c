// Package generator implements the random-fill and genetic-breeding
// algorithms that produce new Candidates: uniform random cells with
// rejection-sampled atom placement, and the crossover/stripple/permustrain
// operators that breed children from an optimized population.
package generator

import (
	"fmt"
	"math/rand"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/config"
	"github.com/xtalopt/engine/internal/enginerr"
	"github.com/xtalopt/engine/internal/lattice"
	"github.com/xtalopt/engine/internal/spacegroup"
)

// maxAtomPlacementTries is the per-atom rejection-sampling budget.
const maxAtomPlacementTries = 1000

// maxOperatorAttempts is the per-operator retry budget before the caller
// re-draws which operator to use.
const maxOperatorAttempts = 1000

// maxOperatorRedraws bounds how many times Breed re-draws an operator
// before giving up and returning an OperatorFailed error. An unbounded
// retry loop would be fine for a long-running interactive process, but a
// bounded budget keeps this implementation's failure mode observable and
// testable.
const maxOperatorRedraws = 50

// maxReplaceRetries bounds how many fresh draws ReplaceWithRandom attempts
// before giving up.
const maxReplaceRetries = 1000

// Generator produces Candidates for one session. It owns no state beyond
// its configuration and composition; all randomness flows through the
// caller-supplied *rand.Rand, a single seeded RNG owned by the engine and
// threaded explicitly rather than held as global state.
type Generator struct {
	cfg  *config.SessionConfig
	comp candidate.Composition
}

// New creates a Generator bound to one session's configuration and
// composition.
func New(cfg *config.SessionConfig, comp candidate.Composition) *Generator {
	return &Generator{cfg: cfg, comp: comp}
}

// Composition returns the session's fixed composition.
func (g *Generator) Composition() candidate.Composition {
	return g.comp
}

// GenerateRandom draws a uniform random cell and fills it with the session
// composition via rejection sampling. It returns a StructureBuildFailed
// error (non-fatal, counted by the caller) if atom placement is exhausted
// for any atom.
func (g *Generator) GenerateRandom(rng *rand.Rand, generation int) (*candidate.Candidate, error) {
	cell := lattice.Cell{
		A:     uniform(rng, g.cfg.A.Min, g.cfg.A.Max),
		B:     uniform(rng, g.cfg.B.Min, g.cfg.B.Max),
		C:     uniform(rng, g.cfg.C.Min, g.cfg.C.Max),
		Alpha: uniform(rng, g.cfg.Alpha.Min, g.cfg.Alpha.Max),
		Beta:  uniform(rng, g.cfg.Beta.Min, g.cfg.Beta.Max),
		Gamma: uniform(rng, g.cfg.Gamma.Min, g.cfg.Gamma.Max),
	}

	c := candidate.New(cell)
	c.Generation = generation

	if g.cfg.VolumeMode == config.VolumeFixed {
		c.Cell = lattice.RescaleVolume(c.Cell, g.cfg.VolumeFixed)
	}

	minIAD := -1.0
	if g.cfg.UseMinInteratomicDistance {
		minIAD = g.cfg.MinInteratomicDistance
	}

	for _, z := range g.comp.Sorted() {
		count := g.comp[z]
		for i := 0; i < count; i++ {
			atom, ok := placeAtomRandomly(rng, c.Cell, c.Atoms, z, minIAD)
			if !ok {
				return nil, enginerr.New(enginerr.StructureBuildFailed,
					"failed to add atoms with specified interatomic distance").WithOperation("GenerateRandom")
			}
			c.Atoms = append(c.Atoms, atom)
		}
	}

	c.Parents = "Randomly generated"
	c.Status = candidate.WaitingForOptimization
	c.InvalidateFingerprint()
	return c, nil
}

// placeAtomRandomly draws up to maxAtomPlacementTries fractional positions
// for one atom, rejecting any that violate the minimum interatomic
// distance against atoms already placed.
func placeAtomRandomly(rng *rand.Rand, cell lattice.Cell, existing []lattice.Atom, z int, minIAD float64) (lattice.Atom, bool) {
	for try := 0; try < maxAtomPlacementTries; try++ {
		frac := [3]float64{rng.Float64(), rng.Float64(), rng.Float64()}
		cart := lattice.FracToCart(cell, frac)
		candidateAtom := lattice.Atom{AtomicNumber: z, X: cart[0], Y: cart[1], Z: cart[2]}

		if minIAD <= 0 || !violatesMinDistance(cell, existing, candidateAtom, minIAD) {
			return candidateAtom, true
		}
	}
	return lattice.Atom{}, false
}

func violatesMinDistance(cell lattice.Cell, existing []lattice.Atom, a lattice.Atom, minIAD float64) bool {
	if len(existing) == 0 {
		return false
	}
	trial := append(append([]lattice.Atom{}, existing...), a)
	d, ok := lattice.ShortestInteratomicDistance(cell, trial)
	return ok && d < minIAD
}

func uniform(rng *rand.Rand, min, max float64) float64 {
	if min == max {
		return min
	}
	return rng.Float64()*(max-min) + min
}

// Check validates (and where possible salvages) a candidate in place. It
// returns false if the candidate must be discarded.
func (g *Generator) Check(c *candidate.Candidate) bool {
	if c == nil || c.Status == candidate.Empty && len(c.Atoms) == 0 && c.Cell.A == 0 {
		return false
	}

	switch g.cfg.VolumeMode {
	case config.VolumeFixed:
		c.Cell = lattice.RescaleVolume(c.Cell, g.cfg.VolumeFixed)
	case config.VolumeRange:
		v := c.Volume()
		if v < g.cfg.VolumeMin || v > g.cfg.VolumeMax {
			newVol := absMod1(v)*(g.cfg.VolumeMax-g.cfg.VolumeMin) + g.cfg.VolumeMin
			if absF(newVol) < 1e-8 {
				newVol = (g.cfg.VolumeMax-g.cfg.VolumeMin)*0.5 + g.cfg.VolumeMin
			}
			c.Cell = lattice.RescaleVolume(c.Cell, newVol)
		}
	}

	if !lattice.FiniteAndNonzero(c.Cell.A) || !lattice.FiniteAndNonzero(c.Cell.B) || !lattice.FiniteAndNonzero(c.Cell.C) ||
		!lattice.FiniteAndNonzero(c.Cell.Alpha) || !lattice.FiniteAndNonzero(c.Cell.Beta) || !lattice.FiniteAndNonzero(c.Cell.Gamma) {
		return false
	}

	c.Cell, c.Atoms = lattice.FixAngles(c.Cell, c.Atoms)

	pinnedA := lattice.Pinned(g.cfg.A.Min, g.cfg.A.Max)
	pinnedB := lattice.Pinned(g.cfg.B.Min, g.cfg.B.Max)
	pinnedC := lattice.Pinned(g.cfg.C.Min, g.cfg.C.Max)
	pinnedAlpha := lattice.Pinned(g.cfg.Alpha.Min, g.cfg.Alpha.Max)
	pinnedBeta := lattice.Pinned(g.cfg.Beta.Min, g.cfg.Beta.Max)
	pinnedGamma := lattice.Pinned(g.cfg.Gamma.Min, g.cfg.Gamma.Max)

	if pinnedA {
		c.Cell.A = g.cfg.A.Min
	}
	if pinnedB {
		c.Cell.B = g.cfg.B.Min
	}
	if pinnedC {
		c.Cell.C = g.cfg.C.Min
	}
	if pinnedAlpha {
		c.Cell.Alpha = g.cfg.Alpha.Min
	}
	if pinnedBeta {
		c.Cell.Beta = g.cfg.Beta.Min
	}
	if pinnedGamma {
		c.Cell.Gamma = g.cfg.Gamma.Min
	}

	if !pinnedA && (c.Cell.A < g.cfg.A.Min || c.Cell.A > g.cfg.A.Max) {
		return false
	}
	if !pinnedB && (c.Cell.B < g.cfg.B.Min || c.Cell.B > g.cfg.B.Max) {
		return false
	}
	if !pinnedC && (c.Cell.C < g.cfg.C.Min || c.Cell.C > g.cfg.C.Max) {
		return false
	}
	if !pinnedAlpha && (c.Cell.Alpha < g.cfg.Alpha.Min || c.Cell.Alpha > g.cfg.Alpha.Max) {
		return false
	}
	if !pinnedBeta && (c.Cell.Beta < g.cfg.Beta.Min || c.Cell.Beta > g.cfg.Beta.Max) {
		return false
	}
	if !pinnedGamma && (c.Cell.Gamma < g.cfg.Gamma.Min || c.Cell.Gamma > g.cfg.Gamma.Max) {
		return false
	}

	if g.cfg.UseMinInteratomicDistance {
		d, ok := lattice.ShortestInteratomicDistance(c.Cell, c.Atoms)
		if ok && d < g.cfg.MinInteratomicDistance {
			return false
		}
	}

	c.InvalidateFingerprint()
	return true
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// absMod1 salvages a pseudo-random float in [0,1) out of v: fabs(fmod(v,1)).
func absMod1(v float64) float64 {
	m := v - float64(int64(v))
	return absF(m)
}

// FindSpaceGroup computes and stores the candidate's space group at the
// session's duplicate-detection tolerance, invalidating nothing else.
func (g *Generator) FindSpaceGroup(c *candidate.Candidate) {
	sg := spacegroup.Detect(c.Cell, c.Atoms, g.cfg.TolSpg)
	c.Fingerprint.Spacegroup = sg
}

// ReplaceWithRandom regenerates c's cell and atoms in place with a fresh
// valid random structure, resetting its energies, current_step, and
// fail_count, and setting parents to "Randomly generated (<reason>)". It
// preserves c's existing id_number, generation, and index rather than
// publishing a new candidate.
func (g *Generator) ReplaceWithRandom(rng *rand.Rand, c *candidate.Candidate, reason string) error {
	c.RLock()
	generation := c.Generation
	c.RUnlock()

	var fresh *candidate.Candidate
	for try := 0; try < maxReplaceRetries; try++ {
		cand, err := g.GenerateRandom(rng, generation)
		if err != nil {
			continue
		}
		if !g.Check(cand) {
			continue
		}
		fresh = cand
		break
	}
	if fresh == nil {
		return enginerr.New(enginerr.StructureBuildFailed, "replace_with_random: exhausted retry budget").WithOperation("ReplaceWithRandom")
	}

	c.Lock()
	c.Cell = fresh.Cell
	c.Atoms = fresh.Atoms
	c.Energy = 0
	c.Enthalpy = 0
	c.PV = 0
	c.CurrentStep = 1
	c.FailCount = 0
	c.DuplicateOf = ""
	c.Parents = fmt.Sprintf("Randomly generated (%s)", reason)
	c.Status = candidate.WaitingForOptimization
	c.InvalidateFingerprint()
	c.Unlock()

	g.FindSpaceGroup(c)
	return nil
}
