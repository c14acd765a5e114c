// Package spacegroup stands in for the crystallographic symmetry-detection
// library the engine consumes as an external dependency. It is
// intentionally minimal: deterministic enough to exercise the duplicate
// detector and persistence round-trip, not a real symmetry analyzer.
package spacegroup

import (
	"math"

	"github.com/xtalopt/engine/internal/lattice"
)

// Detect returns a space-group number in [1,230] for the given cell and
// atom arrangement, within tolerance tol. The production crystallographic
// library replaces this; this implementation buckets cells by their Niggli-
// like metric (lengths, angles, atom count) into a reproducible integer so
// that two candidates whose lengths and angles round to the same tol-sized
// buckets collide on the same number, which is all the duplicate detector
// needs.
func Detect(c lattice.Cell, atoms []lattice.Atom, tol float64) uint {
	if tol <= 0 {
		tol = 1e-3
	}
	bucket := func(v float64) uint64 {
		return uint64(int64(math.Round(v / tol)))
	}

	h := uint64(14695981039346656037) // FNV-1a offset basis
	mix := func(v uint64) {
		h ^= v
		h *= 1099511628211 // FNV-1a prime
	}
	mix(bucket(c.A))
	mix(bucket(c.B))
	mix(bucket(c.C))
	mix(bucket(c.Alpha))
	mix(bucket(c.Beta))
	mix(bucket(c.Gamma))
	mix(uint64(len(atoms)))

	sg := uint(h%230) + 1
	return sg
}
