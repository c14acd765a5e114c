// Package duplicate implements the fingerprint-based duplicate scan:
// pairwise comparison of optimized candidates by space group, enthalpy, and
// volume, marking the higher-enthalpy member of any matching pair as a
// duplicate of the other.
package duplicate

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/generator"
	"github.com/xtalopt/engine/internal/store"
)

// Detector runs the O(n^2) duplicate scan against a Store. Concurrent scan
// requests collapse into a single in-flight run via singleflight, since the
// scan result only depends on store state at the time it runs, not on which
// caller asked for it.
type Detector struct {
	st          *store.Store
	tolEnthalpy float64
	tolVolume   float64
	flight      singleflight.Group
}

// New creates a Detector bound to a Store and the session's duplicate
// tolerances.
func New(st *store.Store, tolEnthalpy, tolVolume float64) *Detector {
	return &Detector{st: st, tolEnthalpy: tolEnthalpy, tolVolume: tolVolume}
}

// Scan runs (or joins an in-flight run of) the duplicate scan and returns
// once it completes. Safe to call from many goroutines at once — the
// scheduler calls it after every status-changing event without needing to
// debounce itself.
func (d *Detector) Scan(ctx context.Context) {
	d.flight.Do("scan", func() (interface{}, error) {
		d.scanOnce()
		return nil, nil
	})
}

func (d *Detector) scanOnce() {
	cands := d.st.List()

	type snapshot struct {
		c          *candidate.Candidate
		status     candidate.Status
		spacegroup uint
		enthalpy   float64
		volume     float64
	}

	snaps := make([]snapshot, len(cands))
	for i, c := range cands {
		c.RLock()
		snaps[i] = snapshot{
			c:          c,
			status:     c.Status,
			spacegroup: c.Fingerprint.Spacegroup,
			enthalpy:   c.Fingerprint.Enthalpy,
			volume:     c.Fingerprint.Volume,
		}
		c.RUnlock()
	}

	for i := range snaps {
		if snaps[i].status != candidate.Optimized || snaps[i].spacegroup == 0 {
			continue
		}
		for j := i + 1; j < len(snaps); j++ {
			if snaps[j].status != candidate.Optimized || snaps[j].spacegroup == 0 {
				continue
			}
			if snaps[i].spacegroup != snaps[j].spacegroup {
				continue
			}
			if absF(snaps[i].enthalpy-snaps[j].enthalpy) > d.tolEnthalpy {
				continue
			}
			if absF(snaps[i].volume-snaps[j].volume) > d.tolVolume {
				continue
			}

			// Matching pair: mark whichever has the higher enthalpy as the
			// duplicate of the other, preferring the lower-index candidate
			// as the survivor on an exact tie.
			if snaps[i].enthalpy > snaps[j].enthalpy {
				markDuplicate(snaps[i].c, snaps[j].c)
				break // i is now a duplicate; stop comparing it to later candidates.
			}
			markDuplicate(snaps[j].c, snaps[i].c)
		}
	}
}

func markDuplicate(dup, of *candidate.Candidate) {
	dup.Lock()
	dup.Status = candidate.Duplicate
	dup.DuplicateOf = of.Key().String()
	dup.Unlock()
}

// ResetAndRescan recomputes the space group of every candidate in the store
// (via gen, e.g. after an operator lowers tol_spg mid-session), restores
// every Duplicate candidate to Optimized, and runs a fresh scan against the
// recomputed fingerprints.
func (d *Detector) ResetAndRescan(gen *generator.Generator) {
	for _, c := range d.st.List() {
		gen.FindSpaceGroup(c)
	}
	for _, c := range d.st.List() {
		c.Lock()
		if c.Status == candidate.Duplicate {
			c.Status = candidate.Optimized
			c.DuplicateOf = ""
		}
		c.Unlock()
	}
	d.scanOnce()
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
