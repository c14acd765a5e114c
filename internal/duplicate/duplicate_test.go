package duplicate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/config"
	"github.com/xtalopt/engine/internal/generator"
	"github.com/xtalopt/engine/internal/lattice"
	"github.com/xtalopt/engine/internal/store"
)

func optimizedCandidate(gen, id int, sg uint, enthalpy, volume float64) *candidate.Candidate {
	c := candidate.New(lattice.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90})
	c.Generation = gen
	c.IDNumber = id
	c.Status = candidate.Optimized
	c.Fingerprint.Spacegroup = sg
	c.Fingerprint.Enthalpy = enthalpy
	c.Fingerprint.Volume = volume
	c.Enthalpy = enthalpy
	return c
}

func TestScanMarksHigherEnthalpyAsDuplicate(t *testing.T) {
	st := store.New(8)
	low := optimizedCandidate(1, 1, 5, -10.0, 100.0)
	high := optimizedCandidate(1, 2, 5, -9.999, 100.0)
	st.Append(low)
	st.Append(high)

	d := New(st, 0.01, 1.0)
	d.Scan(context.Background())

	assert.Equal(t, candidate.Optimized, low.Status)
	assert.Equal(t, candidate.Duplicate, high.Status)
	assert.Equal(t, low.Key().String(), high.DuplicateOf)
}

func TestScanIgnoresDifferentSpacegroups(t *testing.T) {
	st := store.New(8)
	a := optimizedCandidate(1, 1, 5, -10.0, 100.0)
	b := optimizedCandidate(1, 2, 9, -10.0, 100.0)
	st.Append(a)
	st.Append(b)

	d := New(st, 0.01, 1.0)
	d.Scan(context.Background())

	assert.Equal(t, candidate.Optimized, a.Status)
	assert.Equal(t, candidate.Optimized, b.Status)
}

func TestScanIgnoresNonOptimizedCandidates(t *testing.T) {
	st := store.New(8)
	a := optimizedCandidate(1, 1, 5, -10.0, 100.0)
	b := optimizedCandidate(1, 2, 5, -10.0, 100.0)
	b.Status = candidate.WaitingForOptimization
	st.Append(a)
	st.Append(b)

	d := New(st, 0.01, 1.0)
	d.Scan(context.Background())

	assert.Equal(t, candidate.Optimized, a.Status)
	assert.Equal(t, candidate.WaitingForOptimization, b.Status)
}

func TestScanIgnoresZeroSpacegroup(t *testing.T) {
	st := store.New(8)
	a := optimizedCandidate(1, 1, 0, -10.0, 100.0)
	b := optimizedCandidate(1, 2, 0, -10.0, 100.0)
	st.Append(a)
	st.Append(b)

	d := New(st, 0.01, 1.0)
	d.Scan(context.Background())

	assert.Equal(t, candidate.Optimized, a.Status)
	assert.Equal(t, candidate.Optimized, b.Status)
}

func TestScanRespectsVolumeTolerance(t *testing.T) {
	st := store.New(8)
	a := optimizedCandidate(1, 1, 5, -10.0, 100.0)
	b := optimizedCandidate(1, 2, 5, -10.0, 110.0)
	st.Append(a)
	st.Append(b)

	d := New(st, 0.01, 1.0)
	d.Scan(context.Background())

	assert.Equal(t, candidate.Optimized, a.Status)
	assert.Equal(t, candidate.Optimized, b.Status)
}

func TestResetAndRescanRestoresOptimizedThenRescans(t *testing.T) {
	st := store.New(8)
	dup := optimizedCandidate(1, 1, 5, -10.0, 100.0)
	dup.Status = candidate.Duplicate
	dup.DuplicateOf = "1x2"
	st.Append(dup)

	cfg := &config.SessionConfig{TolSpg: 0.1}
	gen := generator.New(cfg, candidate.Composition{})

	d := New(st, 0.01, 1.0)
	d.ResetAndRescan(gen)

	require.Equal(t, candidate.Optimized, dup.Status)
	assert.Equal(t, "", dup.DuplicateOf)
}
