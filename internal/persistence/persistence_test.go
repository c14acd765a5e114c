package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/lattice"
)

func TestSaveAndLoadSessionRoundTrip(t *testing.T) {
	root := t.TempDir()
	err := SaveSession(root, SessionState{Version: 1, SessionRoot: root, CandidateCount: 3})
	require.NoError(t, err)

	got, err := LoadSession(root)
	require.NoError(t, err)
	assert.True(t, got.SaveSuccessful)
	assert.Equal(t, 3, got.CandidateCount)
}

func TestLoadSessionFallsBackToOldOnCorruptPrimary(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, SaveSession(root, SessionState{Version: 1, CandidateCount: 1}))
	require.NoError(t, SaveSession(root, SessionState{Version: 1, CandidateCount: 2}))

	// Corrupt the primary file; the .old rotation from the second save
	// should still hold the first save's contents.
	primary := filepath.Join(root, sessionStateName)
	require.NoError(t, os.WriteFile(primary, []byte("not: [valid yaml"), 0644))

	got, err := LoadSession(root)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CandidateCount)
}

func TestLoadSessionMissingBothFails(t *testing.T) {
	root := t.TempDir()
	_, err := LoadSession(root)
	assert.Error(t, err)
}

func TestSaveAndLoadCandidateRoundTrip(t *testing.T) {
	root := t.TempDir()
	c := candidate.New(lattice.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90})
	c.Generation = 1
	c.IDNumber = 2
	c.LocalPath = CandidateDirName(c.Generation, c.IDNumber)
	c.Enthalpy = -12.5
	c.Atoms = []lattice.Atom{{AtomicNumber: 14, X: 1, Y: 1, Z: 1}}

	require.NoError(t, SaveCandidate(root, c))

	state, err := LoadCandidate(root, c.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, 2, state.IDNumber)
	assert.InDelta(t, -12.5, state.Enthalpy, 1e-9)
	require.Len(t, state.Atoms, 1)
	assert.Equal(t, 14, state.Atoms[0].AtomicNumber)
}

func TestLoadCandidateFallsBackToLegacyName(t *testing.T) {
	root := t.TempDir()
	dir := "00001x00003"
	dirPath := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(dirPath, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dirPath, legacyCandidateName), []byte("id_number: 3\ngeneration: 1\n"), 0644))

	state, err := LoadCandidate(root, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, state.IDNumber)
}

func TestCandidateDirName(t *testing.T) {
	assert.Equal(t, "00001x00002", CandidateDirName(1, 2))
}

func TestAtomicWriteRotatesExistingToOld(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f")

	require.NoError(t, atomicWrite(path, []byte("first")))
	require.NoError(t, atomicWrite(path, []byte("second")))

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(cur))

	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, "first", string(old))
}
