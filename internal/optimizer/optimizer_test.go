package optimizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/lattice"
)

func testCandidate() *candidate.Candidate {
	c := candidate.New(lattice.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90})
	c.Generation = 1
	c.IDNumber = 1
	c.Atoms = []lattice.Atom{{AtomicNumber: 14, X: 0, Y: 0, Z: 0}}
	return c
}

func TestSymbolForZKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "Si", symbolForZ(14))
	assert.Equal(t, "X99", symbolForZ(99))
}

func TestVASPWriteInputFilesWritesAllTemplates(t *testing.T) {
	dir := t.TempDir()
	v := NewVASP("ENCUT=400\n", "Gamma\n", 2)
	require.NoError(t, v.WriteInputFiles(testCandidate(), dir))

	for _, name := range []string{"POSCAR", "INCAR", "KPOINTS"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "expected %s to be written", name)
	}
}

func TestVASPReadParsesFreeEnergy(t *testing.T) {
	dir := t.TempDir()
	outcar := "some header\nFREE ENERGY  TOTEN  = -123.456789 eV\nfooter\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "OUTCAR"), []byte(outcar), 0644))

	v := NewVASP("", "", 2)
	c := testCandidate()
	require.NoError(t, v.Read(c, dir))
	assert.InDelta(t, -123.456789, c.Energy, 1e-6)
	assert.InDelta(t, -123.456789, c.Enthalpy, 1e-6)
}

func TestVASPReadMissingLineFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "OUTCAR"), []byte("nothing here\n"), 0644))

	v := NewVASP("", "", 2)
	assert.Error(t, v.Read(testCandidate(), dir))
}

func TestGULPReadParsesLatticeEnergy(t *testing.T) {
	dir := t.TempDir()
	got := "Total lattice energy  = -45.0 eV\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gulp.got"), []byte(got), 0644))

	g := NewGULP("")
	c := testCandidate()
	require.NoError(t, g.Read(c, dir))
	assert.InDelta(t, -45.0, c.Energy, 1e-9)
}

func TestGULPPollAlwaysFinished(t *testing.T) {
	g := NewGULP("")
	state, err := g.Poll(nil, nil, "dir", "local")
	require.NoError(t, err)
	assert.Equal(t, JobFinished, state)
}

func TestPWscfReadConvertsRydbergToEV(t *testing.T) {
	dir := t.TempDir()
	out := "!    total energy              =     -10.0000000 Ry\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.out"), []byte(out), 0644))

	p := NewPWscf("", 2)
	c := testCandidate()
	require.NoError(t, p.Read(c, dir))
	assert.InDelta(t, -10.0*ryToEV, c.Energy, 1e-6)
}

func TestCASTEPReadUsesEnthalpyDirectly(t *testing.T) {
	dir := t.TempDir()
	out := "Final Enthalpy     =   -99.5 eV\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.castep"), []byte(out), 0644))

	cas := NewCASTEP("", "", 2)
	c := testCandidate()
	require.NoError(t, cas.Read(c, dir))
	assert.InDelta(t, -99.5, c.Enthalpy, 1e-9)
}

func TestStepsNormalizesBelowOne(t *testing.T) {
	v := NewVASP("", "", 0)
	assert.Equal(t, 1, v.Steps())

	v2 := NewVASP("", "", 3)
	assert.Equal(t, 3, v2.Steps())
}

func TestGULPStepsAlwaysOne(t *testing.T) {
	g := NewGULP("")
	assert.Equal(t, 1, g.Steps())
}

func TestGetSetData(t *testing.T) {
	v := NewVASP("", "", 2)
	_, ok := v.GetData("ENCUT")
	assert.False(t, ok)

	v.SetData("ENCUT", "520")
	got, ok := v.GetData("ENCUT")
	require.True(t, ok)
	assert.Equal(t, "520", got)
}
