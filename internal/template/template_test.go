package template

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/lattice"
)

func testCandidate() *candidate.Candidate {
	c := candidate.New(lattice.Cell{A: 5, B: 6, C: 7, Alpha: 90, Beta: 90, Gamma: 90})
	c.Generation = 2
	c.IDNumber = 5
	c.Atoms = []lattice.Atom{
		{AtomicNumber: 14, X: 0, Y: 0, Z: 0},
		{AtomicNumber: 8, X: 1, Y: 1, Z: 1},
	}
	return c
}

func symbolForZ(z int) string {
	switch z {
	case 14:
		return "Si"
	case 8:
		return "O"
	}
	return "X"
}

func TestExpandScalarKeywords(t *testing.T) {
	c := testCandidate()
	out := Expand("%A% %GEN% %ID% %GXI% %NUMATOMS%", c, symbolForZ)
	fields := strings.Fields(out)
	require.Len(t, fields, 5)
	assert.Equal(t, "5.00000000", fields[0])
	assert.Equal(t, "2", fields[1])
	assert.Equal(t, "5", fields[2])
	assert.Equal(t, "2x5", fields[3])
	assert.Equal(t, "2", fields[4])
}

func TestExpandLeavesUnknownKeywordUntouched(t *testing.T) {
	out := Expand("%NOTAKEYWORD%", testCandidate(), symbolForZ)
	assert.Equal(t, "%NOTAKEYWORD%", out)
}

func TestExpandVolume(t *testing.T) {
	c := testCandidate()
	out := Expand("%VOLUME%", c, symbolForZ)
	assert.InDelta(t, lattice.Volume(c.Cell), parseFirstFloat(t, out), 1e-6)
}

func TestExpandCoordsFracContainsSymbols(t *testing.T) {
	out := Expand("%COORDSFRAC%", testCandidate(), symbolForZ)
	assert.Contains(t, out, "Si")
	assert.Contains(t, out, "O")
}

func TestExpandCoordsFracIdNumbersAtoms(t *testing.T) {
	out := Expand("%COORDSFRACID%", testCandidate(), symbolForZ)
	assert.Contains(t, out, "Si1")
	assert.Contains(t, out, "O2")
}

func TestExpandPOSCARStructure(t *testing.T) {
	out := Expand("%POSCAR%", testCandidate(), symbolForZ)
	lines := strings.Split(out, "\n")
	require.True(t, len(lines) >= 8)
	assert.Equal(t, "2x5", lines[0])
	assert.Equal(t, "O Si", lines[5])
	assert.Equal(t, "1 1", lines[6])
	assert.Equal(t, "Direct", lines[7])
}

func TestExpandRadAndDegAgree(t *testing.T) {
	c := testCandidate()
	deg := Expand("%ALPHADEG%", c, symbolForZ)
	assert.Equal(t, "90.00000000", deg)
	rad := Expand("%ALPHARAD%", c, symbolForZ)
	assert.InDelta(t, parseFirstFloat(t, deg)*math.Pi/180, parseFirstFloat(t, rad), 1e-8)
}

func TestExpandCellMatrixAngstromAndBohr(t *testing.T) {
	c := testCandidate()
	ang := Expand("%CELLMATRIXANGSTROM%", c, symbolForZ)
	bohr := Expand("%CELLMATRIXBOHR%", c, symbolForZ)

	angLines := strings.Split(ang, "\n")
	bohrLines := strings.Split(bohr, "\n")
	require.Len(t, angLines, 3)
	require.Len(t, bohrLines, 3)

	a0 := parseFirstFloat(t, strings.Fields(angLines[0])[0])
	b0 := parseFirstFloat(t, strings.Fields(bohrLines[0])[0])
	assert.InDelta(t, a0*bohrPerAngstrom, b0, 1e-6)
}

func TestExpandCellVectorKeywordsEachRenderOneRow(t *testing.T) {
	c := testCandidate()
	matrix := Expand("%CELLMATRIXANGSTROM%", c, symbolForZ)
	matrixLines := strings.Split(matrix, "\n")
	require.Len(t, matrixLines, 3)

	v1 := Expand("%CELLVECTOR1ANGSTROM%", c, symbolForZ)
	v2 := Expand("%CELLVECTOR2ANGSTROM%", c, symbolForZ)
	v3 := Expand("%CELLVECTOR3ANGSTROM%", c, symbolForZ)

	assert.Equal(t, matrixLines[0], v1)
	assert.Equal(t, matrixLines[1], v2)
	assert.Equal(t, matrixLines[2], v3)

	v1bohr := Expand("%CELLVECTOR1BOHR%", c, symbolForZ)
	assert.NotEqual(t, v1, v1bohr)
}

func parseFirstFloat(t *testing.T, s string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	require.NoError(t, err)
	return v
}
