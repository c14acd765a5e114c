package spacegroup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xtalopt/engine/internal/lattice"
)

func TestDetectIsDeterministic(t *testing.T) {
	c := lattice.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90}
	atoms := []lattice.Atom{{AtomicNumber: 14, X: 0, Y: 0, Z: 0}}

	a := Detect(c, atoms, 0.01)
	b := Detect(c, atoms, 0.01)
	assert.Equal(t, a, b)
}

func TestDetectWithinRange(t *testing.T) {
	c := lattice.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90}
	sg := Detect(c, nil, 0.01)
	assert.GreaterOrEqual(t, sg, uint(1))
	assert.LessOrEqual(t, sg, uint(230))
}

func TestDetectCollidesWithinTolerance(t *testing.T) {
	c1 := lattice.Cell{A: 5.0001, B: 5.0, C: 5.0, Alpha: 90, Beta: 90, Gamma: 90}
	c2 := lattice.Cell{A: 5.0002, B: 5.0, C: 5.0, Alpha: 90, Beta: 90, Gamma: 90}
	atoms := []lattice.Atom{{AtomicNumber: 14}}

	assert.Equal(t, Detect(c1, atoms, 0.01), Detect(c2, atoms, 0.01))
}

func TestDetectDiffersBeyondTolerance(t *testing.T) {
	c1 := lattice.Cell{A: 5.0, B: 5.0, C: 5.0, Alpha: 90, Beta: 90, Gamma: 90}
	c2 := lattice.Cell{A: 6.0, B: 5.0, C: 5.0, Alpha: 90, Beta: 90, Gamma: 90}
	atoms := []lattice.Atom{{AtomicNumber: 14}}

	assert.NotEqual(t, Detect(c1, atoms, 0.01), Detect(c2, atoms, 0.01))
}

func TestDetectDefaultsTolWhenNonPositive(t *testing.T) {
	c := lattice.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90}
	a := Detect(c, nil, 0)
	b := Detect(c, nil, -1)
	assert.Equal(t, a, b)
}
