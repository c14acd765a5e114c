package generator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/config"
	"github.com/xtalopt/engine/internal/lattice"
)

func testSessionConfig() *config.SessionConfig {
	return &config.SessionConfig{
		A:     config.Bounds{Min: 3, Max: 6},
		B:     config.Bounds{Min: 3, Max: 6},
		C:     config.Bounds{Min: 3, Max: 6},
		Alpha: config.Bounds{Min: 80, Max: 100},
		Beta:  config.Bounds{Min: 80, Max: 100},
		Gamma: config.Bounds{Min: 80, Max: 100},

		VolumeMode: config.VolumeRange,
		VolumeMin:  20,
		VolumeMax:  500,

		PCross: 50,
		PStrip: 25,
		PPerm:  25,

		PopSize:              10,
		CrossMinContribution: 25,

		StrippleAmplitudeMin:   0.05,
		StrippleAmplitudeMax:   0.1,
		StripplePeriod1:        1,
		StripplePeriod2:        1,
		StrippleStrainStdevMin: 0,
		StrippleStrainStdevMax: 0.05,

		PermustrainExchanges:      1,
		PermustrainStrainStdevMax: 0.05,

		TolSpg: 0.1,
	}
}

func testComposition() candidate.Composition {
	return candidate.Composition{14: 2, 8: 4}
}

func TestGenerateRandomProducesValidComposition(t *testing.T) {
	cfg := testSessionConfig()
	g := New(cfg, testComposition())
	rng := rand.New(rand.NewSource(1))

	c, err := g.GenerateRandom(rng, 1)
	require.NoError(t, err)
	assert.Equal(t, candidate.WaitingForOptimization, c.Status)
	assert.Len(t, c.Atoms, 6)

	counts := map[int]int{}
	for _, a := range c.Atoms {
		counts[a.AtomicNumber]++
	}
	assert.Equal(t, 2, counts[14])
	assert.Equal(t, 4, counts[8])
}

func TestGenerateRandomRespectsFixedVolume(t *testing.T) {
	cfg := testSessionConfig()
	cfg.VolumeMode = config.VolumeFixed
	cfg.VolumeFixed = 100
	g := New(cfg, testComposition())
	rng := rand.New(rand.NewSource(2))

	c, err := g.GenerateRandom(rng, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100, c.Volume(), 1e-3)
}

func TestGenerateRandomFailsWhenMinDistanceUnsatisfiable(t *testing.T) {
	cfg := testSessionConfig()
	cfg.A = config.Bounds{Min: 0.5, Max: 0.5}
	cfg.B = config.Bounds{Min: 0.5, Max: 0.5}
	cfg.C = config.Bounds{Min: 0.5, Max: 0.5}
	cfg.Alpha = config.Bounds{Min: 90, Max: 90}
	cfg.Beta = config.Bounds{Min: 90, Max: 90}
	cfg.Gamma = config.Bounds{Min: 90, Max: 90}
	cfg.VolumeMode = config.VolumeFixed
	cfg.VolumeFixed = 0.125
	cfg.UseMinInteratomicDistance = true
	cfg.MinInteratomicDistance = 100

	g := New(cfg, testComposition())
	rng := rand.New(rand.NewSource(3))

	_, err := g.GenerateRandom(rng, 1)
	assert.Error(t, err)
}

func TestCheckRejectsOutOfBoundsCell(t *testing.T) {
	cfg := testSessionConfig()
	cfg.VolumeMode = config.VolumeFixed
	cfg.VolumeFixed = 1000
	g := New(cfg, testComposition())

	c := candidate.New(lattice.Cell{A: 100, B: 100, C: 100, Alpha: 90, Beta: 90, Gamma: 90})
	assert.False(t, g.Check(c))
}

func TestCheckSalvagesOutOfRangeVolume(t *testing.T) {
	cfg := testSessionConfig()
	g := New(cfg, testComposition())

	c := candidate.New(lattice.Cell{A: 4, B: 4, C: 4, Alpha: 90, Beta: 90, Gamma: 90})
	ok := g.Check(c)
	require.True(t, ok)
	assert.GreaterOrEqual(t, c.Volume(), cfg.VolumeMin)
	assert.LessOrEqual(t, c.Volume(), cfg.VolumeMax)
}

func TestCheckRejectsNonFiniteCell(t *testing.T) {
	cfg := testSessionConfig()
	g := New(cfg, testComposition())
	c := candidate.New(lattice.Cell{A: 0, B: 4, C: 4, Alpha: 90, Beta: 90, Gamma: 90})
	assert.False(t, g.Check(c))
}

func TestFindSpaceGroupIsDeterministic(t *testing.T) {
	cfg := testSessionConfig()
	g := New(cfg, testComposition())
	c := candidate.New(lattice.Cell{A: 4, B: 4, C: 4, Alpha: 90, Beta: 90, Gamma: 90})

	g.FindSpaceGroup(c)
	sg1 := c.Fingerprint.Spacegroup
	g.FindSpaceGroup(c)
	assert.Equal(t, sg1, c.Fingerprint.Spacegroup)
}
