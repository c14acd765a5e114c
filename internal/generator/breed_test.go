package generator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtalopt/engine/internal/candidate"
)

func TestBreedRejectsTooSmallPopulation(t *testing.T) {
	cfg := testSessionConfig()
	g := New(cfg, testComposition())
	rng := rand.New(rand.NewSource(1))

	pop := []*candidate.Candidate{optimizedParent(rng, g, 1), optimizedParent(rng, g, 1)}
	_, err := g.Breed(rng, pop)
	assert.Error(t, err)
}

func TestBreedProducesValidChild(t *testing.T) {
	cfg := testSessionConfig()
	cfg.CrossMinContribution = 1
	g := New(cfg, testComposition())
	rng := rand.New(rand.NewSource(21))

	pop := make([]*candidate.Candidate, 5)
	for i := range pop {
		pop[i] = optimizedParent(rng, g, 1)
	}

	child, err := g.Breed(rng, pop)
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Equal(t, candidate.WaitingForOptimization, child.Status)
	assert.NotEmpty(t, child.Parents)
}

func TestDrawOperatorRespectsWeights(t *testing.T) {
	cfg := testSessionConfig()
	cfg.PCross = 100
	cfg.PStrip = 0
	cfg.PPerm = 0
	g := New(cfg, testComposition())
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		assert.Equal(t, opCrossover, g.drawOperator(rng))
	}
}
