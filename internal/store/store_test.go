package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/lattice"
)

func newCandidate(gen, id int) *candidate.Candidate {
	c := candidate.New(lattice.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90})
	c.Generation = gen
	c.IDNumber = id
	return c
}

func TestAppendAssignsIndex(t *testing.T) {
	st := New(4)
	c1 := newCandidate(1, 1)
	c2 := newCandidate(1, 2)
	st.Append(c1)
	st.Append(c2)
	assert.Equal(t, 0, c1.Index)
	assert.Equal(t, 1, c2.Index)
	assert.Equal(t, 2, st.Size())
}

func TestAppendEmitsEvents(t *testing.T) {
	st := New(4)
	c := newCandidate(1, 1)
	st.Append(c)

	e1 := <-st.Events()
	assert.Equal(t, c, e1.NewCandidate)
	e2 := <-st.Events()
	assert.True(t, e2.CountChanged)
	assert.Equal(t, 1, e2.Count)
}

func TestByKey(t *testing.T) {
	st := New(4)
	c := newCandidate(2, 5)
	st.Append(c)

	got := st.ByKey(candidate.Key{Generation: 2, ID: 5})
	assert.Same(t, c, got)

	assert.Nil(t, st.ByKey(candidate.Key{Generation: 9, ID: 9}))
}

func TestMaxIDInGeneration(t *testing.T) {
	st := New(4)
	st.Append(newCandidate(1, 1))
	st.Append(newCandidate(1, 5))
	st.Append(newCandidate(2, 1))

	assert.Equal(t, 5, st.MaxIDInGeneration(1))
	assert.Equal(t, 1, st.MaxIDInGeneration(2))
	assert.Equal(t, 0, st.MaxIDInGeneration(3))
}

func TestRemove(t *testing.T) {
	st := New(4)
	c1 := newCandidate(1, 1)
	c2 := newCandidate(1, 2)
	st.Append(c1)
	st.Append(c2)

	require.True(t, st.Remove(c1))
	assert.False(t, st.Contains(c1))
	assert.True(t, st.Contains(c2))
	assert.False(t, st.Remove(c1))
}

func TestPopFirst(t *testing.T) {
	st := New(4)
	c1 := newCandidate(1, 1)
	st.Append(c1)

	got, ok := st.PopFirst()
	require.True(t, ok)
	assert.Same(t, c1, got)

	_, ok = st.PopFirst()
	assert.False(t, ok)
}

func TestListIsShallowCopy(t *testing.T) {
	st := New(4)
	st.Append(newCandidate(1, 1))

	list := st.List()
	list[0] = nil
	assert.Equal(t, 1, st.Size())
}

func TestResetAndDeleteAllStructures(t *testing.T) {
	st := New(4)
	st.Append(newCandidate(1, 1))
	st.Reset()
	assert.Equal(t, 0, st.Size())

	st.Append(newCandidate(1, 1))
	st.DeleteAllStructures()
	assert.Equal(t, 0, st.Size())
}
