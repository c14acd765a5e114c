package generator

import (
	"sync"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/store"
)

// NamingMutex serializes the id_number/path/space-group assignment that
// must happen exactly once, in generation order, for every candidate
// entering the store. It is owned by the engine and shared across every
// Generator call site; Generator itself holds no lock state.
type NamingMutex struct {
	mu sync.Mutex
}

// InitializeAndAdd assigns c's id_number (the next free one within its
// generation), computes its space group, derives its on-disk path, and
// publishes it to st — all while holding the naming lock, so two
// concurrently generated candidates in the same generation never collide
// on id_number.
func (g *Generator) InitializeAndAdd(n *NamingMutex, st *store.Store, c *candidate.Candidate) {
	n.mu.Lock()
	defer n.mu.Unlock()

	c.IDNumber = st.MaxIDInGeneration(c.Generation) + 1
	g.FindSpaceGroup(c)
	c.LocalPath = c.GxI()

	st.Append(c)
}
