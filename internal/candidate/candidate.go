// Package candidate defines the Candidate record and its lifecycle states —
// the unit of work the generator produces, the scheduler drives through
// relaxation, and the duplicate detector compares.
package candidate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xtalopt/engine/internal/lattice"
)

// Status is a Candidate's lifecycle state.
type Status string

const (
	Empty                  Status = "Empty"
	WaitingForOptimization Status = "WaitingForOptimization"
	Submitted              Status = "Submitted"
	InProcess              Status = "InProcess"
	StepOptimized          Status = "StepOptimized"
	Optimized              Status = "Optimized"
	Duplicate              Status = "Duplicate"
	Error                  Status = "Error"
	Killed                 Status = "Killed"
	Removed                Status = "Removed"
)

// Composition is the immutable atomic-number -> count map fixed at session
// start.
type Composition map[int]int

// Sorted returns the composition's atomic numbers in ascending order,
// matching the "Composition" data-key invariant optimizer plugins check.
func (c Composition) Sorted() []int {
	nums := make([]int, 0, len(c))
	for z := range c {
		nums = append(nums, z)
	}
	for i := 1; i < len(nums); i++ {
		for j := i; j > 0 && nums[j-1] > nums[j]; j-- {
			nums[j-1], nums[j] = nums[j], nums[j-1]
		}
	}
	return nums
}

// CanonicalString renders the composition as a sorted "Z:count,..." list —
// the exact form the "Composition" data key must match.
func (c Composition) CanonicalString() string {
	parts := make([]string, 0, len(c))
	for _, z := range c.Sorted() {
		parts = append(parts, fmt.Sprintf("%d:%d", z, c[z]))
	}
	return strings.Join(parts, ",")
}

// Equal reports whether two compositions hold the same atomic numbers and
// counts.
func (c Composition) Equal(other Composition) bool {
	if len(c) != len(other) {
		return false
	}
	for z, n := range c {
		if other[z] != n {
			return false
		}
	}
	return true
}

// Key identifies a Candidate by its (generation, id_number) pair — the only
// form cross-references such as duplicate_of use, never a pointer.
type Key struct {
	Generation int
	ID         int
}

// String renders the key in the engine's "GxI" convention.
func (k Key) String() string {
	return fmt.Sprintf("%dx%d", k.Generation, k.ID)
}

// Fingerprint is the lazily-computed, mutation-invalidated summary the
// duplicate detector compares.
type Fingerprint struct {
	Spacegroup uint
	Enthalpy   float64
	Volume     float64
	Valid      bool
}

// Candidate is one crystal-structure proposal. It carries its own
// readers-writer lock guarding its own fields; the store's lock protects
// only list membership.
type Candidate struct {
	mu sync.RWMutex

	IDNumber   int
	Generation int
	Index      int
	Parents    string

	Cell  lattice.Cell
	Atoms []lattice.Atom

	Energy   float64
	Enthalpy float64
	PV       float64

	Status      Status
	CurrentStep int
	FailCount   int

	Fingerprint Fingerprint
	DuplicateOf string

	LocalPath  string
	RemotePath string

	OptTimerStart time.Time
	OptTimerEnd   time.Time
}

// New constructs an Empty candidate with the given cell. Atoms are filled in
// by the generator before the candidate is published to the store.
func New(cell lattice.Cell) *Candidate {
	return &Candidate{
		Cell:        cell,
		Status:      Empty,
		CurrentStep: 1,
	}
}

// Key returns the candidate's (generation, id_number) key.
func (c *Candidate) Key() Key {
	return Key{Generation: c.Generation, ID: c.IDNumber}
}

// Lock acquires the candidate's write lock. Callers must acquire candidate
// locks in ascending Index order to avoid deadlock (see engine lock
// ordering).
func (c *Candidate) Lock()    { c.mu.Lock() }
func (c *Candidate) Unlock()  { c.mu.Unlock() }
func (c *Candidate) RLock()   { c.mu.RLock() }
func (c *Candidate) RUnlock() { c.mu.RUnlock() }

// InvalidateFingerprint marks the fingerprint stale. Called by any code path
// that mutates cell geometry, atoms, enthalpy, or spacegroup.
func (c *Candidate) InvalidateFingerprint() {
	c.Fingerprint.Valid = false
}

// Volume returns the current cell volume in Å³.
func (c *Candidate) Volume() float64 {
	return lattice.Volume(c.Cell)
}

// GxI formats the candidate's (generation, id) pair in the engine's
// directory-naming convention, zero-padded to 5 digits.
func (c *Candidate) GxI() string {
	return fmt.Sprintf("%05dx%05d", c.Generation, c.IDNumber)
}
