// Package store implements the process-wide Candidate registry: the
// authoritative, thread-safe list of every candidate and its lifecycle
// state. The store's own lock protects membership only; each Candidate
// guards its own fields.
package store

import (
	"sync"

	"github.com/xtalopt/engine/internal/candidate"
)

// Event is a membership-change notification emitted after the store's write
// lock is released, never from inside it.
type Event struct {
	NewCandidate    *candidate.Candidate // set for a "new_structure_added" event
	CountChanged    bool
	Count           int
}

// Store is the candidate registry. It holds candidates by value-like
// ownership (pointers with stable identity, never reparented) so that
// indices stay meaningful across the store's lifetime.
type Store struct {
	mu   sync.RWMutex
	list []*candidate.Candidate

	// events is a buffered notification channel; emission happens after the
	// write lock is released, and an event that finds the buffer full is
	// dropped rather than blocking the emitting goroutine.
	events chan Event
}

// New creates an empty Store. eventBuffer sizes the notification channel.
func New(eventBuffer int) *Store {
	return &Store{
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the membership-notification channel. No engine component
// reads it; the scheduler re-reads the membership list on every tick.
func (s *Store) Events() <-chan Event {
	return s.events
}

// LockForRead acquires the store's read lock.
func (s *Store) LockForRead() { s.mu.RLock() }

// LockForWrite acquires the store's write lock.
func (s *Store) LockForWrite() { s.mu.Lock() }

// Unlock releases the store's write lock. Since Go's RWMutex distinguishes
// read/write unlock, callers pair LockForWrite with Unlock and LockForRead
// with UnlockRead.
func (s *Store) Unlock() { s.mu.Unlock() }

// UnlockRead releases the store's read lock.
func (s *Store) UnlockRead() { s.mu.RUnlock() }

// Append publishes a new candidate under the write lock, assigning it the
// next dense index, then emits new_structure_added and
// structure_count_changed after releasing the lock.
func (s *Store) Append(c *candidate.Candidate) {
	s.mu.Lock()
	c.Index = len(s.list)
	s.list = append(s.list, c)
	n := len(s.list)
	s.mu.Unlock()

	s.emit(Event{NewCandidate: c})
	s.emit(Event{CountChanged: true, Count: n})
}

// AppendAndUnlock publishes a write-locked candidate, releasing its lock
// atomically with insertion so no other goroutine can observe it
// half-initialized.
func (s *Store) AppendAndUnlock(c *candidate.Candidate) {
	s.mu.Lock()
	c.Index = len(s.list)
	s.list = append(s.list, c)
	n := len(s.list)
	s.mu.Unlock()
	c.Unlock()

	s.emit(Event{NewCandidate: c})
	s.emit(Event{CountChanged: true, Count: n})
}

func (s *Store) emit(e Event) {
	select {
	case s.events <- e:
	default:
		// A full buffer means the scheduler's event loop has fallen behind;
		// dropping a count-changed ping is harmless since the scheduler
		// re-derives counts directly from the store when it wakes.
	}
}

// PopFirst dequeues the oldest still-present candidate. Returns false if the
// store is empty.
func (s *Store) PopFirst() (*candidate.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.list) == 0 {
		return nil, false
	}
	c := s.list[0]
	s.list = s.list[1:]
	return c, true
}

// Remove deletes c from the membership list if present.
func (s *Store) Remove(c *candidate.Candidate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.list {
		if x == c {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether c is currently a member.
func (s *Store) Contains(c *candidate.Candidate) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, x := range s.list {
		if x == c {
			return true
		}
	}
	return false
}

// Size returns the current membership count.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

// At returns the candidate at position i.
func (s *Store) At(i int) *candidate.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list[i]
}

// List returns a shallow copy of the membership list, safe for the caller
// to range over without holding the store's lock.
func (s *Store) List() []*candidate.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*candidate.Candidate, len(s.list))
	copy(out, s.list)
	return out
}

// ByKey returns the candidate with the given (generation, id_number), or
// nil if none is present.
func (s *Store) ByKey(k candidate.Key) *candidate.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.list {
		if c.Generation == k.Generation && c.IDNumber == k.ID {
			return c
		}
	}
	return nil
}

// MaxIDInGeneration returns the highest id_number among candidates in the
// given generation, or 0 if none exist — the basis for the next
// initialize_and_add allocation.
func (s *Store) MaxIDInGeneration(generation int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, c := range s.list {
		c.RLock()
		if c.Generation == generation && c.IDNumber > max {
			max = c.IDNumber
		}
		c.RUnlock()
	}
	return max
}

// Reset empties the membership list without destroying the candidates; the
// caller retains ownership of anything it captured beforehand.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
}

// DeleteAllStructures disowns and discards every candidate.
func (s *Store) DeleteAllStructures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
}
