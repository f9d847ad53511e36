// Package waitlist maintains the per-event ordered membership index the
// admission and draw engines operate on. The index is derived from
// WAITING registrations; it keeps insertion order for audit, but draws
// never depend on position.
package waitlist

import "sync"

// AddResult reports the outcome of an Add call.
type AddResult int

const (
	// Added means the entrant was appended to the waitlist.
	Added AddResult = iota
	// AlreadyMember means the entrant was already on the waitlist and
	// nothing changed.
	AlreadyMember
)

// RemoveResult reports the outcome of a Remove call.
type RemoveResult int

const (
	// Removed means the entrant's entry was taken off the waitlist.
	Removed RemoveResult = iota
	// NotFound means the entrant was not on the waitlist.
	NotFound
)

// Store is a thread-safe waitlist index keyed by event. No entrant ever
// appears twice for the same event.
type Store struct {
	mu      sync.RWMutex
	byEvent map[string]*entries
}

type entries struct {
	order   []string
	members map[string]struct{}
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{byEvent: make(map[string]*entries)}
}

// Add appends the entrant to the event's waitlist. Adding an existing
// member is a distinct no-op, not an error: callers report it separately
// from success. Capacity checks belong to the caller; this layer only
// enforces uniqueness.
func (s *Store) Add(eventID, entrantID string) AddResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.byEvent[eventID]
	if !ok {
		list = &entries{members: make(map[string]struct{})}
		s.byEvent[eventID] = list
	}
	if _, member := list.members[entrantID]; member {
		return AlreadyMember
	}
	list.members[entrantID] = struct{}{}
	list.order = append(list.order, entrantID)
	return Added
}

// Remove takes the entrant off the event's waitlist.
func (s *Store) Remove(eventID, entrantID string) RemoveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.byEvent[eventID]
	if !ok {
		return NotFound
	}
	if _, member := list.members[entrantID]; !member {
		return NotFound
	}
	delete(list.members, entrantID)
	for i, id := range list.order {
		if id == entrantID {
			list.order = append(list.order[:i], list.order[i+1:]...)
			break
		}
	}
	return Removed
}

// Size returns the number of entrants waiting for the event.
func (s *Store) Size(eventID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.byEvent[eventID]
	if !ok {
		return 0
	}
	return len(list.order)
}

// Members returns the waiting entrants in insertion order. The result is
// a snapshot copy: iterating it concurrently with mutation never
// observes a torn state.
func (s *Store) Members(eventID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.byEvent[eventID]
	if !ok {
		return nil
	}
	out := make([]string, len(list.order))
	copy(out, list.order)
	return out
}
