// Package memory implements the storage ports with in-process maps.
// It backs tests and library embedding where no database is wanted.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"eventlottery/internal/model"
	"eventlottery/internal/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	events map[string]*model.Event
	// regs holds every registration per event in insertion order.
	regs map[string][]*model.Registration
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		events: make(map[string]*model.Event),
		regs:   make(map[string][]*model.Registration),
	}
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(_ context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	s.events[event.ID] = &cp
	return nil
}

// GetEvent returns a copy of the event or storage.ErrNotFound.
func (s *Store) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *event
	return &cp, nil
}

// ListEvents returns copies of all events ordered by creation time descending.
func (s *Store) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, *e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

// SaveEvent writes back mutable event fields.
func (s *Store) SaveEvent(_ context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

// CreateRegistration inserts a new record, guarding active uniqueness.
func (s *Store) CreateRegistration(_ context.Context, reg *model.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findActive(reg.EventID, reg.EntrantID) != nil {
		return storage.ErrAlreadyRegistered
	}
	cp := *reg
	s.regs[reg.EventID] = append(s.regs[reg.EventID], &cp)
	return nil
}

// GetActiveRegistration returns the pair's active record or storage.ErrNotFound.
func (s *Store) GetActiveRegistration(_ context.Context, eventID, entrantID string) (*model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg := s.findActive(eventID, entrantID)
	if reg == nil {
		return nil, storage.ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

// GetRegistration returns the pair's most recent record regardless of
// status, or storage.ErrNotFound.
func (s *Store) GetRegistration(_ context.Context, eventID, entrantID string) (*model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regs := s.regs[eventID]
	for i := len(regs) - 1; i >= 0; i-- {
		if regs[i].EntrantID == entrantID {
			cp := *regs[i]
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListRegistrations returns copies of every record for the event in
// insertion order, terminal records included.
func (s *Store) ListRegistrations(_ context.Context, eventID string) ([]model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Registration, 0, len(s.regs[eventID]))
	for _, reg := range s.regs[eventID] {
		out = append(out, *reg)
	}
	return out, nil
}

// ListWaiting returns WAITING records in insertion order.
func (s *Store) ListWaiting(_ context.Context, eventID string) ([]model.Registration, error) {
	return s.listByStatus(eventID, model.StatusWaiting), nil
}

// ListSelected returns SELECTED records in insertion order.
func (s *Store) ListSelected(_ context.Context, eventID string) ([]model.Registration, error) {
	return s.listByStatus(eventID, model.StatusSelected), nil
}

// UpdateStatus performs the optimistic status transition described on the
// storage.RegistrationStore port.
func (s *Store) UpdateStatus(_ context.Context, eventID, entrantID string, from, to model.Status, at time.Time) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.findActive(eventID, entrantID)
	if reg == nil {
		return nil, storage.ErrNotFound
	}
	if reg.Status != from {
		return nil, storage.ErrStaleState
	}

	reg.Status = to
	stamp := at
	switch to {
	case model.StatusSelected:
		reg.SelectedAt = &stamp
	case model.StatusConfirmed, model.StatusDeclined:
		reg.RespondedAt = &stamp
	case model.StatusCancelled:
		reg.CancelledAt = &stamp
	}

	cp := *reg
	return &cp, nil
}

// ConfirmSelected flips the pair's SELECTED record to CONFIRMED and bumps
// the event's confirmed count under a single lock hold, so neither write
// can land without the other.
func (s *Store) ConfirmSelected(_ context.Context, eventID, entrantID string, at time.Time) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	reg := s.findActive(eventID, entrantID)
	if reg == nil {
		return nil, storage.ErrNotFound
	}
	if reg.Status != model.StatusSelected {
		return nil, storage.ErrStaleState
	}

	reg.Status = model.StatusConfirmed
	stamp := at
	reg.RespondedAt = &stamp
	event.ConfirmedCount++

	cp := *reg
	return &cp, nil
}

// findActive must be called with at least a read lock held.
func (s *Store) findActive(eventID, entrantID string) *model.Registration {
	for _, reg := range s.regs[eventID] {
		if reg.EntrantID == entrantID && reg.Active() {
			return reg
		}
	}
	return nil
}

func (s *Store) listByStatus(eventID string, status model.Status) []model.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Registration
	for _, reg := range s.regs[eventID] {
		if reg.Status == status {
			out = append(out, *reg)
		}
	}
	return out
}
