// Package draw implements the lottery draw: a bias-free random selection
// of waiting entrants to promote toward confirmed attendance. Selection
// uses a partial Fisher-Yates shuffle, so every subset of the requested
// size is equally likely regardless of waitlist position.
package draw

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"eventlottery/internal/admission"
	"eventlottery/internal/lifecycle"
	"eventlottery/internal/model"
	"eventlottery/internal/storage"
	"eventlottery/internal/waitlist"
)

// ErrInvalidCount is returned when the requested winner count is not positive.
var ErrInvalidCount = errors.New("draw count must be positive")

// ErrExceedsCapacity is returned when the requested winner count is
// larger than the event's remaining confirmed capacity.
var ErrExceedsCapacity = errors.New("draw count exceeds available capacity")

// ErrInsufficientWaiting is returned when fewer entrants are waiting
// than the requested winner count.
var ErrInsufficientWaiting = errors.New("not enough waiting entrants for draw")

// Outcome reports a completed draw.
type Outcome struct {
	Selected []model.Registration `json:"selected"`
	DrawnAt  time.Time            `json:"drawn_at"`
}

// Engine performs draws against the waitlist snapshot. A draw is
// all-or-nothing: if any precondition fails, no registrations change.
type Engine struct {
	store    storage.Store
	waitlist *waitlist.Store
	machine  *lifecycle.Machine
	locks    *admission.EventLocks

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewEngine constructs an Engine seeded from crypto/rand.
func NewEngine(store storage.Store, wl *waitlist.Store, machine *lifecycle.Machine, locks *admission.EventLocks) (*Engine, error) {
	seed, err := newSeed()
	if err != nil {
		return nil, err
	}
	return NewEngineSeeded(store, wl, machine, locks, seed), nil
}

// NewEngineSeeded constructs an Engine with a fixed seed. Tests use it
// for reproducible selections.
func NewEngineSeeded(store storage.Store, wl *waitlist.Store, machine *lifecycle.Machine, locks *admission.EventLocks, seed int64) *Engine {
	return &Engine{
		store:    store,
		waitlist: wl,
		machine:  machine,
		locks:    locks,
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

// Draw selects exactly count distinct waiting entrants and promotes each
// WAITING registration to SELECTED. The waitlist snapshot and the
// subsequent transitions happen inside the event's critical section, so
// a draw never observes a waitlist mutated mid-computation.
func (e *Engine) Draw(ctx context.Context, eventID string, count int, now time.Time) (*Outcome, error) {
	if count <= 0 {
		return nil, ErrInvalidCount
	}

	var outcome *Outcome
	err := e.locks.WithLock(ctx, eventID, func() error {
		event, err := e.store.GetEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("load event: %w", err)
		}
		if count > event.AvailableSlots(event.ConfirmedCount) {
			return ErrExceedsCapacity
		}

		waiting := e.waitlist.Members(eventID)
		if count > len(waiting) {
			return ErrInsufficientWaiting
		}

		selected := make([]model.Registration, 0, count)
		for _, entrantID := range e.pick(waiting, count) {
			reg, err := e.machine.MarkSelected(ctx, eventID, entrantID, now)
			if err != nil {
				return err
			}
			selected = append(selected, *reg)
		}
		outcome = &Outcome{Selected: selected, DrawnAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// pick runs a partial Fisher-Yates shuffle over pool: after k swaps the
// first k positions hold a uniformly random k-subset. pool is the
// caller's snapshot copy and may be reordered in place.
func (e *Engine) pick(pool []string, k int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := 0; i < k; i++ {
		j := i + e.rnd.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// newSeed generates a random seed using crypto/rand.
func newSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
