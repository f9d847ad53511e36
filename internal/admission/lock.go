package admission

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultLockWait bounds how long an operation waits for an event's
// critical section before giving up with ErrBusy.
const DefaultLockWait = 2 * time.Second

// ErrBusy is returned when the per-event lock could not be acquired
// within the configured wait. Callers may retry.
var ErrBusy = errors.New("event is busy, try again")

// EventLocks serializes state-changing operations per event. Operations
// on different events never block each other; lock waits are bounded so
// a stuck caller surfaces as ErrBusy instead of a deadlock. Entries are
// reference-counted and dropped once no goroutine holds or waits on
// them, so the map tracks events under contention, not every event ever
// touched.
type EventLocks struct {
	mu    sync.Mutex
	locks map[string]*eventLock
	wait  time.Duration
}

type eventLock struct {
	sem  chan struct{}
	refs int
}

// NewEventLocks constructs an EventLocks. A non-positive wait falls back
// to DefaultLockWait.
func NewEventLocks(wait time.Duration) *EventLocks {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &EventLocks{locks: make(map[string]*eventLock), wait: wait}
}

// Acquire takes the event's lock, returning a release func. It fails
// with ErrBusy after the configured wait and with the context error if
// the context ends first.
func (l *EventLocks) Acquire(ctx context.Context, eventID string) (func(), error) {
	l.mu.Lock()
	el, ok := l.locks[eventID]
	if !ok {
		el = &eventLock{sem: make(chan struct{}, 1)}
		l.locks[eventID] = el
	}
	el.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case el.sem <- struct{}{}:
		return func() {
			<-el.sem
			l.unref(eventID, el)
		}, nil
	case <-timer.C:
		l.unref(eventID, el)
		return nil, ErrBusy
	case <-ctx.Done():
		l.unref(eventID, el)
		return nil, ctx.Err()
	}
}

// unref drops one reference and removes the entry once unused. Refs only
// grow while the entry is in the map, so removal at zero is safe.
func (l *EventLocks) unref(eventID string, el *eventLock) {
	l.mu.Lock()
	el.refs--
	if el.refs == 0 {
		delete(l.locks, eventID)
	}
	l.mu.Unlock()
}

// WithLock runs fn while holding the event's lock.
func (l *EventLocks) WithLock(ctx context.Context, eventID string, fn func() error) error {
	release, err := l.Acquire(ctx, eventID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
