// Package admission is the single entry point for joining and leaving an
// event's waitlist. It enforces the registration window, the
// one-active-registration rule, and the waitlist cap before any state
// changes, all inside a per-event critical section so concurrent joins
// can never overfill a waitlist.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventlottery/internal/lifecycle"
	"eventlottery/internal/model"
	"eventlottery/internal/storage"
	"eventlottery/internal/waitlist"
)

// ErrRegistrationClosed is returned when a join arrives outside the
// event's registration window or after administrative closure.
var ErrRegistrationClosed = errors.New("registration is closed for this event")

// ErrWaitlistFull is returned when the event's waitlist has reached its
// configured cap.
var ErrWaitlistFull = errors.New("waitlist is full for this event")

// Controller validates and executes join/leave requests.
type Controller struct {
	store    storage.Store
	waitlist *waitlist.Store
	machine  *lifecycle.Machine
	locks    *EventLocks
}

// NewController constructs a Controller.
func NewController(store storage.Store, wl *waitlist.Store, machine *lifecycle.Machine, locks *EventLocks) *Controller {
	return &Controller{store: store, waitlist: wl, machine: machine, locks: locks}
}

// Locks exposes the per-event lock set so the draw engine and the expiry
// sweep share the same critical sections.
func (c *Controller) Locks() *EventLocks {
	return c.locks
}

// Join admits the entrant to the event's waitlist with a fresh WAITING
// registration. The window, duplicate, and capacity checks plus the
// mutation run as one atomic unit per event.
func (c *Controller) Join(ctx context.Context, eventID, entrantID string, now time.Time) (*model.Registration, error) {
	var reg *model.Registration
	err := c.locks.WithLock(ctx, eventID, func() error {
		event, err := c.store.GetEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("load event: %w", err)
		}
		if !event.IsRegistrationOpen(now) {
			return ErrRegistrationClosed
		}

		if active, err := c.activeRegistration(ctx, eventID, entrantID, now); err != nil {
			return err
		} else if active != nil {
			return storage.ErrAlreadyRegistered
		}

		if event.IsWaitlistFull(c.waitlist.Size(eventID)) {
			return ErrWaitlistFull
		}

		reg = &model.Registration{
			ID:           uuid.New().String(),
			EventID:      eventID,
			EntrantID:    entrantID,
			Status:       model.StatusWaiting,
			RegisteredAt: now,
		}
		if err := c.store.CreateRegistration(ctx, reg); err != nil {
			return fmt.Errorf("create registration: %w", err)
		}
		c.waitlist.Add(eventID, entrantID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Leave cancels the entrant's WAITING or SELECTED registration, freeing
// its waitlist slot immediately. Leaving with no such registration fails
// with storage.ErrNotFound, including a repeated leave after
// cancellation: the rejection is explicit, not a silent no-op.
func (c *Controller) Leave(ctx context.Context, eventID, entrantID string, now time.Time) error {
	return c.locks.WithLock(ctx, eventID, func() error {
		active, err := c.activeRegistration(ctx, eventID, entrantID, now)
		if err != nil {
			return err
		}
		if active == nil || active.Status == model.StatusConfirmed {
			return storage.ErrNotFound
		}
		if _, err := c.machine.Cancel(ctx, eventID, entrantID, active.Status, now); err != nil {
			return err
		}
		return nil
	})
}

// Rehydrate rebuilds the waitlist index from persisted WAITING
// registrations. Call once at startup before serving requests.
func (c *Controller) Rehydrate(ctx context.Context) error {
	events, err := c.store.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	for _, event := range events {
		waiting, err := c.store.ListWaiting(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("list waiting for %s: %w", event.ID, err)
		}
		for _, reg := range waiting {
			c.waitlist.Add(event.ID, reg.EntrantID)
		}
	}
	return nil
}

// activeRegistration returns the pair's active record after applying
// lazy expiry, or nil if the entrant holds none.
func (c *Controller) activeRegistration(ctx context.Context, eventID, entrantID string, now time.Time) (*model.Registration, error) {
	active, err := c.store.GetActiveRegistration(ctx, eventID, entrantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load active registration: %w", err)
	}
	expired, err := c.machine.ExpireIfOverdue(ctx, active, now)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, nil
	}
	return active, nil
}
