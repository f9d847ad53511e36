// Package lifecycle implements the registration state machine. Every
// mutation is validated against the current persisted status immediately
// before commit: the storage port's guarded UpdateStatus surfaces lost
// races as storage.ErrStaleState, which callers may retry with fresh
// reads. Transitions out of terminal states are rejected here with
// ErrInvalidTransition.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventlottery/internal/model"
	"eventlottery/internal/notify"
	"eventlottery/internal/storage"
	"eventlottery/internal/waitlist"
)

// DefaultResponseWindow is how long a SELECTED entrant has to confirm or
// decline before the slot lapses.
const DefaultResponseWindow = 48 * time.Hour

// ErrInvalidTransition is returned when the requested move is not in the
// transition table, e.g. confirming a registration that is not SELECTED.
var ErrInvalidTransition = errors.New("invalid registration status transition")

// ErrEventFull is returned when a confirmation would exceed the event's
// attendee cap.
var ErrEventFull = errors.New("event is at confirmed capacity")

// Machine executes status transitions, keeps the waitlist index and the
// event's confirmed count consistent with them, and dispatches
// best-effort notifications after each commit.
//
// Machine methods assume the caller holds the per-event critical
// section; they perform no locking of their own.
type Machine struct {
	store          storage.Store
	waitlist       *waitlist.Store
	notifier       notify.Port
	responseWindow time.Duration
}

// NewMachine constructs a Machine. A non-positive responseWindow falls
// back to DefaultResponseWindow.
func NewMachine(store storage.Store, wl *waitlist.Store, notifier notify.Port, responseWindow time.Duration) *Machine {
	if responseWindow <= 0 {
		responseWindow = DefaultResponseWindow
	}
	return &Machine{
		store:          store,
		waitlist:       wl,
		notifier:       notifier,
		responseWindow: responseWindow,
	}
}

// MarkSelected promotes a WAITING registration to SELECTED and removes
// it from the waitlist index. Used by the draw engine.
func (m *Machine) MarkSelected(ctx context.Context, eventID, entrantID string, now time.Time) (*model.Registration, error) {
	reg, err := m.store.UpdateStatus(ctx, eventID, entrantID, model.StatusWaiting, model.StatusSelected, now)
	if err != nil {
		return nil, fmt.Errorf("mark selected: %w", err)
	}
	m.waitlist.Remove(eventID, entrantID)
	m.notifier.Notify(*reg, notify.KindSelected)
	return reg, nil
}

// Confirm accepts a won slot: SELECTED becomes CONFIRMED and the event's
// confirmed count grows by one. The capacity check runs inside the same
// critical section as the commit, so concurrent confirms cannot together
// exceed MaxAttendees. The status change and the count increment are a
// single storage operation; a failed confirm leaves both untouched.
func (m *Machine) Confirm(ctx context.Context, eventID, entrantID string, now time.Time) (*model.Registration, error) {
	reg, err := m.loadForResponse(ctx, eventID, entrantID, now)
	if err != nil {
		return nil, err
	}
	if !reg.Status.CanTransitionTo(model.StatusConfirmed) {
		return nil, ErrInvalidTransition
	}

	event, err := m.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event.IsEventFull(event.ConfirmedCount) {
		return nil, ErrEventFull
	}

	reg, err = m.store.ConfirmSelected(ctx, eventID, entrantID, now)
	if err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}
	m.notifier.Notify(*reg, notify.KindConfirmed)
	return reg, nil
}

// Decline turns down a won slot: SELECTED becomes DECLINED. The freed
// capacity becomes visible to the next draw.
func (m *Machine) Decline(ctx context.Context, eventID, entrantID string, now time.Time) (*model.Registration, error) {
	reg, err := m.loadForResponse(ctx, eventID, entrantID, now)
	if err != nil {
		return nil, err
	}
	if !reg.Status.CanTransitionTo(model.StatusDeclined) {
		return nil, ErrInvalidTransition
	}

	reg, err = m.store.UpdateStatus(ctx, eventID, entrantID, model.StatusSelected, model.StatusDeclined, now)
	if err != nil {
		return nil, fmt.Errorf("decline: %w", err)
	}
	m.notifier.Notify(*reg, notify.KindDeclined)
	return reg, nil
}

// Cancel moves a registration from the given prior status to CANCELLED.
// A WAITING cancellation frees the waitlist slot immediately.
func (m *Machine) Cancel(ctx context.Context, eventID, entrantID string, from model.Status, now time.Time) (*model.Registration, error) {
	if !from.CanTransitionTo(model.StatusCancelled) {
		return nil, ErrInvalidTransition
	}
	reg, err := m.store.UpdateStatus(ctx, eventID, entrantID, from, model.StatusCancelled, now)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	m.waitlist.Remove(eventID, entrantID)
	m.notifier.Notify(*reg, notify.KindCancelled)
	return reg, nil
}

// Overdue reports whether a SELECTED registration has outlived its
// response window at now.
func (m *Machine) Overdue(reg *model.Registration, now time.Time) bool {
	if reg.Status != model.StatusSelected || reg.SelectedAt == nil {
		return false
	}
	return !now.Before(reg.SelectedAt.Add(m.responseWindow))
}

// ExpireIfOverdue cancels a SELECTED registration whose response window
// has elapsed, treated as an implicit decline: the confirmed count is
// untouched. It reports whether an expiry happened.
func (m *Machine) ExpireIfOverdue(ctx context.Context, reg *model.Registration, now time.Time) (bool, error) {
	if !m.Overdue(reg, now) {
		return false, nil
	}
	expired, err := m.store.UpdateStatus(ctx, reg.EventID, reg.EntrantID, model.StatusSelected, model.StatusCancelled, now)
	if err != nil {
		// Someone responded between our read and the commit; nothing to do.
		if errors.Is(err, storage.ErrStaleState) || errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("expire: %w", err)
	}
	m.notifier.Notify(*expired, notify.KindExpired)
	return true, nil
}

// loadForResponse reads the pair's latest record and applies lazy expiry
// before a confirm/decline is validated against it.
func (m *Machine) loadForResponse(ctx context.Context, eventID, entrantID string, now time.Time) (*model.Registration, error) {
	reg, err := m.store.GetRegistration(ctx, eventID, entrantID)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	expired, err := m.ExpireIfOverdue(ctx, reg, now)
	if err != nil {
		return nil, err
	}
	if expired {
		reg.Status = model.StatusCancelled
	}
	return reg, nil
}
