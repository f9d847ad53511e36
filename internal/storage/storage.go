// Package storage defines the persistence ports consumed by the admission
// and draw engines, plus the sentinel errors every implementation returns.
// Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"eventlottery/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRegistered is returned when an entrant with an active
// registration attempts to register again for the same event.
var ErrAlreadyRegistered = errors.New("entrant already registered for this event")

// ErrStaleState is returned when a status transition finds the persisted
// status no longer matches the expected prior status. It signals a lost
// race, not a fatal failure; callers may re-read and retry.
var ErrStaleState = errors.New("registration status changed concurrently")

// EventStore persists events and their capacity configuration.
type EventStore interface {
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	// SaveEvent writes back mutable event fields, e.g. organizer edits
	// to the capacity or window. Confirmed-count changes go through
	// ConfirmSelected instead.
	SaveEvent(ctx context.Context, event *model.Event) error
}

// RegistrationStore persists registrations. Registrations are never
// deleted: terminal records are retained and a fresh record is created
// if the entrant joins again later.
type RegistrationStore interface {
	// CreateRegistration inserts a new record. It fails with
	// ErrAlreadyRegistered if an active record already exists for the
	// same (event, entrant) pair.
	CreateRegistration(ctx context.Context, reg *model.Registration) error
	// GetActiveRegistration returns the single WAITING/SELECTED/CONFIRMED
	// record for the pair, or ErrNotFound.
	GetActiveRegistration(ctx context.Context, eventID, entrantID string) (*model.Registration, error)
	// GetRegistration returns the pair's most recent record regardless of
	// status, or ErrNotFound if the entrant never registered.
	GetRegistration(ctx context.Context, eventID, entrantID string) (*model.Registration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)
	// ListWaiting returns WAITING records in insertion order.
	ListWaiting(ctx context.Context, eventID string) ([]model.Registration, error)
	ListSelected(ctx context.Context, eventID string) ([]model.Registration, error)
	// UpdateStatus moves the pair's active record from one status to
	// another, setting the timestamp matching the target status. It fails
	// with ErrNotFound if no active record exists and with ErrStaleState
	// if the persisted status is not the expected one.
	UpdateStatus(ctx context.Context, eventID, entrantID string, from, to model.Status, at time.Time) (*model.Registration, error)
}

// Store combines both ports; the provided implementations satisfy it.
type Store interface {
	EventStore
	RegistrationStore

	// ConfirmSelected moves the pair's SELECTED record to CONFIRMED and
	// increments the event's confirmed count as one atomic write: a
	// failed call leaves both untouched, so a confirmed record can
	// never go uncounted. Error semantics match UpdateStatus.
	ConfirmSelected(ctx context.Context, eventID, entrantID string, at time.Time) (*model.Registration, error)
}
