// Package model defines the core domain types for the event lottery system.
package model

import "time"

// Event represents a capacity-limited event whose attendees are admitted
// through a waitlist and randomized draws.
type Event struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// MaxAttendees is the confirmed-attendee cap. Zero means the
	// configuration is pending: nothing can be drawn or confirmed.
	MaxAttendees int `json:"max_attendees"`
	// MaxWaitlistSize caps the waitlist. Zero means unlimited.
	MaxWaitlistSize int `json:"max_waitlist_size"`
	// ConfirmedCount tracks entrants who accepted a won slot. Mutated
	// only by lifecycle transitions into CONFIRMED.
	ConfirmedCount int `json:"confirmed_count"`

	// Registration requests are accepted in [RegistrationOpensAt,
	// RegistrationClosesAt).
	RegistrationOpensAt  time.Time `json:"registration_opens_at"`
	RegistrationClosesAt time.Time `json:"registration_closes_at"`
	// Closed marks the event administratively closed regardless of window.
	Closed bool `json:"closed"`

	CreatedAt time.Time `json:"created_at"`
}

// IsRegistrationOpen reports whether a join request at now falls inside
// the registration window of an event that is not administratively closed.
func (e *Event) IsRegistrationOpen(now time.Time) bool {
	if e.Closed {
		return false
	}
	return !now.Before(e.RegistrationOpensAt) && now.Before(e.RegistrationClosesAt)
}

// IsWaitlistFull reports whether a waitlist of the given size has reached
// the configured cap. An unlimited waitlist (cap zero) is never full.
func (e *Event) IsWaitlistFull(currentWaitlistSize int) bool {
	return e.MaxWaitlistSize > 0 && currentWaitlistSize >= e.MaxWaitlistSize
}

// IsEventFull reports whether the given confirmed count has reached the
// attendee cap.
func (e *Event) IsEventFull(confirmedCount int) bool {
	return confirmedCount >= e.MaxAttendees
}

// AvailableSlots returns how many more confirmations the event can take.
func (e *Event) AvailableSlots(confirmedCount int) int {
	if remaining := e.MaxAttendees - confirmedCount; remaining > 0 {
		return remaining
	}
	return 0
}

// Registration represents one entrant's admission record for one event.
// Records are never deleted; terminal statuses are retained for audit.
type Registration struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	EntrantID string `json:"entrant_id"`
	Status    Status `json:"status"`

	RegisteredAt time.Time  `json:"registered_at"`
	SelectedAt   *time.Time `json:"selected_at,omitempty"`
	RespondedAt  *time.Time `json:"responded_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// Active reports whether this registration blocks the entrant from
// joining the same event again.
func (r *Registration) Active() bool {
	return r.Status.Active()
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	MaxAttendees         int       `json:"max_attendees"`
	MaxWaitlistSize      int       `json:"max_waitlist_size"`
	RegistrationOpensAt  time.Time `json:"registration_opens_at"`
	RegistrationClosesAt time.Time `json:"registration_closes_at"`
}

// JoinRequest is the payload for joining an event's waitlist.
type JoinRequest struct {
	EntrantID string `json:"entrant_id"`
}

// DrawRequest is the payload for running a lottery draw.
type DrawRequest struct {
	Count int `json:"count"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
