// Package notify defines the outbound notification port the lifecycle
// engine calls after committed transitions, plus the adapters shipped
// with the service. Delivery is best-effort: a failed or slow adapter
// must never roll back the state transition it reports.
package notify

import (
	"log"

	"eventlottery/internal/model"
)

// Kind names the lifecycle transition a notification reports.
type Kind string

const (
	// KindSelected: the entrant won a draw and must respond.
	KindSelected Kind = "selected"
	// KindConfirmed: the entrant accepted a won slot.
	KindConfirmed Kind = "confirmed"
	// KindDeclined: the entrant turned down a won slot.
	KindDeclined Kind = "declined"
	// KindCancelled: the entrant left the waitlist.
	KindCancelled Kind = "cancelled"
	// KindExpired: the response window lapsed without an answer.
	KindExpired Kind = "expired"
)

// Port receives committed lifecycle transitions for dispatch to
// entrants and organizers.
type Port interface {
	Notify(reg model.Registration, kind Kind)
}

// LogPort writes notifications to the process log. It stands in for the
// real delivery channel in development and single-binary deployments.
type LogPort struct{}

// Notify implements Port.
func (LogPort) Notify(reg model.Registration, kind Kind) {
	log.Printf("notification kind=%s event_id=%s entrant_id=%s status=%s",
		kind, reg.EventID, reg.EntrantID, reg.Status)
}

// Noop discards notifications. Useful in tests.
type Noop struct{}

// Notify implements Port.
func (Noop) Notify(model.Registration, Kind) {}
