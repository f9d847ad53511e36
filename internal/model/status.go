package model

// Status is the lifecycle state of a registration.
type Status string

const (
	// StatusWaiting means the entrant is on the waitlist awaiting a draw.
	StatusWaiting Status = "WAITING"
	// StatusSelected means the entrant won a draw and must confirm or decline.
	StatusSelected Status = "SELECTED"
	// StatusConfirmed means the entrant accepted a won slot. Terminal.
	StatusConfirmed Status = "CONFIRMED"
	// StatusDeclined means the entrant turned down a won slot. Terminal.
	StatusDeclined Status = "DECLINED"
	// StatusCancelled means the entrant left the waitlist or let the
	// response window lapse. Terminal.
	StatusCancelled Status = "CANCELLED"
)

// transitions is the full set of legal status moves.
var transitions = map[Status][]Status{
	StatusWaiting:  {StatusSelected, StatusCancelled},
	StatusSelected: {StatusConfirmed, StatusDeclined, StatusCancelled},
}

// Terminal reports whether no further transition is permitted out of s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusDeclined || s == StatusCancelled
}

// Active reports whether s counts toward the one-registration-per-entrant
// rule (i.e. the entrant still holds or may still win a slot).
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusSelected || s == StatusConfirmed
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusSelected, StatusConfirmed, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}
