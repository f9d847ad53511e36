// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the admission/draw core.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventlottery/internal/admission"
	"eventlottery/internal/draw"
	"eventlottery/internal/lifecycle"
	"eventlottery/internal/model"
	"eventlottery/internal/storage"
	"eventlottery/internal/waitlist"
)

// LotteryService orchestrates event management, waitlist admission,
// draws, and the selected-entrant response step.
type LotteryService struct {
	store      storage.Store
	controller *admission.Controller
	engine     *draw.Engine
	machine    *lifecycle.Machine
	waitlist   *waitlist.Store
}

// NewLotteryService constructs a LotteryService with its dependencies.
func NewLotteryService(
	store storage.Store,
	controller *admission.Controller,
	engine *draw.Engine,
	machine *lifecycle.Machine,
	wl *waitlist.Store,
) *LotteryService {
	return &LotteryService{
		store:      store,
		controller: controller,
		engine:     engine,
		machine:    machine,
		waitlist:   wl,
	}
}

// CreateEvent validates the request and persists a new event.
func (s *LotteryService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if req.MaxAttendees < 0 {
		return nil, fmt.Errorf("max_attendees cannot be negative")
	}
	if req.MaxAttendees > 100_000 {
		return nil, fmt.Errorf("max_attendees cannot exceed 100,000")
	}
	if req.MaxWaitlistSize < 0 {
		return nil, fmt.Errorf("max_waitlist_size cannot be negative")
	}
	if req.RegistrationOpensAt.IsZero() || req.RegistrationClosesAt.IsZero() {
		return nil, fmt.Errorf("registration window is required")
	}
	if !req.RegistrationClosesAt.After(req.RegistrationOpensAt) {
		return nil, fmt.Errorf("registration window must close after it opens")
	}

	event := &model.Event{
		ID:                   uuid.New().String(),
		Name:                 req.Name,
		Description:          req.Description,
		MaxAttendees:         req.MaxAttendees,
		MaxWaitlistSize:      req.MaxWaitlistSize,
		RegistrationOpensAt:  req.RegistrationOpensAt.UTC(),
		RegistrationClosesAt: req.RegistrationClosesAt.UTC(),
		CreatedAt:            time.Now().UTC(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// ListEvents returns all events.
func (s *LotteryService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.store.ListEvents(ctx)
}

// GetEvent returns a single event by ID.
func (s *LotteryService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// Join admits the entrant to the event's waitlist.
func (s *LotteryService) Join(ctx context.Context, eventID, entrantID string) (*model.Registration, error) {
	entrantID, err := cleanEntrantID(entrantID)
	if err != nil {
		return nil, err
	}
	return s.controller.Join(ctx, eventID, entrantID, time.Now().UTC())
}

// Leave cancels the entrant's waiting or selected registration.
func (s *LotteryService) Leave(ctx context.Context, eventID, entrantID string) error {
	entrantID, err := cleanEntrantID(entrantID)
	if err != nil {
		return err
	}
	return s.controller.Leave(ctx, eventID, entrantID, time.Now().UTC())
}

// Draw selects count waiting entrants at random for promotion.
func (s *LotteryService) Draw(ctx context.Context, eventID string, count int) (*draw.Outcome, error) {
	return s.engine.Draw(ctx, eventID, count, time.Now().UTC())
}

// Confirm accepts the entrant's won slot. Runs inside the same per-event
// critical section as joins and draws.
func (s *LotteryService) Confirm(ctx context.Context, eventID, entrantID string) (*model.Registration, error) {
	return s.respond(ctx, eventID, entrantID, s.machine.Confirm)
}

// Decline turns down the entrant's won slot.
func (s *LotteryService) Decline(ctx context.Context, eventID, entrantID string) (*model.Registration, error) {
	return s.respond(ctx, eventID, entrantID, s.machine.Decline)
}

// Waitlist returns the waiting entrants in insertion order.
func (s *LotteryService) Waitlist(ctx context.Context, eventID string) ([]string, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return s.waitlist.Members(eventID), nil
}

// ListRegistrations returns every registration for an event, terminal
// records included, for organizer and export consumers.
func (s *LotteryService) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, storage.ErrNotFound
	}
	return s.store.ListRegistrations(ctx, eventID)
}

// ExpireOverdue cancels every SELECTED registration whose response
// window has elapsed, across all events. It returns how many expired.
func (s *LotteryService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	expired := 0
	for _, event := range events {
		err := s.controller.Locks().WithLock(ctx, event.ID, func() error {
			selected, err := s.store.ListSelected(ctx, event.ID)
			if err != nil {
				return fmt.Errorf("list selected for %s: %w", event.ID, err)
			}
			for i := range selected {
				done, err := s.machine.ExpireIfOverdue(ctx, &selected[i], now)
				if err != nil {
					return err
				}
				if done {
					expired++
				}
			}
			return nil
		})
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// Rehydrate rebuilds the in-process waitlist index from storage.
func (s *LotteryService) Rehydrate(ctx context.Context) error {
	return s.controller.Rehydrate(ctx)
}

func (s *LotteryService) respond(
	ctx context.Context,
	eventID, entrantID string,
	transition func(context.Context, string, string, time.Time) (*model.Registration, error),
) (*model.Registration, error) {
	entrantID, err := cleanEntrantID(entrantID)
	if err != nil {
		return nil, err
	}

	var reg *model.Registration
	lockErr := s.controller.Locks().WithLock(ctx, eventID, func() error {
		var err error
		reg, err = transition(ctx, eventID, entrantID, time.Now().UTC())
		return err
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return reg, nil
}

func cleanEntrantID(entrantID string) (string, error) {
	entrantID = strings.TrimSpace(entrantID)
	if entrantID == "" {
		return "", fmt.Errorf("entrant_id is required")
	}
	return entrantID, nil
}
