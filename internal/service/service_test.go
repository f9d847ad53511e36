package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventlottery/internal/admission"
	"eventlottery/internal/draw"
	"eventlottery/internal/lifecycle"
	"eventlottery/internal/model"
	"eventlottery/internal/notify"
	"eventlottery/internal/storage/memory"
	"eventlottery/internal/waitlist"
)

func newService(t *testing.T) *LotteryService {
	t.Helper()
	store := memory.New()
	wl := waitlist.NewStore()
	machine := lifecycle.NewMachine(store, wl, notify.Noop{}, lifecycle.DefaultResponseWindow)
	locks := admission.NewEventLocks(admission.DefaultLockWait)
	controller := admission.NewController(store, wl, machine, locks)
	engine := draw.NewEngineSeeded(store, wl, machine, locks, 1)
	return NewLotteryService(store, controller, engine, machine, wl)
}

func openEventRequest() model.CreateEventRequest {
	now := time.Now().UTC()
	return model.CreateEventRequest{
		Name:                 "Pottery Workshop",
		Description:          "Hands-on session",
		MaxAttendees:         2,
		MaxWaitlistSize:      3,
		RegistrationOpensAt:  now.Add(-time.Hour),
		RegistrationClosesAt: now.Add(24 * time.Hour),
	}
}

func TestCreateEventValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	cases := []struct {
		name   string
		mutate func(*model.CreateEventRequest)
	}{
		{"empty name", func(r *model.CreateEventRequest) { r.Name = "  " }},
		{"negative attendees", func(r *model.CreateEventRequest) { r.MaxAttendees = -1 }},
		{"huge attendees", func(r *model.CreateEventRequest) { r.MaxAttendees = 200_000 }},
		{"negative waitlist", func(r *model.CreateEventRequest) { r.MaxWaitlistSize = -1 }},
		{"missing window", func(r *model.CreateEventRequest) { r.RegistrationOpensAt = time.Time{} }},
		{"inverted window", func(r *model.CreateEventRequest) {
			r.RegistrationClosesAt = r.RegistrationOpensAt.Add(-time.Hour)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := openEventRequest()
			tc.mutate(&req)
			_, err := svc.CreateEvent(ctx, req)
			assert.Error(t, err)
		})
	}

	event, err := svc.CreateEvent(ctx, openEventRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, 0, event.ConfirmedCount)
}

func TestJoinDrawConfirmFlow(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	event, err := svc.CreateEvent(ctx, openEventRequest())
	require.NoError(t, err)

	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := svc.Join(ctx, event.ID, id)
		require.NoError(t, err)
	}

	members, err := svc.Waitlist(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, members)

	outcome, err := svc.Draw(ctx, event.ID, 2)
	require.NoError(t, err)
	require.Len(t, outcome.Selected, 2)

	winner := outcome.Selected[0].EntrantID
	reg, err := svc.Confirm(ctx, event.ID, winner)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, reg.Status)

	updated, err := svc.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ConfirmedCount)

	loser := outcome.Selected[1].EntrantID
	reg, err = svc.Decline(ctx, event.ID, loser)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeclined, reg.Status)

	regs, err := svc.ListRegistrations(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, regs, 3)
}

func TestConcurrentConfirmsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	req := openEventRequest()
	req.MaxAttendees = 1
	req.MaxWaitlistSize = 10
	event, err := svc.CreateEvent(ctx, req)
	require.NoError(t, err)

	// Repeated single-winner draws while the first winner has not
	// responded leave several SELECTED entrants chasing one slot.
	entrants := make([]string, 5)
	for i := range entrants {
		entrants[i] = fmt.Sprintf("u%d", i)
		_, err := svc.Join(ctx, event.ID, entrants[i])
		require.NoError(t, err)
	}
	for range entrants {
		_, err := svc.Draw(ctx, event.ID, 1)
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		full      int
	)
	for _, id := range entrants {
		wg.Add(1)
		go func(entrantID string) {
			defer wg.Done()
			_, err := svc.Confirm(ctx, event.ID, entrantID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, lifecycle.ErrEventFull):
				full++
			default:
				t.Errorf("unexpected confirm error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, confirmed)
	assert.Equal(t, len(entrants)-1, full)

	updated, err := svc.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ConfirmedCount)

	regs, err := svc.ListRegistrations(ctx, event.ID)
	require.NoError(t, err)
	var stored int
	for _, reg := range regs {
		if reg.Status == model.StatusConfirmed {
			stored++
		}
	}
	assert.Equal(t, 1, stored)
}

func TestJoinRequiresEntrantID(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	event, err := svc.CreateEvent(ctx, openEventRequest())
	require.NoError(t, err)

	_, err = svc.Join(ctx, event.ID, "   ")
	assert.Error(t, err)
}

func TestExpireOverdueSweepsAllEvents(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	first, err := svc.CreateEvent(ctx, openEventRequest())
	require.NoError(t, err)
	second, err := svc.CreateEvent(ctx, openEventRequest())
	require.NoError(t, err)

	for _, eventID := range []string{first.ID, second.ID} {
		_, err := svc.Join(ctx, eventID, "u1")
		require.NoError(t, err)
		_, err = svc.Draw(ctx, eventID, 1)
		require.NoError(t, err)
	}

	// Inside the window: nothing to do.
	expired, err := svc.ExpireOverdue(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, expired)

	expired, err = svc.ExpireOverdue(ctx, time.Now().UTC().Add(49*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	for _, eventID := range []string{first.ID, second.ID} {
		event, err := svc.GetEvent(ctx, eventID)
		require.NoError(t, err)
		assert.Zero(t, event.ConfirmedCount, "expiry never counts as a confirmation")
	}
}
