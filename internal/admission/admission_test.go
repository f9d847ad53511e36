package admission

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventlottery/internal/lifecycle"
	"eventlottery/internal/model"
	"eventlottery/internal/notify"
	"eventlottery/internal/storage"
	"eventlottery/internal/storage/memory"
	"eventlottery/internal/waitlist"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	wl         *waitlist.Store
	machine    *lifecycle.Machine
	controller *Controller
}

func newFixture(t *testing.T, event *model.Event) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		wl:    waitlist.NewStore(),
	}
	f.machine = lifecycle.NewMachine(f.store, f.wl, notify.Noop{}, lifecycle.DefaultResponseWindow)
	f.controller = NewController(f.store, f.wl, f.machine, NewEventLocks(DefaultLockWait))
	require.NoError(t, f.store.CreateEvent(context.Background(), event))
	return f
}

func openEvent(maxAttendees, maxWaitlist int) *model.Event {
	return &model.Event{
		ID:                   "ev-1",
		Name:                 "Test",
		MaxAttendees:         maxAttendees,
		MaxWaitlistSize:      maxWaitlist,
		RegistrationOpensAt:  t0.Add(-time.Hour),
		RegistrationClosesAt: t0.Add(24 * time.Hour),
		CreatedAt:            t0.Add(-time.Hour),
	}
}

func TestJoinCreatesWaitingRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 0))

	reg, err := f.controller.Join(ctx, "ev-1", "u1", t0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, reg.Status)
	assert.Equal(t, "u1", reg.EntrantID)
	assert.Equal(t, t0, reg.RegisteredAt)
	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, []string{"u1"}, f.wl.Members("ev-1"))
}

func TestJoinOutsideWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 0))

	_, err := f.controller.Join(ctx, "ev-1", "u1", t0.Add(48*time.Hour))
	assert.ErrorIs(t, err, ErrRegistrationClosed)

	_, err = f.controller.Join(ctx, "ev-1", "u1", t0.Add(-2*time.Hour))
	assert.ErrorIs(t, err, ErrRegistrationClosed)
}

func TestJoinUnknownEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 0))

	_, err := f.controller.Join(ctx, "ev-9", "u1", t0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// Scenario: with a waitlist cap of 2, the third join reports a full list.
func TestJoinWaitlistFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 2))

	_, err := f.controller.Join(ctx, "ev-1", "u1", t0)
	require.NoError(t, err)
	_, err = f.controller.Join(ctx, "ev-1", "u2", t0)
	require.NoError(t, err)

	_, err = f.controller.Join(ctx, "ev-1", "u3", t0)
	assert.ErrorIs(t, err, ErrWaitlistFull)
	assert.Equal(t, 2, f.wl.Size("ev-1"))
}

// A second join while the first registration is still active yields
// AlreadyRegistered and leaves exactly one registration.
func TestJoinIsIdempotentPerEntrant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 0))

	_, err := f.controller.Join(ctx, "ev-1", "u1", t0)
	require.NoError(t, err)

	_, err = f.controller.Join(ctx, "ev-1", "u1", t0.Add(time.Minute))
	assert.ErrorIs(t, err, storage.ErrAlreadyRegistered)

	regs, err := f.store.ListRegistrations(ctx, "ev-1")
	require.NoError(t, err)
	assert.Len(t, regs, 1)
	assert.Equal(t, 1, f.wl.Size("ev-1"))
}

func TestRejoinAfterCancellation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 0))

	_, err := f.controller.Join(ctx, "ev-1", "u1", t0)
	require.NoError(t, err)
	require.NoError(t, f.controller.Leave(ctx, "ev-1", "u1", t0.Add(time.Minute)))

	reg, err := f.controller.Join(ctx, "ev-1", "u1", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, reg.Status)

	regs, err := f.store.ListRegistrations(ctx, "ev-1")
	require.NoError(t, err)
	assert.Len(t, regs, 2, "the cancelled record is retained for audit")
}

// Scenario: leave cancels, a repeated leave is an explicit rejection.
func TestLeaveTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 0))

	_, err := f.controller.Join(ctx, "ev-1", "u1", t0)
	require.NoError(t, err)

	require.NoError(t, f.controller.Leave(ctx, "ev-1", "u1", t0.Add(time.Minute)))
	assert.Equal(t, 0, f.wl.Size("ev-1"))

	reg, err := f.store.GetRegistration(ctx, "ev-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, reg.Status)
	require.NotNil(t, reg.CancelledAt)

	err = f.controller.Leave(ctx, "ev-1", "u1", t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLeaveConfirmedIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 0))

	_, err := f.controller.Join(ctx, "ev-1", "u1", t0)
	require.NoError(t, err)
	_, err = f.machine.MarkSelected(ctx, "ev-1", "u1", t0)
	require.NoError(t, err)
	_, err = f.machine.Confirm(ctx, "ev-1", "u1", t0.Add(time.Hour))
	require.NoError(t, err)

	err = f.controller.Leave(ctx, "ev-1", "u1", t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// Concurrent joins on one event never exceed the waitlist cap.
func TestConcurrentJoinsRespectWaitlistCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 10))

	var wg sync.WaitGroup
	added := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i)
			if _, err := f.controller.Join(ctx, "ev-1", id, t0); err == nil {
				added <- id
			}
		}(i)
	}
	wg.Wait()
	close(added)

	var winners int
	for range added {
		winners++
	}
	assert.Equal(t, 10, winners)
	assert.Equal(t, 10, f.wl.Size("ev-1"))

	waiting, err := f.store.ListWaiting(ctx, "ev-1")
	require.NoError(t, err)
	assert.Len(t, waiting, 10)
}

func TestJoinAfterExpiredSelectionIsAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 0))

	_, err := f.controller.Join(ctx, "ev-1", "u1", t0)
	require.NoError(t, err)
	_, err = f.machine.MarkSelected(ctx, "ev-1", "u1", t0)
	require.NoError(t, err)

	// Window still open at t0+49h for this test event.
	long := openEvent(5, 0)
	long.RegistrationClosesAt = t0.Add(100 * time.Hour)
	require.NoError(t, f.store.SaveEvent(ctx, long))

	reg, err := f.controller.Join(ctx, "ev-1", "u1", t0.Add(49*time.Hour))
	require.NoError(t, err, "lazy expiry frees the pair for a fresh join")
	assert.Equal(t, model.StatusWaiting, reg.Status)

	old, err := f.store.ListRegistrations(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, model.StatusCancelled, old[0].Status)
}

func TestRehydrateRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openEvent(5, 0))
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := f.controller.Join(ctx, "ev-1", id, t0)
		require.NoError(t, err)
	}
	require.NoError(t, f.controller.Leave(ctx, "ev-1", "u2", t0))

	// Fresh index over the same storage, as after a restart.
	rebuilt := waitlist.NewStore()
	machine := lifecycle.NewMachine(f.store, rebuilt, notify.Noop{}, lifecycle.DefaultResponseWindow)
	controller := NewController(f.store, rebuilt, machine, NewEventLocks(DefaultLockWait))
	require.NoError(t, controller.Rehydrate(ctx))

	assert.Equal(t, []string{"u1", "u3"}, rebuilt.Members("ev-1"))
}
