// Package postgres implements the storage ports on PostgreSQL.
// It uses pgx directly (no ORM) for transparency and performance.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventlottery/internal/model"
	"eventlottery/internal/storage"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

// New constructs a Store.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateEvent inserts a new event row.
func (s *Store) CreateEvent(ctx context.Context, event *model.Event) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (id, name, description, max_attendees, max_waitlist_size,
		                     confirmed_count, registration_opens_at, registration_closes_at,
		                     closed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.Name, event.Description, event.MaxAttendees, event.MaxWaitlistSize,
		event.ConfirmedCount, event.RegistrationOpensAt, event.RegistrationClosesAt,
		event.Closed, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event or storage.ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, description, max_attendees, max_waitlist_size,
		        confirmed_count, registration_opens_at, registration_closes_at,
		        closed, created_at
		 FROM events WHERE id = $1`,
		id,
	)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListEvents returns all events ordered by creation time descending.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, max_attendees, max_waitlist_size,
		        confirmed_count, registration_opens_at, registration_closes_at,
		        closed, created_at
		 FROM events
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// SaveEvent writes back mutable event fields.
func (s *Store) SaveEvent(ctx context.Context, event *model.Event) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE events
		 SET name = $2, description = $3, max_attendees = $4, max_waitlist_size = $5,
		     confirmed_count = $6, registration_opens_at = $7, registration_closes_at = $8,
		     closed = $9
		 WHERE id = $1`,
		event.ID, event.Name, event.Description, event.MaxAttendees, event.MaxWaitlistSize,
		event.ConfirmedCount, event.RegistrationOpensAt, event.RegistrationClosesAt,
		event.Closed,
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateRegistration inserts a new record. The partial unique index on
// active (event_id, entrant_id) pairs enforces at-most-one membership
// even outside the per-event critical section.
func (s *Store) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO registrations (id, event_id, entrant_id, status, registered_at,
		                            selected_at, responded_at, cancelled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reg.ID, reg.EventID, reg.EntrantID, reg.Status, reg.RegisteredAt,
		reg.SelectedAt, reg.RespondedAt, reg.CancelledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetActiveRegistration returns the pair's active record or storage.ErrNotFound.
func (s *Store) GetActiveRegistration(ctx context.Context, eventID, entrantID string) (*model.Registration, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, event_id, entrant_id, status, registered_at,
		        selected_at, responded_at, cancelled_at
		 FROM registrations
		 WHERE event_id = $1 AND entrant_id = $2
		   AND status IN ('WAITING', 'SELECTED', 'CONFIRMED')`,
		eventID, entrantID,
	)
	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active registration: %w", err)
	}
	return reg, nil
}

// GetRegistration returns the pair's most recent record regardless of
// status, or storage.ErrNotFound.
func (s *Store) GetRegistration(ctx context.Context, eventID, entrantID string) (*model.Registration, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, event_id, entrant_id, status, registered_at,
		        selected_at, responded_at, cancelled_at
		 FROM registrations
		 WHERE event_id = $1 AND entrant_id = $2
		 ORDER BY registered_at DESC, id DESC
		 LIMIT 1`,
		eventID, entrantID,
	)
	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// ListRegistrations returns every record for the event in insertion order.
func (s *Store) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	return s.listRegistrations(ctx,
		`SELECT id, event_id, entrant_id, status, registered_at,
		        selected_at, responded_at, cancelled_at
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY registered_at ASC, id ASC`,
		eventID,
	)
}

// ListWaiting returns WAITING records in insertion order.
func (s *Store) ListWaiting(ctx context.Context, eventID string) ([]model.Registration, error) {
	return s.listByStatus(ctx, eventID, model.StatusWaiting)
}

// ListSelected returns SELECTED records in insertion order.
func (s *Store) ListSelected(ctx context.Context, eventID string) ([]model.Registration, error) {
	return s.listByStatus(ctx, eventID, model.StatusSelected)
}

// UpdateStatus performs the optimistic transition in a single guarded
// UPDATE: the WHERE clause carries the expected prior status, so a lost
// race surfaces as zero affected rows rather than a silent overwrite.
func (s *Store) UpdateStatus(ctx context.Context, eventID, entrantID string, from, to model.Status, at time.Time) (*model.Registration, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE registrations
		 SET status = $4,
		     selected_at  = CASE WHEN $4 = 'SELECTED' THEN $5 ELSE selected_at END,
		     responded_at = CASE WHEN $4 IN ('CONFIRMED', 'DECLINED') THEN $5 ELSE responded_at END,
		     cancelled_at = CASE WHEN $4 = 'CANCELLED' THEN $5 ELSE cancelled_at END
		 WHERE event_id = $1 AND entrant_id = $2 AND status = $3
		 RETURNING id, event_id, entrant_id, status, registered_at,
		           selected_at, responded_at, cancelled_at`,
		eventID, entrantID, from, to, at,
	)
	reg, err := scanRegistration(row)
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update registration status: %w", err)
	}

	// Distinguish a vanished record from a concurrently changed one.
	if _, activeErr := s.GetActiveRegistration(ctx, eventID, entrantID); activeErr == nil {
		return nil, storage.ErrStaleState
	}
	return nil, storage.ErrNotFound
}

// ConfirmSelected performs the SELECTED -> CONFIRMED transition and the
// confirmed-count increment in one transaction, locking the event row
// first so both writes commit or neither does.
func (s *Store) ConfirmSelected(ctx context.Context, eventID, entrantID string, at time.Time) (*model.Registration, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin confirm: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT true FROM events WHERE id = $1 FOR UPDATE`, eventID,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}

	row := tx.QueryRow(ctx,
		`UPDATE registrations
		 SET status = 'CONFIRMED', responded_at = $3
		 WHERE event_id = $1 AND entrant_id = $2 AND status = 'SELECTED'
		 RETURNING id, event_id, entrant_id, status, registered_at,
		           selected_at, responded_at, cancelled_at`,
		eventID, entrantID, at,
	)
	reg, err := scanRegistration(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("confirm registration: %w", err)
		}
		if _, activeErr := s.GetActiveRegistration(ctx, eventID, entrantID); activeErr == nil {
			return nil, storage.ErrStaleState
		}
		return nil, storage.ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`UPDATE events SET confirmed_count = confirmed_count + 1 WHERE id = $1`, eventID,
	); err != nil {
		return nil, fmt.Errorf("increment confirmed count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm: %w", err)
	}
	return reg, nil
}

func (s *Store) listByStatus(ctx context.Context, eventID string, status model.Status) ([]model.Registration, error) {
	return s.listRegistrations(ctx,
		`SELECT id, event_id, entrant_id, status, registered_at,
		        selected_at, responded_at, cancelled_at
		 FROM registrations
		 WHERE event_id = $1 AND status = $2
		 ORDER BY registered_at ASC, id ASC`,
		eventID, status,
	)
}

func (s *Store) listRegistrations(ctx context.Context, query string, args ...any) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.MaxAttendees, &e.MaxWaitlistSize,
		&e.ConfirmedCount, &e.RegistrationOpensAt, &e.RegistrationClosesAt,
		&e.Closed, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.EntrantID, &reg.Status, &reg.RegisteredAt,
		&reg.SelectedAt, &reg.RespondedAt, &reg.CancelledAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}
