package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the DDL for the two tables this service owns. The partial
// unique index backs the at-most-one-active-registration rule.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    id                     UUID PRIMARY KEY,
    name                   TEXT NOT NULL,
    description            TEXT NOT NULL DEFAULT '',
    max_attendees          INT NOT NULL CHECK (max_attendees >= 0),
    max_waitlist_size      INT NOT NULL CHECK (max_waitlist_size >= 0),
    confirmed_count        INT NOT NULL DEFAULT 0 CHECK (confirmed_count >= 0),
    registration_opens_at  TIMESTAMPTZ NOT NULL,
    registration_closes_at TIMESTAMPTZ NOT NULL,
    closed                 BOOLEAN NOT NULL DEFAULT FALSE,
    created_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS registrations (
    id            UUID PRIMARY KEY,
    event_id      UUID NOT NULL REFERENCES events (id),
    entrant_id    TEXT NOT NULL,
    status        TEXT NOT NULL CHECK (status IN ('WAITING', 'SELECTED', 'CONFIRMED', 'DECLINED', 'CANCELLED')),
    registered_at TIMESTAMPTZ NOT NULL,
    selected_at   TIMESTAMPTZ,
    responded_at  TIMESTAMPTZ,
    cancelled_at  TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS registrations_active_pair
    ON registrations (event_id, entrant_id)
    WHERE status IN ('WAITING', 'SELECTED', 'CONFIRMED');

CREATE INDEX IF NOT EXISTS registrations_event_status
    ON registrations (event_id, status);
`

// ApplySchema creates the tables and indexes if they do not exist.
func ApplySchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
