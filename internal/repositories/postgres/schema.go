package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Identifiers are stored as 24-character hex ObjectIDs so that ledger rows
// join with chat data kept in MongoDB.
const schema = `
CREATE TABLE IF NOT EXISTS rides (
	id            CHAR(24) PRIMARY KEY,
	driver_id     CHAR(24) NOT NULL,
	seats_offered INTEGER NOT NULL CHECK (seats_offered > 0),
	start_city    TEXT NOT NULL DEFAULT '',
	end_city      TEXT NOT NULL DEFAULT '',
	start_at      TIMESTAMPTZ NOT NULL,
	end_at        TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS rides_driver_idx ON rides (driver_id);
CREATE INDEX IF NOT EXISTS rides_start_idx ON rides (start_at);

CREATE TABLE IF NOT EXISTS ride_riders (
	ride_id    CHAR(24) NOT NULL REFERENCES rides (id) ON DELETE CASCADE,
	user_id    CHAR(24) NOT NULL,
	joined_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (ride_id, user_id)
);
CREATE INDEX IF NOT EXISTS ride_riders_user_idx ON ride_riders (user_id);

CREATE TABLE IF NOT EXISTS reservations (
	id         CHAR(24) PRIMARY KEY,
	user_id    CHAR(24) NOT NULL,
	ride_id    CHAR(24) NOT NULL,
	status     TEXT NOT NULL,
	live       BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS reservations_live_unique
	ON reservations (user_id, ride_id) WHERE live;
CREATE INDEX IF NOT EXISTS reservations_ride_idx ON reservations (ride_id);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return nil
}
