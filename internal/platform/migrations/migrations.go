// Package migrations applies the database schema. Statements are idempotent
// and run in order on startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS rewards_users (
		id                   TEXT PRIMARY KEY,
		balance              BIGINT NOT NULL DEFAULT 0,
		referral_code        TEXT NOT NULL UNIQUE,
		referred_by          TEXT NOT NULL DEFAULT '',
		invited_count        BIGINT NOT NULL DEFAULT 0,
		total_commission     BIGINT NOT NULL DEFAULT 0,
		total_deposit_volume BIGINT NOT NULL DEFAULT 0,
		metadata             JSONB,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL,
		CHECK (balance >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS rewards_tokens (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		type          TEXT NOT NULL,
		amount        BIGINT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending',
		metadata      JSONB,
		expires_at    TIMESTAMPTZ,
		decided_by    TEXT NOT NULL DEFAULT '',
		decided_at    TIMESTAMPTZ,
		reject_reason TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		CHECK (amount > 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rewards_tokens_user_status
		ON rewards_tokens (user_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_rewards_tokens_pending_expiry
		ON rewards_tokens (expires_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS rewards_legacy_transactions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		kind       TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		state      TEXT NOT NULL,
		migrated   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rewards_raffle_rounds (
		id           TEXT PRIMARY KEY,
		round_number BIGINT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'open',
		entry_price  BIGINT NOT NULL,
		pot          BIGINT NOT NULL DEFAULT 0,
		entry_count  BIGINT NOT NULL DEFAULT 0,
		winner_id    TEXT NOT NULL DEFAULT '',
		prize        BIGINT NOT NULL DEFAULT 0,
		metadata     JSONB,
		drawn_at     TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rewards_raffle_entries (
		id         TEXT PRIMARY KEY,
		round_id   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		token_id   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rewards_raffle_entries_round
		ON rewards_raffle_entries (round_id)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
