package storage

import (
	"context"
	"fmt"
)

// schemaStatements creates the persisted state layout: a keyed table of
// API keys, an append-only table of usage records referencing a key by
// token, and one row per operator in admin_users.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		token                 TEXT PRIMARY KEY,
		name                  TEXT NOT NULL DEFAULT 'User Key',
		active                BOOLEAN NOT NULL DEFAULT TRUE,
		daily_limit           BIGINT NOT NULL DEFAULT 30,
		daily_used            BIGINT NOT NULL DEFAULT 0,
		credit_balance        BIGINT NOT NULL DEFAULT 0,
		total_requests        BIGINT NOT NULL DEFAULT 0,
		rate_limit_per_minute INTEGER NOT NULL DEFAULT 0,
		last_reset            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_used_at          TIMESTAMPTZ,
		expires_at            TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_name ON api_keys (LOWER(name))`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id              UUID PRIMARY KEY,
		key_token       TEXT NOT NULL REFERENCES api_keys (token) ON DELETE CASCADE,
		operation       TEXT NOT NULL,
		prompt_summary  TEXT NOT NULL DEFAULT '',
		cost_credits    BIGINT NOT NULL DEFAULT 0,
		latency_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_records_token_created
		ON usage_records (key_token, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_records_created
		ON usage_records (created_at)`,
	`CREATE TABLE IF NOT EXISTS admin_users (
		id            UUID PRIMARY KEY,
		username      TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		enabled       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
