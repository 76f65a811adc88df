package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"aigate/internal/models"
)

// PostgresStore implements KeyStore and UsageLedger on PostgreSQL.
// Mutate runs as a single transaction around SELECT ... FOR UPDATE, so
// concurrent admits on one token serialize at the row lock while other
// tokens proceed in parallel.
type PostgresStore struct {
	db *DB
}

var (
	_ KeyStore    = (*PostgresStore)(nil)
	_ UsageLedger = (*PostgresStore)(nil)
)

// NewPostgresStore creates a store backed by an open database connection.
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const apiKeyColumns = `token, name, active, daily_limit, daily_used, credit_balance,
	total_requests, rate_limit_per_minute, last_reset, created_at, last_used_at, expires_at`

// Create persists a new key, failing with ErrTokenExists on collision.
func (s *PostgresStore) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (token, name, active, daily_limit, daily_used, credit_balance,
		                      total_requests, rate_limit_per_minute, last_reset, created_at,
		                      last_used_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.conn.ExecContext(ctx, query,
		key.Token, key.Name, key.Active, key.DailyLimit, key.DailyUsed, key.CreditBalance,
		key.TotalRequests, key.RateLimitPerMinute, key.LastReset, key.CreatedAt,
		key.LastUsedAt, key.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenExists
		}
		return fmt.Errorf("failed to create API key: %w", err)
	}
	return nil
}

// CreateForOwner persists a new key unless the owner name is taken. The
// existence check and insert share one transaction so two racing
// self-service requests cannot both succeed.
func (s *PostgresStore) CreateForOwner(ctx context.Context, key *models.APIKey) error {
	tx, err := s.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Serialize racing self-service requests for the same identity; the
	// advisory lock is released at commit/rollback.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext(LOWER($1)))`, key.Name,
	); err != nil {
		return fmt.Errorf("failed to lock owner name: %w", err)
	}

	var taken bool
	err = tx.GetContext(ctx, &taken,
		`SELECT EXISTS (SELECT 1 FROM api_keys WHERE LOWER(name) = LOWER($1))`,
		key.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to check owner name: %w", err)
	}
	if taken {
		return ErrNameTaken
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO api_keys (token, name, active, daily_limit, daily_used, credit_balance,
		                      total_requests, rate_limit_per_minute, last_reset, created_at,
		                      last_used_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		key.Token, key.Name, key.Active, key.DailyLimit, key.DailyUsed, key.CreditBalance,
		key.TotalRequests, key.RateLimitPerMinute, key.LastReset, key.CreatedAt,
		key.LastUsedAt, key.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenExists
		}
		return fmt.Errorf("failed to create API key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit key creation: %w", err)
	}
	return nil
}

// Get returns the key for a token, or ErrKeyNotFound.
func (s *PostgresStore) Get(ctx context.Context, token string) (*models.APIKey, error) {
	var key models.APIKey
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE token = $1`, apiKeyColumns)

	err := s.db.conn.GetContext(ctx, &key, query, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return &key, nil
}

// List returns all keys, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	query := fmt.Sprintf(`SELECT %s FROM api_keys ORDER BY created_at DESC`, apiKeyColumns)

	if err := s.db.conn.SelectContext(ctx, &keys, query); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// Mutate locks the key row, applies fn and commits the write-back, along
// with the returned usage record if there is one, as one transaction.
// A non-nil error from fn rolls everything back.
func (s *PostgresStore) Mutate(ctx context.Context, token string, fn MutateFunc) error {
	tx, err := s.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var key models.APIKey
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE token = $1 FOR UPDATE`, apiKeyColumns)
	if err := tx.GetContext(ctx, &key, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to lock API key: %w", err)
	}

	rec, err := fn(&key)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE api_keys
		SET name = $2, active = $3, daily_limit = $4, daily_used = $5,
		    credit_balance = $6, total_requests = $7, rate_limit_per_minute = $8,
		    last_reset = $9, last_used_at = $10, expires_at = $11
		WHERE token = $1`,
		key.Token, key.Name, key.Active, key.DailyLimit, key.DailyUsed,
		key.CreditBalance, key.TotalRequests, key.RateLimitPerMinute,
		key.LastReset, key.LastUsedAt, key.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	if rec != nil {
		if err := insertUsageRecord(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit key mutation: %w", err)
	}
	return nil
}

// Delete removes a key; usage_records cascade via the foreign key.
func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	result, err := s.db.conn.ExecContext(ctx, `DELETE FROM api_keys WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

type usageExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertUsageRecord(ctx context.Context, execer usageExecer, rec *models.UsageRecord) error {
	_, err := execer.ExecContext(ctx, `
		INSERT INTO usage_records (id, key_token, operation, prompt_summary,
		                           cost_credits, latency_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.KeyToken, rec.Operation, rec.PromptSummary,
		rec.CostCredits, rec.LatencySeconds, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}
	return nil
}

// Append writes one ledger record outside of a key mutation.
func (s *PostgresStore) Append(ctx context.Context, rec *models.UsageRecord) error {
	return insertUsageRecord(ctx, s.db.conn, rec)
}

// CountSince counts a token's records at or after since.
func (s *PostgresStore) CountSince(ctx context.Context, token string, since time.Time) (int64, error) {
	var count int64
	err := s.db.conn.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM usage_records WHERE key_token = $1 AND created_at >= $2`,
		token, since,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage records: %w", err)
	}
	return count, nil
}

// SumCost returns the lifetime credits consumed by a token.
func (s *PostgresStore) SumCost(ctx context.Context, token string) (int64, error) {
	var sum int64
	err := s.db.conn.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(cost_credits), 0) FROM usage_records WHERE key_token = $1`,
		token,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage cost: %w", err)
	}
	return sum, nil
}

// CountAllSince counts records across all tokens since the given time.
func (s *PostgresStore) CountAllSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.conn.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM usage_records WHERE created_at >= $1`, since,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage records: %w", err)
	}
	return count, nil
}

// SumCostAll returns lifetime credits consumed across all tokens.
func (s *PostgresStore) SumCostAll(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.conn.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(cost_credits), 0) FROM usage_records`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage cost: %w", err)
	}
	return sum, nil
}

// TopByCountSince ranks tokens by request count since the given time.
func (s *PostgresStore) TopByCountSince(ctx context.Context, since time.Time, limit int) ([]KeyCount, error) {
	var ranked []KeyCount
	err := s.db.conn.SelectContext(ctx, &ranked, `
		SELECT key_token, COUNT(*) AS request_count
		FROM usage_records
		WHERE created_at >= $1
		GROUP BY key_token
		ORDER BY request_count DESC, key_token ASC
		LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rank usage records: %w", err)
	}
	return ranked, nil
}

// RecentForToken returns the most recent records for a token, newest first.
func (s *PostgresStore) RecentForToken(ctx context.Context, token string, limit int) ([]*models.UsageRecord, error) {
	var recs []*models.UsageRecord
	err := s.db.conn.SelectContext(ctx, &recs, `
		SELECT id, key_token, operation, prompt_summary, cost_credits, latency_seconds, created_at
		FROM usage_records
		WHERE key_token = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		token, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent usage: %w", err)
	}
	return recs, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
