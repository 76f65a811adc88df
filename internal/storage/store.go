package storage

import (
	"context"
	"time"

	"aigate/internal/models"
)

// MutateFunc is applied to a stored API key exactly once, under per-token
// exclusion. Changes made to the key are committed when fn returns nil;
// a non-nil error aborts the mutation with no state change. When fn also
// returns a UsageRecord, the record is appended to the ledger in the same
// commit as the key mutation, so a failed write never charges the key
// without a matching ledger row (or vice versa).
type MutateFunc func(k *models.APIKey) (*models.UsageRecord, error)

// KeyStore is the durable record of API keys, keyed by token. Mutate is
// the single point where the no-lost-update guarantee is enforced: the
// accounting engine and the admin surface both build on it. Concurrent
// mutations of different tokens must not serialize against each other.
type KeyStore interface {
	// Create persists a new key. Fails with ErrTokenExists on collision.
	Create(ctx context.Context, key *models.APIKey) error

	// CreateForOwner persists a new key, additionally failing with
	// ErrNameTaken when any key already carries the same name. Used by
	// self-service issuance to hold the one-key-per-identity constraint.
	CreateForOwner(ctx context.Context, key *models.APIKey) error

	// Get returns the key for a token, or ErrKeyNotFound.
	Get(ctx context.Context, token string) (*models.APIKey, error)

	// List returns all keys, newest first.
	List(ctx context.Context) ([]*models.APIKey, error)

	// Mutate applies fn to the stored key atomically with respect to other
	// Mutate calls on the same token. Returns ErrKeyNotFound when the
	// token is unknown; fn is not invoked in that case.
	Mutate(ctx context.Context, token string, fn MutateFunc) error

	// Delete removes a key and cascades to its ledger entries.
	Delete(ctx context.Context, token string) error
}

// KeyCount pairs a token with a request count, for top-N reporting.
type KeyCount struct {
	Token string `db:"key_token" json:"api_key"`
	Count int64  `db:"request_count" json:"requests"`
}

// UsageLedger is the append-only log of admitted requests. Entries are
// written through KeyStore.Mutate (as part of the admit commit) or
// Append, and are removed only by the revocation cascade.
type UsageLedger interface {
	// Append writes one record. Per-token chronological order is
	// preserved for records appended through the same store.
	Append(ctx context.Context, rec *models.UsageRecord) error

	// CountSince counts records for a token at or after the given time.
	CountSince(ctx context.Context, token string, since time.Time) (int64, error)

	// SumCost returns the lifetime credits consumed by a token.
	SumCost(ctx context.Context, token string) (int64, error)

	// CountAllSince counts records across all tokens since the given time.
	CountAllSince(ctx context.Context, since time.Time) (int64, error)

	// SumCostAll returns lifetime credits consumed across all tokens.
	SumCostAll(ctx context.Context) (int64, error)

	// TopByCountSince ranks tokens by request count since the given time.
	TopByCountSince(ctx context.Context, since time.Time, limit int) ([]KeyCount, error)

	// RecentForToken returns the most recent records for a token.
	RecentForToken(ctx context.Context, token string, limit int) ([]*models.UsageRecord, error)
}

// AdminStore holds the operator accounts checked by the admin surface.
type AdminStore interface {
	CreateAdmin(ctx context.Context, user *models.AdminUser) error
	GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	ListAdmins(ctx context.Context) ([]*models.AdminUser, error)
}
