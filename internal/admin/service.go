package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aigate/internal/accounting"
	"aigate/internal/models"
	"aigate/internal/storage"
	"aigate/internal/utils"
)

// ErrGenerationExhausted is returned when token generation keeps
// colliding with existing keys.
var ErrGenerationExhausted = errors.New("token generation attempts exhausted")

// maxTokenAttempts bounds the retry loop on token collisions. Collisions
// are vanishingly rare with 24 random bytes; hitting the bound indicates
// a broken entropy source rather than bad luck.
const maxTokenAttempts = 5

// ServiceConfig carries the issuance defaults.
type ServiceConfig struct {
	// SelfServeDailyLimit applies to keys minted through self-service.
	SelfServeDailyLimit int64

	// SelfServeCredits is the starting balance for self-service keys.
	SelfServeCredits int64

	// IssueTTL is the default lifetime for admin-issued keys; 0 means
	// keys never expire.
	IssueTTL time.Duration

	// DefaultRateLimitPerMinute applies to self-issued keys and to
	// admin-issued keys that do not set their own limit; 0 disables
	// per-minute limiting by default.
	DefaultRateLimitPerMinute int
}

// DefaultServiceConfig matches the public defaults: 30 requests per day,
// a small starting balance, one year of validity for admin-issued keys.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		SelfServeDailyLimit: 30,
		SelfServeCredits:    100,
		IssueTTL:            365 * 24 * time.Hour,
	}
}

// Service implements the admin control surface. Every mutation goes
// through the key store's Mutate/Delete primitives, so admin writes get
// the same per-token atomicity as the accounting engine.
type Service struct {
	keys   storage.KeyStore
	ledger storage.UsageLedger
	cfg    ServiceConfig
	now    func() time.Time
	logger *utils.Logger
}

// NewService creates the admin service.
func NewService(keys storage.KeyStore, ledger storage.UsageLedger, cfg ServiceConfig) *Service {
	return &Service{
		keys:   keys,
		ledger: ledger,
		cfg:    cfg,
		now:    time.Now,
		logger: utils.NewLogger("admin"),
	}
}

// WithClock overrides the service's time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueParams describes an admin-issued key. Zero TTL falls back to the
// configured default; a negative TTL means no expiry. The same convention
// applies to RateLimitPerMinute: zero falls back to the configured
// default, negative means unlimited.
type IssueParams struct {
	Name               string
	DailyLimit         int64
	InitialCredits     int64
	TTL                time.Duration
	RateLimitPerMinute int
}

// Issue mints a new API key with a unique token, retrying on the
// (astronomically unlikely) token collision a bounded number of times.
func (s *Service) Issue(ctx context.Context, p IssueParams) (*models.APIKey, error) {
	if p.Name == "" {
		p.Name = "User Key"
	}
	if p.InitialCredits < 0 {
		return nil, fmt.Errorf("initial credits must not be negative, got %d", p.InitialCredits)
	}
	if p.DailyLimit < 0 {
		return nil, fmt.Errorf("daily limit must not be negative, got %d", p.DailyLimit)
	}

	now := s.now()
	var expiresAt *time.Time
	ttl := p.TTL
	if ttl == 0 {
		ttl = s.cfg.IssueTTL
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		expiresAt = &exp
	}

	rpm := p.RateLimitPerMinute
	if rpm == 0 {
		rpm = s.cfg.DefaultRateLimitPerMinute
	}
	if rpm < 0 {
		rpm = 0
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := models.GenerateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}

		key := &models.APIKey{
			Token:              token,
			Name:               p.Name,
			Active:             true,
			DailyLimit:         p.DailyLimit,
			CreditBalance:      p.InitialCredits,
			RateLimitPerMinute: rpm,
			LastReset:          now,
			CreatedAt:          now,
			ExpiresAt:          expiresAt,
		}
		err = s.keys.Create(ctx, key)
		if errors.Is(err, storage.ErrTokenExists) {
			s.logger.Warn("token collision during issuance", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("issued API key", "name", p.Name, "token", key.Redacted(), "daily_limit", p.DailyLimit)
		return key, nil
	}
	return nil, ErrGenerationExhausted
}

// SelfIssue mints a key for an unauthenticated requester, at most one
// per identity. Returns storage.ErrNameTaken when the identity already
// holds a key.
func (s *Service) SelfIssue(ctx context.Context, ownerName string) (*models.APIKey, error) {
	if ownerName == "" {
		return nil, fmt.Errorf("owner name must not be empty")
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := models.GenerateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}

		now := s.now()
		key := &models.APIKey{
			Token:              token,
			Name:               ownerName,
			Active:             true,
			DailyLimit:         s.cfg.SelfServeDailyLimit,
			CreditBalance:      s.cfg.SelfServeCredits,
			RateLimitPerMinute: s.cfg.DefaultRateLimitPerMinute,
			LastReset:          now,
			CreatedAt:          now,
		}
		err = s.keys.CreateForOwner(ctx, key)
		if errors.Is(err, storage.ErrTokenExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("self-issued API key", "owner", ownerName, "token", key.Redacted())
		return key, nil
	}
	return nil, ErrGenerationExhausted
}

// KeyReport is one row of the admin key listing: the stored key plus
// aggregates computed from the ledger. TodayUsed counts ledger rows
// since UTC midnight, so it agrees with the quota counter modulo a
// pending rollover; CreditsConsumed is lifetime spend.
type KeyReport struct {
	*models.APIKey
	TodayUsed       int64 `json:"today_used"`
	CreditsConsumed int64 `json:"credits_consumed"`
}

// ListAll returns every key enriched with ledger aggregates, newest
// first (store ordering).
func (s *Service) ListAll(ctx context.Context) ([]KeyReport, error) {
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, err
	}

	dayStart := accounting.StartOfDayUTC(s.now())
	reports := make([]KeyReport, 0, len(keys))
	for _, key := range keys {
		today, err := s.ledger.CountSince(ctx, key.Token, dayStart)
		if err != nil {
			return nil, fmt.Errorf("failed to count today's usage for %s: %w", key.Redacted(), err)
		}
		spent, err := s.ledger.SumCost(ctx, key.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to sum credit spend for %s: %w", key.Redacted(), err)
		}
		reports = append(reports, KeyReport{
			APIKey:          key,
			TodayUsed:       today,
			CreditsConsumed: spent,
		})
	}
	return reports, nil
}

// SetDailyLimit replaces a key's daily quota. 0 disables the quota.
func (s *Service) SetDailyLimit(ctx context.Context, token string, newLimit int64) error {
	if newLimit < 0 {
		return fmt.Errorf("daily limit must not be negative, got %d", newLimit)
	}
	return s.keys.Mutate(ctx, token, func(k *models.APIKey) (*models.UsageRecord, error) {
		k.DailyLimit = newLimit
		return nil, nil
	})
}

// AddCredits applies a signed delta to a key's balance and returns the
// new balance. A negative result is permitted, never silently clamped;
// it is logged since it is unexpected in normal use.
func (s *Service) AddCredits(ctx context.Context, token string, delta int64) (int64, error) {
	var balance int64
	err := s.keys.Mutate(ctx, token, func(k *models.APIKey) (*models.UsageRecord, error) {
		k.CreditBalance += delta
		balance = k.CreditBalance
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	if balance < 0 {
		s.logger.Warn("credit balance driven negative by admin adjustment",
			"token", models.RedactToken(token), "delta", delta, "balance", balance)
	}
	return balance, nil
}

// ResetDailyUsage zeroes a key's daily counter regardless of the reset
// policy, as if a new day had started.
func (s *Service) ResetDailyUsage(ctx context.Context, token string) error {
	now := s.now()
	return s.keys.Mutate(ctx, token, func(k *models.APIKey) (*models.UsageRecord, error) {
		k.DailyUsed = 0
		k.LastReset = now
		return nil, nil
	})
}

// Revoke hard-deletes a key and its entire ledger history. Returns a
// snapshot of the key as it was at deletion.
func (s *Service) Revoke(ctx context.Context, token string) (*models.APIKey, error) {
	key, err := s.keys.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.keys.Delete(ctx, token); err != nil {
		return nil, err
	}
	s.logger.Info("revoked API key", "token", key.Redacted(), "total_requests", key.TotalRequests)
	return key, nil
}

// topKeysLimit bounds the per-day ranking in SystemStats.
const topKeysLimit = 5

// Stats is the aggregate system view.
type Stats struct {
	TotalKeys        int                `json:"total_api_keys"`
	ActiveKeys       int                `json:"active_keys"`
	LifetimeRequests int64              `json:"total_requests_all_time"`
	LifetimeCredits  int64              `json:"total_credits_consumed"`
	RequestsToday    int64              `json:"requests_today"`
	TopKeysToday     []storage.KeyCount `json:"top_keys_today"`
}

// SystemStats aggregates counts over all keys and the current UTC day.
// Rankings come from the ledger, not the per-key counters, so they stay
// correct across day rollovers. Tokens in the ranking are redacted.
func (s *Service) SystemStats(ctx context.Context) (*Stats, error) {
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalKeys: len(keys)}
	for _, key := range keys {
		if key.Active {
			stats.ActiveKeys++
		}
		stats.LifetimeRequests += key.TotalRequests
	}

	dayStart := accounting.StartOfDayUTC(s.now())
	if stats.RequestsToday, err = s.ledger.CountAllSince(ctx, dayStart); err != nil {
		return nil, fmt.Errorf("failed to count today's requests: %w", err)
	}
	if stats.LifetimeCredits, err = s.ledger.SumCostAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to sum lifetime credit spend: %w", err)
	}

	top, err := s.ledger.TopByCountSince(ctx, dayStart, topKeysLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank keys by usage: %w", err)
	}
	for i := range top {
		top[i].Token = models.RedactToken(top[i].Token)
	}
	stats.TopKeysToday = top
	return stats, nil
}
