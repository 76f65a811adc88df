package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// APIKey is the unit of authorization and accounting. The token is the
// external identifier; it is generated once and never changes.
type APIKey struct {
	Token              string     `db:"token" json:"token"`
	Name               string     `db:"name" json:"name"`
	Active             bool       `db:"active" json:"active"`
	DailyLimit         int64      `db:"daily_limit" json:"daily_limit"` // 0 = no daily quota
	DailyUsed          int64      `db:"daily_used" json:"daily_used"`
	CreditBalance      int64      `db:"credit_balance" json:"credit_balance"`
	TotalRequests      int64      `db:"total_requests" json:"total_requests"`
	RateLimitPerMinute int        `db:"rate_limit_per_minute" json:"rate_limit_per_minute"` // 0 = disabled
	LastReset          time.Time  `db:"last_reset" json:"last_reset"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt         *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	ExpiresAt          *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// ExpiredAt reports whether the key has lapsed as of the given instant.
func (k *APIKey) ExpiredAt(now time.Time) bool {
	if k.ExpiresAt == nil {
		return false
	}
	return now.After(*k.ExpiresAt)
}

// IsExpired checks if the key has expired.
func (k *APIKey) IsExpired() bool {
	return k.ExpiredAt(time.Now())
}

// IsValid checks if the key is usable (active and not expired).
func (k *APIKey) IsValid() bool {
	return k.Active && !k.IsExpired()
}

// RemainingQuota returns the requests left in the current day, or -1 when
// no daily quota is configured.
func (k *APIKey) RemainingQuota() int64 {
	if k.DailyLimit <= 0 {
		return -1
	}
	remaining := k.DailyLimit - k.DailyUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Redacted returns the token in a form safe for listings and logs.
func (k *APIKey) Redacted() string {
	return RedactToken(k.Token)
}

// RedactToken shortens a token to its first 8 and last 4 characters.
func RedactToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:8] + "..." + token[len(token)-4:]
}

// tokenBytes is the entropy behind each generated token. 24 random bytes
// encode to 32 URL-safe characters.
const tokenBytes = 24

// GenerateToken mints a new API key token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return "api_" + base64.RawURLEncoding.EncodeToString(b), nil
}
