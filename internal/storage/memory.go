package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"aigate/internal/models"
)

// MemoryStore is an in-memory KeyStore, UsageLedger and AdminStore for
// standalone deployments and tests. Each token gets its own mutex so a
// burst against one key never blocks accounting for the others; the
// store-wide mutex only guards map access.
type MemoryStore struct {
	mu     sync.RWMutex
	keys   map[string]*models.APIKey
	locks  map[string]*sync.Mutex
	ledger map[string][]*models.UsageRecord
	admins map[string]*models.AdminUser
}

var (
	_ KeyStore    = (*MemoryStore)(nil)
	_ UsageLedger = (*MemoryStore)(nil)
	_ AdminStore  = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:   make(map[string]*models.APIKey),
		locks:  make(map[string]*sync.Mutex),
		ledger: make(map[string][]*models.UsageRecord),
		admins: make(map[string]*models.AdminUser),
	}
}

// Create persists a new key, failing with ErrTokenExists on collision.
func (s *MemoryStore) Create(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(key)
}

// CreateForOwner persists a new key, also rejecting a second key for the
// same owner name.
func (s *MemoryStore) CreateForOwner(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.keys {
		if strings.EqualFold(existing.Name, key.Name) {
			return ErrNameTaken
		}
	}
	return s.insertLocked(key)
}

func (s *MemoryStore) insertLocked(key *models.APIKey) error {
	if _, ok := s.keys[key.Token]; ok {
		return ErrTokenExists
	}
	stored := *key
	s.keys[key.Token] = &stored
	s.locks[key.Token] = &sync.Mutex{}
	return nil
}

// Get returns a copy of the stored key.
func (s *MemoryStore) Get(ctx context.Context, token string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.keys[token]
	if !ok {
		return nil, ErrKeyNotFound
	}
	key := *stored
	return &key, nil
}

// List returns all keys, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*models.APIKey, 0, len(s.keys))
	for _, stored := range s.keys {
		key := *stored
		keys = append(keys, &key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

// Mutate applies fn under the token's mutex. fn works on a copy; the copy
// replaces the stored key only when fn returns nil, so an aborted
// mutation leaves no trace. A record returned by fn is appended in the
// same critical section as the write-back.
func (s *MemoryStore) Mutate(ctx context.Context, token string, fn MutateFunc) error {
	lock, err := s.tokenLock(token)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	stored, ok := s.keys[token]
	var work models.APIKey
	if ok {
		work = *stored
	}
	s.mu.RUnlock()
	if !ok {
		// Revoked while we waited on the lock.
		return ErrKeyNotFound
	}

	rec, err := fn(&work)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[token]; !ok {
		return ErrKeyNotFound
	}
	committed := work
	s.keys[token] = &committed
	if rec != nil {
		r := *rec
		s.ledger[token] = append(s.ledger[token], &r)
	}
	return nil
}

// Delete removes the key, its per-token lock and its ledger history.
func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	lock, err := s.tokenLock(token)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[token]; !ok {
		return ErrKeyNotFound
	}
	delete(s.keys, token)
	delete(s.locks, token)
	delete(s.ledger, token)
	return nil
}

func (s *MemoryStore) tokenLock(token string) (*sync.Mutex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lock, ok := s.locks[token]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return lock, nil
}

// Append writes one ledger record outside of a key mutation.
func (s *MemoryStore) Append(ctx context.Context, rec *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *rec
	s.ledger[rec.KeyToken] = append(s.ledger[rec.KeyToken], &r)
	return nil
}

// CountSince counts a token's records at or after since.
func (s *MemoryStore) CountSince(ctx context.Context, token string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, rec := range s.ledger[token] {
		if !rec.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// SumCost returns the lifetime credits a token has consumed.
func (s *MemoryStore) SumCost(ctx context.Context, token string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, rec := range s.ledger[token] {
		sum += rec.CostCredits
	}
	return sum, nil
}

// CountAllSince counts records across all tokens since the given time.
func (s *MemoryStore) CountAllSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, recs := range s.ledger {
		for _, rec := range recs {
			if !rec.CreatedAt.Before(since) {
				count++
			}
		}
	}
	return count, nil
}

// SumCostAll returns lifetime credits consumed across all tokens.
func (s *MemoryStore) SumCostAll(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, recs := range s.ledger {
		for _, rec := range recs {
			sum += rec.CostCredits
		}
	}
	return sum, nil
}

// TopByCountSince ranks tokens by request count since the given time.
func (s *MemoryStore) TopByCountSince(ctx context.Context, since time.Time, limit int) ([]KeyCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for token, recs := range s.ledger {
		for _, rec := range recs {
			if !rec.CreatedAt.Before(since) {
				counts[token]++
			}
		}
	}

	ranked := make([]KeyCount, 0, len(counts))
	for token, count := range counts {
		ranked = append(ranked, KeyCount{Token: token, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Token < ranked[j].Token
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// RecentForToken returns the most recent records for a token, newest first.
func (s *MemoryStore) RecentForToken(ctx context.Context, token string, limit int) ([]*models.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.ledger[token]
	n := len(recs)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]*models.UsageRecord, 0, n)
	for i := len(recs) - 1; i >= 0 && len(out) < n; i-- {
		rec := *recs[i]
		out = append(out, &rec)
	}
	return out, nil
}

// CreateAdmin adds an operator account.
func (s *MemoryStore) CreateAdmin(ctx context.Context, user *models.AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower := strings.ToLower(user.Username)
	if _, ok := s.admins[lower]; ok {
		return ErrAdminExists
	}
	stored := *user
	s.admins[lower] = &stored
	return nil
}

// GetAdminByUsername looks up an operator account.
func (s *MemoryStore) GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.admins[strings.ToLower(username)]
	if !ok {
		return nil, ErrAdminNotFound
	}
	user := *stored
	return &user, nil
}

// ListAdmins returns all operator accounts.
func (s *MemoryStore) ListAdmins(ctx context.Context) ([]*models.AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*models.AdminUser, 0, len(s.admins))
	for _, stored := range s.admins {
		user := *stored
		users = append(users, &user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}
