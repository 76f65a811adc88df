package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"aigate/internal/models"
)

func newTestKey(token, name string) *models.APIKey {
	now := time.Now().UTC()
	return &models.APIKey{
		Token:      token,
		Name:       name,
		Active:     true,
		DailyLimit: 30,
		LastReset:  now,
		CreatedAt:  now,
	}
}

func newTestRecord(token, operation string, cost int64, at time.Time) *models.UsageRecord {
	return &models.UsageRecord{
		ID:          uuid.New(),
		KeyToken:    token,
		Operation:   operation,
		CostCredits: cost,
		CreatedAt:   at,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	key := newTestKey("api_one", "alice")
	if err := store.Create(ctx, key); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "api_one")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "alice" {
		t.Errorf("Name = %q, want alice", got.Name)
	}

	// A second create with the same token must conflict.
	if err := store.Create(ctx, newTestKey("api_one", "bob")); !errors.Is(err, ErrTokenExists) {
		t.Errorf("Create duplicate = %v, want ErrTokenExists", err)
	}

	if _, err := store.Get(ctx, "api_missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get missing = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryStore_CreateForOwner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.CreateForOwner(ctx, newTestKey("api_one", "public:10.0.0.1")); err != nil {
		t.Fatalf("CreateForOwner failed: %v", err)
	}
	err := store.CreateForOwner(ctx, newTestKey("api_two", "PUBLIC:10.0.0.1"))
	if !errors.Is(err, ErrNameTaken) {
		t.Errorf("CreateForOwner duplicate owner = %v, want ErrNameTaken", err)
	}

	// Plain Create carries no owner constraint (admin issuance).
	if err := store.Create(ctx, newTestKey("api_three", "public:10.0.0.1")); err != nil {
		t.Errorf("Create with duplicate name = %v, want nil", err)
	}
}

func TestMemoryStore_MutateCommitsChanges(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestKey("api_one", "alice")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := store.Mutate(ctx, "api_one", func(k *models.APIKey) (*models.UsageRecord, error) {
		k.DailyUsed = 7
		return newTestRecord(k.Token, "text", 2, time.Now().UTC()), nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	got, err := store.Get(ctx, "api_one")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DailyUsed != 7 {
		t.Errorf("DailyUsed = %d, want 7", got.DailyUsed)
	}

	sum, err := store.SumCost(ctx, "api_one")
	if err != nil {
		t.Fatalf("SumCost failed: %v", err)
	}
	if sum != 2 {
		t.Errorf("SumCost = %d, want 2", sum)
	}
}

func TestMemoryStore_MutateErrorLeavesStateUnchanged(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestKey("api_one", "alice")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	boom := errors.New("boom")
	err := store.Mutate(ctx, "api_one", func(k *models.APIKey) (*models.UsageRecord, error) {
		k.DailyUsed = 99
		k.CreditBalance = -5
		return newTestRecord(k.Token, "text", 1, time.Now().UTC()), boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Mutate = %v, want boom", err)
	}

	got, err := store.Get(ctx, "api_one")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DailyUsed != 0 || got.CreditBalance != 0 {
		t.Errorf("aborted mutation leaked: used=%d balance=%d", got.DailyUsed, got.CreditBalance)
	}

	count, err := store.CountSince(ctx, "api_one", time.Time{})
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 0 {
		t.Errorf("aborted mutation appended %d ledger rows", count)
	}
}

func TestMemoryStore_MutateUnknownToken(t *testing.T) {
	store := NewMemoryStore()

	called := false
	err := store.Mutate(context.Background(), "api_missing", func(k *models.APIKey) (*models.UsageRecord, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Mutate = %v, want ErrKeyNotFound", err)
	}
	if called {
		t.Error("fn must not run for an unknown token")
	}
}

func TestMemoryStore_MutateSerializesPerToken(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestKey("api_one", "alice")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Mutate(ctx, "api_one", func(k *models.APIKey) (*models.UsageRecord, error) {
				k.DailyUsed++
				return nil, nil
			})
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "api_one")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DailyUsed != workers {
		t.Errorf("DailyUsed = %d, want %d (lost updates)", got.DailyUsed, workers)
	}
}

func TestMemoryStore_DeleteCascadesLedger(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestKey("api_one", "alice")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, newTestRecord("api_one", "text", 1, now)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if err := store.Delete(ctx, "api_one"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(ctx, "api_one"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after delete = %v, want ErrKeyNotFound", err)
	}
	count, err := store.CountSince(ctx, "api_one", time.Time{})
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 0 {
		t.Errorf("ledger rows survived revocation: %d", count)
	}

	if err := store.Delete(ctx, "api_one"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("second Delete = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryStore_LedgerQueries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)

	for _, token := range []string{"api_a", "api_b"} {
		if err := store.Create(ctx, newTestKey(token, token)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	// api_a: one old record, three today. api_b: one today.
	_ = store.Append(ctx, newTestRecord("api_a", "text", 5, yesterday))
	for i := 0; i < 3; i++ {
		_ = store.Append(ctx, newTestRecord("api_a", "text", 1, now.Add(time.Duration(i)*time.Minute)))
	}
	_ = store.Append(ctx, newTestRecord("api_b", "image", 2, now))

	count, err := store.CountSince(ctx, "api_a", now)
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 3 {
		t.Errorf("CountSince = %d, want 3", count)
	}

	sum, _ := store.SumCost(ctx, "api_a")
	if sum != 8 {
		t.Errorf("SumCost = %d, want 8", sum)
	}

	all, _ := store.CountAllSince(ctx, now)
	if all != 4 {
		t.Errorf("CountAllSince = %d, want 4", all)
	}

	total, _ := store.SumCostAll(ctx)
	if total != 10 {
		t.Errorf("SumCostAll = %d, want 10", total)
	}

	top, err := store.TopByCountSince(ctx, now, 5)
	if err != nil {
		t.Fatalf("TopByCountSince failed: %v", err)
	}
	if len(top) != 2 || top[0].Token != "api_a" || top[0].Count != 3 {
		t.Errorf("TopByCountSince = %+v, want api_a first with 3", top)
	}

	recent, err := store.RecentForToken(ctx, "api_a", 2)
	if err != nil {
		t.Fatalf("RecentForToken failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("RecentForToken returned %d records, want 2", len(recent))
	}
	if recent[0].CreatedAt.Before(recent[1].CreatedAt) {
		t.Error("RecentForToken must return newest first")
	}
}

func TestMemoryStore_AdminAccounts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	user := &models.AdminUser{ID: uuid.New(), Username: "mk", PasswordHash: "x", Enabled: true}
	if err := store.CreateAdmin(ctx, user); err != nil {
		t.Fatalf("CreateAdmin failed: %v", err)
	}
	if err := store.CreateAdmin(ctx, &models.AdminUser{ID: uuid.New(), Username: "MK"}); !errors.Is(err, ErrAdminExists) {
		t.Errorf("CreateAdmin duplicate = %v, want ErrAdminExists", err)
	}

	got, err := store.GetAdminByUsername(ctx, "MK")
	if err != nil {
		t.Fatalf("GetAdminByUsername failed: %v", err)
	}
	if got.Username != "mk" {
		t.Errorf("Username = %q, want mk", got.Username)
	}

	if _, err := store.GetAdminByUsername(ctx, "ghost"); !errors.Is(err, ErrAdminNotFound) {
		t.Errorf("GetAdminByUsername missing = %v, want ErrAdminNotFound", err)
	}

	users, err := store.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins failed: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("ListAdmins returned %d users, want 1", len(users))
	}
}
