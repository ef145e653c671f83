package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ========================================
// EnsureUser / GetByID Tests
// ========================================

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	repos := setupTestRepos(t)

	u, err := repos.User.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if u != nil {
		t.Errorf("GetByID() = %+v, want nil", u)
	}
}

func TestUserRepository_EnsureUser(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)

	u, err := repos.User.EnsureUser(ctx, "user_1", "a@example.com")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if u.SearchCount != 0 || u.SearchLimitResetsAt != nil {
		t.Errorf("new user quota = %d/%v, want 0/nil", u.SearchCount, u.SearchLimitResetsAt)
	}

	// An empty email must not clobber the stored one.
	u, err = repos.User.EnsureUser(ctx, "user_1", "")
	if err != nil {
		t.Fatalf("EnsureUser() second call error = %v", err)
	}
	if u.Email != "a@example.com" {
		t.Errorf("Email = %q, want %q", u.Email, "a@example.com")
	}

	u, _ = repos.User.EnsureUser(ctx, "user_1", "b@example.com")
	if u.Email != "b@example.com" {
		t.Errorf("Email = %q, want %q", u.Email, "b@example.com")
	}
}

// ========================================
// Search quota Tests
// ========================================

func TestUserRepository_IncrementSearchCount_FirstSetsReset(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)
	insertTestUser(t, repos, "user_1")

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour

	ok, err := repos.User.IncrementSearchCount(ctx, "user_1", 100, week, now)
	if err != nil || !ok {
		t.Fatalf("IncrementSearchCount() = %v, %v, want true, nil", ok, err)
	}

	u, _ := repos.User.GetByID(ctx, "user_1")
	if u.SearchCount != 1 {
		t.Errorf("SearchCount = %d, want 1", u.SearchCount)
	}
	if u.SearchLimitResetsAt == nil || !u.SearchLimitResetsAt.Equal(now.Add(week)) {
		t.Errorf("SearchLimitResetsAt = %v, want %v", u.SearchLimitResetsAt, now.Add(week))
	}

	// A later increment inside the window keeps the original reset time.
	later := now.Add(2 * 24 * time.Hour)
	if _, err := repos.User.IncrementSearchCount(ctx, "user_1", 100, week, later); err != nil {
		t.Fatalf("IncrementSearchCount() error = %v", err)
	}
	u, _ = repos.User.GetByID(ctx, "user_1")
	if u.SearchCount != 2 {
		t.Errorf("SearchCount = %d, want 2", u.SearchCount)
	}
	if !u.SearchLimitResetsAt.Equal(now.Add(week)) {
		t.Errorf("SearchLimitResetsAt moved to %v", u.SearchLimitResetsAt)
	}
}

func TestUserRepository_IncrementSearchCount_StopsAtLimit(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)
	insertTestUser(t, repos, "user_1")
	now := time.Now()

	for i := 0; i < 2; i++ {
		if ok, err := repos.User.IncrementSearchCount(ctx, "user_1", 2, time.Hour, now); err != nil || !ok {
			t.Fatalf("increment %d = %v, %v", i, ok, err)
		}
	}

	ok, err := repos.User.IncrementSearchCount(ctx, "user_1", 2, time.Hour, now)
	if err != nil {
		t.Fatalf("IncrementSearchCount() error = %v", err)
	}
	if ok {
		t.Error("IncrementSearchCount() at limit should not apply")
	}

	u, _ := repos.User.GetByID(ctx, "user_1")
	if u.SearchCount != 2 {
		t.Errorf("SearchCount = %d, want 2", u.SearchCount)
	}
}

func TestUserRepository_IncrementSearchCount_RestartsExpiredWindow(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)
	insertTestUser(t, repos, "user_1")

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		repos.User.IncrementSearchCount(ctx, "user_1", 3, time.Hour, start)
	}

	after := start.Add(2 * time.Hour)
	ok, err := repos.User.IncrementSearchCount(ctx, "user_1", 3, time.Hour, after)
	if err != nil || !ok {
		t.Fatalf("IncrementSearchCount() after expiry = %v, %v, want true, nil", ok, err)
	}

	u, _ := repos.User.GetByID(ctx, "user_1")
	if u.SearchCount != 1 {
		t.Errorf("SearchCount = %d, want 1", u.SearchCount)
	}
	if !u.SearchLimitResetsAt.Equal(after.Add(time.Hour)) {
		t.Errorf("SearchLimitResetsAt = %v, want %v", u.SearchLimitResetsAt, after.Add(time.Hour))
	}
}

func TestUserRepository_IncrementSearchCount_Concurrent(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)
	insertTestUser(t, repos, "user_1")
	now := time.Now()

	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := repos.User.IncrementSearchCount(ctx, "user_1", 5, time.Hour, now); err == nil && ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := applied.Load(); got != 5 {
		t.Errorf("applied increments = %d, want 5", got)
	}
	u, _ := repos.User.GetByID(ctx, "user_1")
	if u.SearchCount != 5 {
		t.Errorf("SearchCount = %d, want 5", u.SearchCount)
	}
}

func TestUserRepository_ResetSearchQuota(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)
	insertTestUser(t, repos, "user_1")

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repos.User.IncrementSearchCount(ctx, "user_1", 10, time.Hour, start)

	t.Run("not yet expired", func(t *testing.T) {
		reset, err := repos.User.ResetSearchQuota(ctx, "user_1", start.Add(30*time.Minute))
		if err != nil {
			t.Fatalf("ResetSearchQuota() error = %v", err)
		}
		if reset {
			t.Error("ResetSearchQuota() should not reset inside the window")
		}
	})

	t.Run("expired", func(t *testing.T) {
		reset, err := repos.User.ResetSearchQuota(ctx, "user_1", start.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("ResetSearchQuota() error = %v", err)
		}
		if !reset {
			t.Fatal("ResetSearchQuota() should reset after the window")
		}
		u, _ := repos.User.GetByID(ctx, "user_1")
		if u.SearchCount != 0 || u.SearchLimitResetsAt != nil {
			t.Errorf("after reset = %d/%v, want 0/nil", u.SearchCount, u.SearchLimitResetsAt)
		}
	})
}

func TestUserRepository_IncrementSearchCount_RestartsAtExactReset(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)
	insertTestUser(t, repos, "user_1")

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repos.User.IncrementSearchCount(ctx, "user_1", 1, time.Hour, start)

	// Sub-second part is lost in storage; the window is over at the reset second.
	ok, err := repos.User.IncrementSearchCount(ctx, "user_1", 1, time.Hour, start.Add(time.Hour+500*time.Millisecond))
	if err != nil || !ok {
		t.Fatalf("IncrementSearchCount() at reset = %v, %v, want true, nil", ok, err)
	}
	u, _ := repos.User.GetByID(ctx, "user_1")
	if u.SearchCount != 1 {
		t.Errorf("SearchCount = %d, want 1", u.SearchCount)
	}
}

// ========================================
// ReleaseSearch Tests
// ========================================

func TestUserRepository_ReleaseSearch(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)
	insertTestUser(t, repos, "user_1")

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repos.User.IncrementSearchCount(ctx, "user_1", 5, time.Hour, now)
	repos.User.IncrementSearchCount(ctx, "user_1", 5, time.Hour, now)

	ok, err := repos.User.ReleaseSearch(ctx, "user_1")
	if err != nil || !ok {
		t.Fatalf("ReleaseSearch() = %v, %v, want true, nil", ok, err)
	}
	u, _ := repos.User.GetByID(ctx, "user_1")
	if u.SearchCount != 1 {
		t.Errorf("SearchCount = %d, want 1", u.SearchCount)
	}
}

func TestUserRepository_ReleaseSearch_NeverNegative(t *testing.T) {
	ctx := context.Background()
	repos := setupTestRepos(t)
	insertTestUser(t, repos, "user_1")

	ok, err := repos.User.ReleaseSearch(ctx, "user_1")
	if err != nil {
		t.Fatalf("ReleaseSearch() error = %v", err)
	}
	if ok {
		t.Error("ReleaseSearch() at zero should not apply")
	}
	u, _ := repos.User.GetByID(ctx, "user_1")
	if u.SearchCount != 0 {
		t.Errorf("SearchCount = %d, want 0", u.SearchCount)
	}
}
