package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/llm"
	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// ========================================
// UserService Tests
// ========================================

func newTestUserService(users *mockUserRepository, now time.Time) (*UserService, *llm.QuotaTracker) {
	quota := llm.NewQuotaTracker(llm.QuotaConfig{
		PerMinute: 15,
		PerDay:    1500,
		Now:       func() time.Time { return now },
	})
	return NewUserService(users, newTestGate(users, 100, now), quota, testLogger()), quota
}

func TestUserService_Ensure(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	users := newMockUserRepository()
	svc, _ := newTestUserService(users, now)
	ctx := context.Background()

	u, err := svc.Ensure(ctx, "u1", "a@example.com")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if u.ID != "u1" || u.Email != "a@example.com" {
		t.Errorf("user = %+v", u)
	}

	users.put(&models.User{ID: "u1", Email: "a@example.com", SearchCount: 4})
	again, err := svc.Ensure(ctx, "u1", "a@example.com")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if again.SearchCount != 4 {
		t.Errorf("SearchCount = %d, want 4 (existing user kept)", again.SearchCount)
	}
}

func TestUserService_Usage(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("reports count and upstream budget", func(t *testing.T) {
		users := newMockUserRepository()
		resets := now.Add(48 * time.Hour)
		users.put(&models.User{ID: "u1", SearchCount: 2, SearchLimitResetsAt: &resets})
		svc, quota := newTestUserService(users, now)
		quota.TryAcquire()

		u, err := svc.Usage(ctx, "u1")
		if err != nil {
			t.Fatalf("Usage: %v", err)
		}
		if u.SearchCount != 2 || u.SearchLimit != 100 {
			t.Errorf("usage = %d/%d, want 2/100", u.SearchCount, u.SearchLimit)
		}
		if u.ResetsAt == nil || !u.ResetsAt.Equal(resets) {
			t.Errorf("ResetsAt = %v, want %v", u.ResetsAt, resets)
		}
		if u.Upstream.PerMinute != 14 || u.Upstream.PerDay != 1499 {
			t.Errorf("Upstream = %+v, want 14/1499", u.Upstream)
		}
	})

	t.Run("expired window reads as reset", func(t *testing.T) {
		users := newMockUserRepository()
		expired := now.Add(-time.Hour)
		users.put(&models.User{ID: "u1", SearchCount: 100, SearchLimitResetsAt: &expired})
		svc, _ := newTestUserService(users, now)

		u, err := svc.Usage(ctx, "u1")
		if err != nil {
			t.Fatalf("Usage: %v", err)
		}
		if u.SearchCount != 0 || u.ResetsAt != nil {
			t.Errorf("usage = %+v, want reset window", u)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, _ := newTestUserService(newMockUserRepository(), now)
		if _, err := svc.Usage(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("error = %v, want ErrUserNotFound", err)
		}
	})
}
