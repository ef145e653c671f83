package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

type fixedLimits struct {
	decision *QuotaDecision
	err      error
}

func (f fixedLimits) Reserve(ctx context.Context, userID string) (*QuotaDecision, error) {
	return f.decision, f.err
}

func (f fixedLimits) Release(ctx context.Context, userID string) error {
	return nil
}

var allowAll = fixedLimits{decision: &QuotaDecision{Allowed: true, Count: 1, Limit: 3}}

func TestWorkflow_Run(t *testing.T) {
	t.Run("completes all stages in order", func(t *testing.T) {
		intel := &fakeIntel{listings: testListings()}
		w := NewWorkflow(allowAll, intel, testLogger())

		st, err := w.Run(context.Background(), "u1", "wireless mouse")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if st.Stage != StageDone {
			t.Errorf("Stage = %q, want done", st.Stage)
		}
		if len(st.Trace) != 5 {
			t.Fatalf("trace = %v, want 5 entries", st.Trace)
		}
		prefixes := []string{"Search limit checked", "Found 2 listings across 2 platforms", "Market analyzed", "Price trend predicted", "Recommendation"}
		for i, p := range prefixes {
			if !strings.HasPrefix(st.Trace[i], p) {
				t.Errorf("trace[%d] = %q, want prefix %q", i, st.Trace[i], p)
			}
		}
		if !slices.Equal(intel.calls, []string{"search", "analyze", "predict"}) {
			t.Errorf("calls = %v", intel.calls)
		}
		if st.Recommendation == nil || st.MarketAnalysis == nil || st.PricePrediction == nil {
			t.Error("expected insights to be filled")
		}
		if st.Degraded() {
			t.Error("real listings should not be degraded")
		}
	})

	t.Run("limit denial stops before search", func(t *testing.T) {
		resetsAt := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
		limits := fixedLimits{decision: &QuotaDecision{Allowed: false, Count: 3, Limit: 3, ResetsAt: &resetsAt}}
		intel := &fakeIntel{listings: testListings()}

		st, err := NewWorkflow(limits, intel, testLogger()).Run(context.Background(), "u1", "mouse")

		var lerr *UserLimitError
		if !errors.As(err, &lerr) {
			t.Fatalf("error = %v, want UserLimitError", err)
		}
		if !lerr.ResetsAt.Equal(resetsAt) {
			t.Errorf("ResetsAt = %v, want %v", lerr.ResetsAt, resetsAt)
		}
		if !errors.Is(err, ErrUserLimitExceeded) {
			t.Error("error should match ErrUserLimitExceeded")
		}
		if len(intel.calls) != 0 {
			t.Errorf("intelligence called %v after denial", intel.calls)
		}
		if st.FailedStage != StageCheckUserLimits || st.Stage != StageFailed {
			t.Errorf("state = %q/%q", st.Stage, st.FailedStage)
		}
	})

	t.Run("empty search never analyzes", func(t *testing.T) {
		intel := &fakeIntel{}
		st, err := NewWorkflow(allowAll, intel, testLogger()).Run(context.Background(), "u1", "mouse")

		if !errors.Is(err, ErrNoListings) {
			t.Fatalf("error = %v, want ErrNoListings", err)
		}
		var serr *StageError
		if !errors.As(err, &serr) || serr.Stage != StageSearchProducts {
			t.Errorf("error = %v, want StageError at search_products", err)
		}
		if slices.Contains(intel.calls, "analyze") {
			t.Error("analyze must not run without listings")
		}
		if st.Error == "" || !strings.HasPrefix(st.Error, string(StageSearchProducts)) {
			t.Errorf("Error = %q", st.Error)
		}
		if len(st.Trace) != 1 {
			t.Errorf("trace = %v, want only the limit check", st.Trace)
		}
	})

	t.Run("analysis failure halts the run", func(t *testing.T) {
		intel := &fakeIntel{listings: testListings(), analysisErr: ErrEmptyInput}
		st, err := NewWorkflow(allowAll, intel, testLogger()).Run(context.Background(), "u1", "mouse")

		if !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("error = %v, want ErrEmptyInput", err)
		}
		if slices.Contains(intel.calls, "predict") {
			t.Error("predict must not run after a failed stage")
		}
		if st.FailedStage != StageAnalyzeMarket {
			t.Errorf("FailedStage = %q, want analyze_market", st.FailedStage)
		}
	})

	t.Run("placeholder listing marks degraded", func(t *testing.T) {
		intel := &fakeIntel{listings: []models.ProductListing{placeholderListing("mouse")}}
		st, err := NewWorkflow(allowAll, intel, testLogger()).Run(context.Background(), "u1", "mouse")

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !st.Degraded() {
			t.Error("expected degraded state")
		}
		if st.Recommendation.Action != models.ActionMonitor {
			t.Errorf("Action = %q, want monitor", st.Recommendation.Action)
		}
	})

	t.Run("cancelled context stops at first stage", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		intel := &fakeIntel{listings: testListings()}

		_, err := NewWorkflow(allowAll, intel, testLogger()).Run(ctx, "u1", "mouse")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if len(intel.calls) != 0 {
			t.Errorf("calls = %v, want none", intel.calls)
		}
	})
}

// ========================================
// Quota Slot Tests
// ========================================

func TestWorkflow_QuotaSlot(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		listings  []models.ProductListing
		wantErr   error
		wantCount int
	}{
		{name: "completed run keeps its slot", listings: testListings(), wantCount: 1},
		{name: "failed run gives its slot back", count: 1, wantErr: ErrNoListings, wantCount: 1},
		{name: "denied run takes nothing", count: 3, listings: testListings(), wantErr: ErrUserLimitExceeded, wantCount: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			resetsAt := now.Add(time.Hour)
			users := newMockUserRepository()
			u := &models.User{ID: "u1", SearchCount: tt.count}
			if tt.count > 0 {
				u.SearchLimitResetsAt = &resetsAt
			}
			users.put(u)
			gate := NewSearchQuotaGate(users, 3, 24*time.Hour, testLogger())

			_, err := NewWorkflow(gate, &fakeIntel{listings: tt.listings}, testLogger()).Run(ctx, "u1", "mouse")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			got, _ := users.GetByID(ctx, "u1")
			if got.SearchCount != tt.wantCount {
				t.Errorf("SearchCount = %d, want %d", got.SearchCount, tt.wantCount)
			}
		})
	}
}
