package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/metrics"
	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// Stage names a step of the search workflow.
type Stage string

const (
	StageCheckUserLimits         Stage = "check_user_limits"
	StageSearchProducts          Stage = "search_products"
	StageAnalyzeMarket           Stage = "analyze_market"
	StagePredictTrends           Stage = "predict_trends"
	StageGenerateRecommendations Stage = "generate_recommendations"
	StageDone                    Stage = "done"
	StageFailed                  Stage = "failed"
)

// ProductIntelligence is what the workflow needs from the upstream-backed
// product service.
type ProductIntelligence interface {
	SearchAcrossPlatforms(ctx context.Context, query string) []models.ProductListing
	AnalyzeMarket(ctx context.Context, listings []models.ProductListing) (*models.MarketAnalysis, error)
	PredictPriceTrends(ctx context.Context, listings []models.ProductListing, history []models.PricePoint) *models.PricePrediction
}

// UserLimits holds a slot of the user's search quota for the length of a run.
// Reserve checks and takes the slot in one step; Release gives it back.
type UserLimits interface {
	Reserve(ctx context.Context, userID string) (*QuotaDecision, error)
	Release(ctx context.Context, userID string) error
}

// WorkflowState is the value threaded through the stages. Stages receive a
// copy and return a new one.
type WorkflowState struct {
	Query           string                  `json:"query"`
	UserID          string                  `json:"userId"`
	SearchResults   []models.ProductListing `json:"searchResults"`
	MarketAnalysis  *models.MarketAnalysis  `json:"marketAnalysis,omitempty"`
	PricePrediction *models.PricePrediction `json:"pricePrediction,omitempty"`
	Recommendation  *models.Recommendation  `json:"recommendation,omitempty"`
	Trace           []string                `json:"trace"`
	Error           string                  `json:"error,omitempty"`
	Stage           Stage                   `json:"stage"`
	FailedStage     Stage                   `json:"failedStage,omitempty"`
	SlotHeld        bool                    `json:"-"`
}

// Degraded reports whether the search stage fell back to a placeholder.
func (s *WorkflowState) Degraded() bool {
	return len(s.SearchResults) == 1 && IsPlaceholder(s.SearchResults[0])
}

func (s WorkflowState) traced(format string, args ...any) WorkflowState {
	s.Trace = append(slices.Clone(s.Trace), fmt.Sprintf(format, args...))
	return s
}

type stageFunc func(ctx context.Context, st WorkflowState) (WorkflowState, error)

// Workflow runs the search pipeline:
// check_user_limits → search_products → analyze_market → predict_trends →
// generate_recommendations. The first failing stage ends the run.
type Workflow struct {
	limits UserLimits
	intel  ProductIntelligence
	logger *slog.Logger
}

// NewWorkflow creates a workflow.
func NewWorkflow(limits UserLimits, intel ProductIntelligence, logger *slog.Logger) *Workflow {
	return &Workflow{
		limits: limits,
		intel:  intel,
		logger: logger.With("component", "workflow"),
	}
}

func (w *Workflow) stages() []struct {
	stage Stage
	run   stageFunc
} {
	return []struct {
		stage Stage
		run   stageFunc
	}{
		{StageCheckUserLimits, w.checkUserLimits},
		{StageSearchProducts, w.searchProducts},
		{StageAnalyzeMarket, w.analyzeMarket},
		{StagePredictTrends, w.predictTrends},
		{StageGenerateRecommendations, w.generateRecommendations},
	}
}

// Run executes the workflow for one query. The returned state is never nil;
// on failure it carries the trace up to the failing stage and the error is a
// *StageError. The check stage takes one slot of the user's quota; a failed
// run gives it back, so only completed searches stay counted.
func (w *Workflow) Run(ctx context.Context, userID, query string) (*WorkflowState, error) {
	state := WorkflowState{Query: query, UserID: userID, Trace: []string{}}

	for _, s := range w.stages() {
		state.Stage = s.stage
		start := time.Now()

		err := ctx.Err()
		next := state
		if err == nil {
			next, err = s.run(ctx, state)
		}
		metrics.WorkflowStageDuration.WithLabelValues(string(s.stage)).Observe(time.Since(start).Seconds())

		if err != nil {
			state.Error = fmt.Sprintf("%s: %v", s.stage, err)
			state.FailedStage = s.stage
			state.Stage = StageFailed
			metrics.WorkflowRuns.WithLabelValues(string(s.stage)).Inc()
			w.logger.WarnContext(ctx, "workflow failed", "stage", s.stage, "error", err)
			if state.SlotHeld {
				w.release(ctx, userID)
				state.SlotHeld = false
			}
			return &state, &StageError{Stage: s.stage, Err: err}
		}
		state = next
	}

	state.Stage = StageDone
	metrics.WorkflowRuns.WithLabelValues(string(StageDone)).Inc()
	w.logger.InfoContext(ctx, "workflow completed",
		"listings", len(state.SearchResults),
		"degraded", state.Degraded(),
		"action", state.Recommendation.Action,
	)
	return &state, nil
}

// release runs even when the request was cancelled.
func (w *Workflow) release(ctx context.Context, userID string) {
	if err := w.limits.Release(context.WithoutCancel(ctx), userID); err != nil {
		w.logger.ErrorContext(ctx, "failed to release search slot", "error", err)
	}
}

func (w *Workflow) checkUserLimits(ctx context.Context, st WorkflowState) (WorkflowState, error) {
	d, err := w.limits.Reserve(ctx, st.UserID)
	if err != nil {
		return st, err
	}
	if !d.Allowed {
		lerr := &UserLimitError{Limit: d.Limit}
		if d.ResetsAt != nil {
			lerr.ResetsAt = *d.ResetsAt
		}
		return st, lerr
	}
	st.SlotHeld = true
	return st.traced("Search limit checked: %d of %d searches used", d.Count, d.Limit), nil
}

func (w *Workflow) searchProducts(ctx context.Context, st WorkflowState) (WorkflowState, error) {
	listings := w.intel.SearchAcrossPlatforms(ctx, st.Query)
	if len(listings) == 0 {
		return st, ErrNoListings
	}
	st.SearchResults = listings

	if st.Degraded() {
		return st.traced("Live listings are unavailable right now; returned a placeholder result"), nil
	}
	platforms := map[models.Platform]struct{}{}
	for _, l := range listings {
		platforms[l.Platform] = struct{}{}
	}
	return st.traced("Found %d listings across %d platforms", len(listings), len(platforms)), nil
}

func (w *Workflow) analyzeMarket(ctx context.Context, st WorkflowState) (WorkflowState, error) {
	a, err := w.intel.AnalyzeMarket(ctx, st.SearchResults)
	if err != nil {
		return st, err
	}
	st.MarketAnalysis = a
	return st.traced("Market analyzed: average price %.2f, trend %s, confidence %d", a.AveragePrice, a.MarketTrend, a.Confidence), nil
}

func (w *Workflow) predictTrends(ctx context.Context, st WorkflowState) (WorkflowState, error) {
	p := w.intel.PredictPriceTrends(ctx, st.SearchResults, nil)
	st.PricePrediction = p
	return st.traced("Price trend predicted: %.2f to %.2f next period, confidence %d",
		p.NextPeriodRange.Min, p.NextPeriodRange.Max, p.Confidence), nil
}

func (w *Workflow) generateRecommendations(_ context.Context, st WorkflowState) (WorkflowState, error) {
	if st.MarketAnalysis == nil || st.PricePrediction == nil {
		return st, errors.New("missing analysis or prediction")
	}
	r := Recommend(st.MarketAnalysis, st.PricePrediction)
	st.Recommendation = r
	return st.traced("Recommendation: %s, target price %.2f", r.Action, r.TargetPrice), nil
}
