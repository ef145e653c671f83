package service

import (
	"testing"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

func TestRecommend(t *testing.T) {
	analysis := func(best float64, action models.Action) *models.MarketAnalysis {
		return &models.MarketAnalysis{
			AveragePrice:      best,
			BestDeal:          models.Deal{Platform: models.PlatformAmazon, Price: best},
			MarketTrend:       models.TrendStable,
			RecommendedAction: action,
			Confidence:        80,
		}
	}
	prediction := func(lo, hi float64) *models.PricePrediction {
		return &models.PricePrediction{NextPeriodRange: models.PriceRange{Min: lo, Max: hi}, Confidence: 60}
	}

	tests := []struct {
		name       string
		a          *models.MarketAnalysis
		p          *models.PricePrediction
		wantAction models.Action
		wantTarget float64
	}{
		{"prices expected to fall", analysis(1000, models.ActionBuyNow), prediction(800, 900), models.ActionWait, 800},
		{"prices expected to rise", analysis(1000, models.ActionWait), prediction(1100, 1200), models.ActionBuyNow, 1000},
		{"overlap keeps analysis action", analysis(1000, models.ActionBuyNow), prediction(950, 1050), models.ActionBuyNow, 1000},
		{"overlap monitor targets predicted low", analysis(1000, models.ActionMonitor), prediction(950, 1050), models.ActionMonitor, 950},
		{"no price means monitor", analysis(0, models.ActionBuyNow), prediction(0, 0), models.ActionMonitor, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Recommend(tt.a, tt.p)
			if r.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", r.Action, tt.wantAction)
			}
			if r.TargetPrice != tt.wantTarget {
				t.Errorf("TargetPrice = %v, want %v", r.TargetPrice, tt.wantTarget)
			}
			if r.Confidence != 70 {
				t.Errorf("Confidence = %d, want 70", r.Confidence)
			}
			if r.Rationale == "" {
				t.Error("Rationale should not be empty")
			}
		})
	}
}

func TestRecommend_PlatformOmittedWhenUnknown(t *testing.T) {
	a := &models.MarketAnalysis{BestDeal: models.Deal{Platform: models.PlatformUnknown, Price: 500}, RecommendedAction: models.ActionMonitor}
	r := Recommend(a, &models.PricePrediction{NextPeriodRange: models.PriceRange{Min: 450, Max: 550}})
	if r.Platform != "" {
		t.Errorf("Platform = %q, want empty", r.Platform)
	}
}
