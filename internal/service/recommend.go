package service

import (
	"fmt"
	"math"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// Recommend derives a recommendation from an analysis and a prediction
// without calling upstream. Both arguments must be non-nil.
//
// A predicted range entirely below the best current price means wait; one
// entirely above it means buy now; otherwise the analysis' action stands.
func Recommend(a *models.MarketAnalysis, p *models.PricePrediction) *models.Recommendation {
	current := a.BestDeal.Price
	if current <= 0 {
		current = a.AveragePrice
	}
	next := p.NextPeriodRange

	action := a.RecommendedAction
	switch {
	case current <= 0:
		action = models.ActionMonitor
	case next.Max > 0 && next.Max < current:
		action = models.ActionWait
	case next.Min > current:
		action = models.ActionBuyNow
	}

	r := &models.Recommendation{
		Action:     action,
		Confidence: int(math.Round(float64(a.Confidence+p.Confidence) / 2)),
	}
	if a.BestDeal.Platform != models.PlatformUnknown && a.BestDeal.Platform != "" {
		r.Platform = a.BestDeal.Platform
	}

	switch action {
	case models.ActionBuyNow:
		r.TargetPrice = current
		r.TimeFrame = "now"
		r.Rationale = fmt.Sprintf("The best current price of %.2f is at or below where prices are expected to be next period (%.2f to %.2f).",
			current, next.Min, next.Max)
	case models.ActionWait:
		r.TargetPrice = current
		if next.Min > 0 && next.Min < current {
			r.TargetPrice = roundPrice(next.Min)
		}
		r.TimeFrame = firstNonEmpty(p.BestTimeToBuy, "next 2-4 weeks")
		r.Rationale = fmt.Sprintf("Prices are expected to move to %.2f-%.2f against a best current price of %.2f; waiting for %.2f saves %.1f%%.",
			next.Min, next.Max, current, r.TargetPrice, percentOf(current-r.TargetPrice, current))
	default:
		r.TargetPrice = current
		if next.Min > 0 && next.Min < current {
			r.TargetPrice = roundPrice(next.Min)
		}
		r.TimeFrame = firstNonEmpty(p.BestTimeToBuy, "next 1-2 weeks")
		r.Rationale = fmt.Sprintf("The market looks %s; watch for a drop towards %.2f before buying.",
			a.MarketTrend, r.TargetPrice)
	}
	return r
}
