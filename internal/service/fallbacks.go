package service

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

const (
	fallbackAnalysisConfidence   = 50
	fallbackPredictionConfidence = 40
)

var (
	hundred         = decimal.NewFromInt(100)
	predictionBand  = decimal.NewFromFloat(0.2)
	placeholderNote = "No live listings could be retrieved; try again shortly."
)

type priceStats struct {
	count   int
	average float64
	min     float64
	max     float64
}

// computePriceStats summarizes listing prices. Zero-priced placeholders only
// count when nothing else has a price.
func computePriceStats(listings []models.ProductListing) priceStats {
	prices := make([]decimal.Decimal, 0, len(listings))
	for _, l := range listings {
		if l.Price > 0 {
			prices = append(prices, toDecimal(l.Price))
		}
	}
	if len(prices) == 0 {
		for _, l := range listings {
			prices = append(prices, toDecimal(max(l.Price, 0)))
		}
	}
	if len(prices) == 0 {
		return priceStats{}
	}

	sum := decimal.Sum(prices[0], prices[1:]...)
	return priceStats{
		count:   len(prices),
		average: sum.Div(decimal.NewFromInt(int64(len(prices)))).Round(2).InexactFloat64(),
		min:     decimal.Min(prices[0], prices[1:]...).InexactFloat64(),
		max:     decimal.Max(prices[0], prices[1:]...).InexactFloat64(),
	}
}

// bestDeal picks the cheapest priced listing that can be bought, falling back
// to the cheapest priced listing of any availability.
func bestDeal(listings []models.ProductListing) models.Deal {
	var best *models.ProductListing
	buyable := false
	for i := range listings {
		l := &listings[i]
		if l.Price <= 0 {
			continue
		}
		inStock := l.Availability != models.OutOfStock
		switch {
		case best == nil,
			inStock && !buyable,
			inStock == buyable && l.Price < best.Price:
			best, buyable = l, inStock
		}
	}
	if best == nil {
		return models.Deal{Platform: models.PlatformUnknown, Reason: "No priced listings available"}
	}

	reason := "Lowest listed price"
	if best.DiscountPercent != nil && *best.DiscountPercent > 0 {
		reason = fmt.Sprintf("Lowest listed price with %.0f%% off", *best.DiscountPercent)
	}
	if !buyable {
		reason += " (currently out of stock)"
	}
	return models.Deal{Platform: best.Platform, Price: best.Price, Reason: reason}
}

// placeholderListing echoes the query so a failed search still returns one
// listing. It is out of stock, has no source and costs nothing.
func placeholderListing(query string) models.ProductListing {
	return models.ProductListing{
		Title:        query,
		Price:        0,
		Availability: models.OutOfStock,
		DeliveryNote: placeholderNote,
		Platform:     models.PlatformUnknown,
	}
}

// IsPlaceholder reports whether l is the listing returned when a search could
// not reach upstream.
func IsPlaceholder(l models.ProductListing) bool {
	return l.Platform == models.PlatformUnknown &&
		l.Price == 0 &&
		l.Availability == models.OutOfStock &&
		l.SourceURL == "" &&
		l.DeliveryNote == placeholderNote
}

func fallbackAnalysis(listings []models.ProductListing) *models.MarketAnalysis {
	stats := computePriceStats(listings)
	return &models.MarketAnalysis{
		AveragePrice:      stats.average,
		PriceRange:        models.PriceRange{Min: stats.min, Max: stats.max},
		BestDeal:          bestDeal(listings),
		MarketTrend:       models.TrendStable,
		RecommendedAction: models.ActionMonitor,
		Confidence:        fallbackAnalysisConfidence,
		Insights: []string{
			fmt.Sprintf("Computed from %d listing prices; detailed market insights are unavailable right now.", stats.count),
		},
	}
}

func fallbackPrediction(listings []models.ProductListing) *models.PricePrediction {
	mean := toDecimal(computePriceStats(listings).average)
	band := mean.Mul(predictionBand)
	return &models.PricePrediction{
		NextPeriodRange: models.PriceRange{
			Min: mean.Sub(band).Round(2).InexactFloat64(),
			Max: mean.Add(band).Round(2).InexactFloat64(),
		},
		Confidence:    fallbackPredictionConfidence,
		Factors:       []string{"Estimated as a 20% band around the current average price"},
		BestTimeToBuy: "Monitor prices over the next few weeks",
	}
}

func toDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func roundPrice(v float64) float64 {
	return toDecimal(v).Round(2).InexactFloat64()
}

func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return toDecimal(part).Div(toDecimal(whole)).Mul(hundred).Round(1).InexactFloat64()
}
