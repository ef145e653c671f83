package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

const maxSearchListings = 24

// flexNumber decodes a JSON number or a price-like string such as "₹1,299".
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := parsePrice(s)
		if err != nil {
			return err
		}
		*n = flexNumber(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = flexNumber(f)
	return nil
}

var currencyPrefixes = []string{"₹", "inr", "rs.", "rs"}

// parsePrice reads a single amount from text like "Rs. 1,299" or "₹1,299.00".
// Text holding more than one amount, such as a range, is rejected.
func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, p := range currencyPrefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}

	var amounts []string
	var run strings.Builder
	flush := func() {
		v := strings.Trim(run.String(), ".,")
		run.Reset()
		if strings.ContainsAny(v, "0123456789") {
			amounts = append(amounts, v)
		}
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			run.WriteRune(r)
		case r == '-':
			flush()
			run.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	if len(amounts) == 0 {
		return 0, nil
	}
	if len(amounts) > 1 {
		return 0, fmt.Errorf("not a single price: %q", s)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(amounts[0], ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %w", err)
	}
	return f, nil
}

func (n *flexNumber) ptr() *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

type wireRange struct {
	Min flexNumber `json:"min"`
	Max flexNumber `json:"max"`
}

type wireListing struct {
	Title           string      `json:"title"`
	Brand           string      `json:"brand"`
	Category        string      `json:"category"`
	Price           flexNumber  `json:"price"`
	OriginalPrice   *flexNumber `json:"originalPrice"`
	DiscountPercent *flexNumber `json:"discountPercent"`
	Availability    string      `json:"availability"`
	Seller          string      `json:"seller"`
	Rating          *flexNumber `json:"rating"`
	ReviewCount     *flexNumber `json:"reviewCount"`
	DeliveryNote    string      `json:"deliveryNote"`
	ImageURL        string      `json:"imageUrl"`
	SourceURL       string      `json:"sourceUrl"`
	Platform        string      `json:"platform"`
	Features        []string    `json:"features"`
}

type wireAnalysis struct {
	AveragePrice flexNumber `json:"averagePrice"`
	PriceRange   wireRange  `json:"priceRange"`
	BestDeal     struct {
		Platform string     `json:"platform"`
		Price    flexNumber `json:"price"`
		Reason   string     `json:"reason"`
	} `json:"bestDeal"`
	NoCostEMIOffer *struct {
		Platform string `json:"platform"`
		Reason   string `json:"reason"`
	} `json:"noCostEmiOffer"`
	MarketTrend       string     `json:"marketTrend"`
	RecommendedAction string     `json:"recommendedAction"`
	Confidence        flexNumber `json:"confidence"`
	Insights          []string   `json:"insights"`
}

type wirePrediction struct {
	NextPeriodRange wireRange  `json:"nextPeriodRange"`
	Confidence      flexNumber `json:"confidence"`
	Factors         []string   `json:"factors"`
	BestTimeToBuy   string     `json:"bestTimeToBuy"`
}

// shapeListing validates one upstream listing. ok is false for listings
// without a title or with a negative price.
func shapeListing(w wireListing) (models.ProductListing, bool) {
	title := strings.TrimSpace(w.Title)
	price := float64(w.Price)
	if title == "" || price < 0 || math.IsNaN(price) {
		return models.ProductListing{}, false
	}

	l := models.ProductListing{
		Title:        title,
		Brand:        strings.TrimSpace(w.Brand),
		Category:     strings.TrimSpace(w.Category),
		Price:        roundPrice(price),
		Availability: models.ParseAvailability(w.Availability),
		Seller:       strings.TrimSpace(w.Seller),
		DeliveryNote: strings.TrimSpace(w.DeliveryNote),
		ImageURL:     strings.TrimSpace(w.ImageURL),
		SourceURL:    strings.TrimSpace(w.SourceURL),
		Platform:     models.ParsePlatform(w.Platform),
		Features:     nonEmpty(w.Features),
	}
	if l.Platform == models.PlatformUnknown && l.SourceURL != "" {
		l.Platform = PlatformFromURL(l.SourceURL)
	}

	if op := w.OriginalPrice.ptr(); op != nil && *op > 0 {
		v := roundPrice(*op)
		l.OriginalPrice = &v
	}
	if d := w.DiscountPercent.ptr(); d != nil {
		v := clampFloat(*d, 0, 100)
		l.DiscountPercent = &v
	} else if l.OriginalPrice != nil && *l.OriginalPrice > l.Price && l.Price > 0 {
		v := math.Round((*l.OriginalPrice - l.Price) / *l.OriginalPrice * 100)
		l.DiscountPercent = &v
	}
	if r := w.Rating.ptr(); r != nil {
		v := clampFloat(*r, 0, 5)
		l.Rating = &v
	}
	if rc := w.ReviewCount.ptr(); rc != nil && *rc >= 0 {
		v := int(*rc)
		l.ReviewCount = &v
	}
	return l, true
}

func shapeListings(in []wireListing) []models.ProductListing {
	out := make([]models.ProductListing, 0, len(in))
	for _, w := range in {
		if l, ok := shapeListing(w); ok {
			out = append(out, l)
		}
		if len(out) == maxSearchListings {
			break
		}
	}
	return out
}

// shapeAnalysis normalizes an upstream analysis. Price figures that disagree
// with the listings are replaced with figures computed from them.
func shapeAnalysis(w *wireAnalysis, listings []models.ProductListing) *models.MarketAnalysis {
	stats := computePriceStats(listings)

	a := &models.MarketAnalysis{
		AveragePrice: roundPrice(float64(w.AveragePrice)),
		PriceRange: models.PriceRange{
			Min: roundPrice(float64(w.PriceRange.Min)),
			Max: roundPrice(float64(w.PriceRange.Max)),
		},
		BestDeal: models.Deal{
			Platform: models.ParsePlatform(w.BestDeal.Platform),
			Price:    roundPrice(float64(w.BestDeal.Price)),
			Reason:   strings.TrimSpace(w.BestDeal.Reason),
		},
		MarketTrend:       models.ParseMarketTrend(w.MarketTrend),
		RecommendedAction: models.ParseAction(w.RecommendedAction),
		Confidence:        clampConfidence(float64(w.Confidence)),
		Insights:          nonEmpty(w.Insights),
	}
	if w.NoCostEMIOffer != nil && strings.TrimSpace(w.NoCostEMIOffer.Reason) != "" {
		a.NoCostEMIOffer = &models.EMIOffer{
			Platform: models.ParsePlatform(w.NoCostEMIOffer.Platform),
			Reason:   strings.TrimSpace(w.NoCostEMIOffer.Reason),
		}
	}

	if stats.count > 0 {
		if a.PriceRange.Min != stats.min || a.PriceRange.Max != stats.max ||
			a.AveragePrice < stats.min || a.AveragePrice > stats.max {
			a.AveragePrice = stats.average
			a.PriceRange = models.PriceRange{Min: stats.min, Max: stats.max}
		}
		if a.BestDeal.Price <= 0 || a.BestDeal.Price < stats.min || a.BestDeal.Price > stats.max {
			a.BestDeal = bestDeal(listings)
		}
	}
	if a.Insights == nil {
		a.Insights = []string{}
	}
	return a
}

func shapePrediction(w *wirePrediction) *models.PricePrediction {
	lo := roundPrice(float64(w.NextPeriodRange.Min))
	hi := roundPrice(float64(w.NextPeriodRange.Max))
	if lo > hi {
		lo, hi = hi, lo
	}
	p := &models.PricePrediction{
		NextPeriodRange: models.PriceRange{Min: max(lo, 0), Max: max(hi, 0)},
		Confidence:      clampConfidence(float64(w.Confidence)),
		Factors:         nonEmpty(w.Factors),
		BestTimeToBuy:   strings.TrimSpace(w.BestTimeToBuy),
	}
	if p.Factors == nil {
		p.Factors = []string{}
	}
	return p
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func clampConfidence(v float64) int {
	return int(math.Round(clampFloat(v, 0, 100)))
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
