package models

import "strings"

// Platform identifies a supported marketplace.
type Platform string

const (
	PlatformAmazon   Platform = "amazon"
	PlatformFlipkart Platform = "flipkart"
	PlatformMyntra   Platform = "myntra"
	PlatformMeesho   Platform = "meesho"
	PlatformNykaa    Platform = "nykaa"
	PlatformAjio     Platform = "ajio"
	PlatformUnknown  Platform = "unknown"
)

// Platforms lists the marketplaces searched, in prompt order.
var Platforms = []Platform{
	PlatformAmazon, PlatformFlipkart, PlatformMyntra, PlatformMeesho, PlatformNykaa, PlatformAjio,
}

// ParsePlatform normalizes a model-supplied platform name.
func ParsePlatform(s string) Platform {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p
		}
	}
	return PlatformUnknown
}

// Availability is the stock state of a listing.
type Availability string

const (
	InStock      Availability = "in_stock"
	OutOfStock   Availability = "out_of_stock"
	LimitedStock Availability = "limited_stock"
)

// ParseAvailability accepts the enum values plus common free-text variants.
func ParseAvailability(s string) Availability {
	switch strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(s))) {
	case "out_of_stock", "unavailable", "sold_out":
		return OutOfStock
	case "limited_stock", "limited", "few_left", "low_stock":
		return LimitedStock
	default:
		return InStock
	}
}

// ProductListing is one product offer on one platform.
type ProductListing struct {
	Title           string       `json:"title"`
	Brand           string       `json:"brand,omitempty"`
	Category        string       `json:"category,omitempty"`
	Price           float64      `json:"price"`
	OriginalPrice   *float64     `json:"originalPrice,omitempty"`
	DiscountPercent *float64     `json:"discountPercent,omitempty"`
	Availability    Availability `json:"availability"`
	Seller          string       `json:"seller,omitempty"`
	Rating          *float64     `json:"rating,omitempty"`
	ReviewCount     *int         `json:"reviewCount,omitempty"`
	DeliveryNote    string       `json:"deliveryNote,omitempty"`
	ImageURL        string       `json:"imageUrl,omitempty"`
	SourceURL       string       `json:"sourceUrl"`
	Platform        Platform     `json:"platform"`
	Features        []string     `json:"features,omitempty"`
}

// MarketTrend is the observed direction of prices.
type MarketTrend string

const (
	TrendRising  MarketTrend = "rising"
	TrendFalling MarketTrend = "falling"
	TrendStable  MarketTrend = "stable"
)

// ParseMarketTrend maps unknown values to stable.
func ParseMarketTrend(s string) MarketTrend {
	switch MarketTrend(strings.ToLower(strings.TrimSpace(s))) {
	case TrendRising:
		return TrendRising
	case TrendFalling:
		return TrendFalling
	default:
		return TrendStable
	}
}

// Action is what a shopper is advised to do.
type Action string

const (
	ActionBuyNow  Action = "buy_now"
	ActionWait    Action = "wait"
	ActionMonitor Action = "monitor"
)

// ParseAction maps unknown values to monitor.
func ParseAction(s string) Action {
	switch Action(strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(s)))) {
	case ActionBuyNow:
		return ActionBuyNow
	case ActionWait:
		return ActionWait
	default:
		return ActionMonitor
	}
}

// PriceRange is an inclusive low/high pair.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Deal points at the best offer found.
type Deal struct {
	Platform Platform `json:"platform"`
	Price    float64  `json:"price"`
	Reason   string   `json:"reason"`
}

// EMIOffer notes a no-cost EMI option.
type EMIOffer struct {
	Platform Platform `json:"platform"`
	Reason   string   `json:"reason"`
}

// MarketAnalysis summarizes a set of listings.
type MarketAnalysis struct {
	AveragePrice      float64     `json:"averagePrice"`
	PriceRange        PriceRange  `json:"priceRange"`
	BestDeal          Deal        `json:"bestDeal"`
	NoCostEMIOffer    *EMIOffer   `json:"noCostEmiOffer,omitempty"`
	MarketTrend       MarketTrend `json:"marketTrend"`
	RecommendedAction Action      `json:"recommendedAction"`
	Confidence        int         `json:"confidence"`
	Insights          []string    `json:"insights"`
}

// PricePrediction is a forecast of where prices are heading.
type PricePrediction struct {
	NextPeriodRange PriceRange `json:"nextPeriodRange"`
	Confidence      int        `json:"confidence"`
	Factors         []string   `json:"factors"`
	BestTimeToBuy   string     `json:"bestTimeToBuy"`
}

// Recommendation is derived from an analysis and a prediction.
type Recommendation struct {
	Action      Action   `json:"action"`
	Rationale   string   `json:"rationale"`
	Confidence  int      `json:"confidence"`
	TargetPrice float64  `json:"targetPrice"`
	Platform    Platform `json:"platform,omitempty"`
	TimeFrame   string   `json:"timeFrame,omitempty"`
}

// Insights groups the analysis output persisted with a search.
type Insights struct {
	MarketAnalysis  *MarketAnalysis  `json:"marketAnalysis,omitempty"`
	PricePrediction *PricePrediction `json:"pricePrediction,omitempty"`
	Recommendation  *Recommendation  `json:"recommendation,omitempty"`
}
