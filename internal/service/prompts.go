package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

const listingShape = `{
  "title": string,
  "brand": string,
  "category": string,
  "price": number,
  "originalPrice": number,
  "discountPercent": number,
  "availability": "in_stock" | "out_of_stock" | "limited_stock",
  "seller": string,
  "rating": number between 0 and 5,
  "reviewCount": number,
  "deliveryNote": string,
  "imageUrl": string,
  "sourceUrl": string,
  "platform": "amazon" | "flipkart" | "myntra" | "meesho" | "nykaa" | "ajio",
  "features": [string]
}`

func platformList() string {
	names := make([]string, len(models.Platforms))
	for i, p := range models.Platforms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func buildSearchPrompt(query string) string {
	return fmt.Sprintf(`You are a shopping assistant for Indian e-commerce.
Find current listings for the product query below on these platforms: %s.
Prices are in INR. Return at most %d listings, cheapest first.

Query: %q

Respond with a JSON array only. Each element must have this shape:
%s`, platformList(), maxSearchListings, query, listingShape)
}

// listingSummary is the subset of a listing sent back upstream for analysis.
type listingSummary struct {
	Title           string   `json:"title"`
	Platform        string   `json:"platform"`
	Price           float64  `json:"price"`
	OriginalPrice   *float64 `json:"originalPrice,omitempty"`
	DiscountPercent *float64 `json:"discountPercent,omitempty"`
	Availability    string   `json:"availability"`
	Seller          string   `json:"seller,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
}

func summarizeListings(listings []models.ProductListing) string {
	out := make([]listingSummary, 0, len(listings))
	for _, l := range listings {
		out = append(out, listingSummary{
			Title:           l.Title,
			Platform:        string(l.Platform),
			Price:           l.Price,
			OriginalPrice:   l.OriginalPrice,
			DiscountPercent: l.DiscountPercent,
			Availability:    string(l.Availability),
			Seller:          l.Seller,
			Rating:          l.Rating,
		})
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func buildAnalysisPrompt(listings []models.ProductListing) string {
	return fmt.Sprintf(`Analyze these product listings from Indian e-commerce platforms.

Listings:
%s

Respond with a single JSON object only:
{
  "averagePrice": number,
  "priceRange": {"min": number, "max": number},
  "bestDeal": {"platform": string, "price": number, "reason": string},
  "noCostEmiOffer": {"platform": string, "reason": string},
  "marketTrend": "rising" | "falling" | "stable",
  "recommendedAction": "buy_now" | "wait" | "monitor",
  "confidence": number between 0 and 100,
  "insights": [string]
}
Omit noCostEmiOffer if no listing offers one.`, summarizeListings(listings))
}

func buildPredictionPrompt(listings []models.ProductListing, history []models.PricePoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Predict where prices for this product are heading over the next 30 days.\n\nCurrent listings:\n%s\n", summarizeListings(listings))

	if len(history) > 0 {
		b.WriteString("\nPrice history (oldest first):\n")
		for _, p := range history {
			fmt.Fprintf(&b, "- %s %s %.2f\n", p.RecordedAt.UTC().Format(time.DateOnly), p.Platform, p.Price)
		}
	}

	b.WriteString(`
Respond with a single JSON object only:
{
  "nextPeriodRange": {"min": number, "max": number},
  "confidence": number between 0 and 100,
  "factors": [string],
  "bestTimeToBuy": string
}`)
	return b.String()
}

func buildFetchPrompt(rawURL string, platform models.Platform, hints *PageHints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Look up the product at this URL and describe its current offer.\n\nURL: %s\nPlatform: %s\n", rawURL, platform)

	if hints != nil {
		b.WriteString("\nThe page reports:\n")
		if hints.Title != "" {
			fmt.Fprintf(&b, "- title: %s\n", hints.Title)
		}
		if hints.Price != "" {
			fmt.Fprintf(&b, "- price: %s %s\n", hints.Price, hints.Currency)
		}
		if hints.Image != "" {
			fmt.Fprintf(&b, "- image: %s\n", hints.Image)
		}
	}

	fmt.Fprintf(&b, "\nRespond with a single JSON object only, with this shape:\n%s", listingShape)
	return b.String()
}
