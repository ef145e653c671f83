// Package models defines the domain models for the application.
// User ids are the subject claim of the bearer token that authenticated the request.
package models

import (
	"time"
)

// User holds the per-user search counter.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email,omitempty"`
	SearchCount         int        `json:"searchCount"`
	SearchLimitResetsAt *time.Time `json:"searchLimitResetsAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Search is a completed search kept for reuse within the cache window.
type Search struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Query           string           `json:"query"`
	NormalizedQuery string           `json:"-"`
	Results         []ProductListing `json:"results"`
	Insights        Insights         `json:"aiInsights"`
	Trace           []string         `json:"trace"`
	ArchiveKey      string           `json:"-"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// TrackedProduct is a set of product URLs watched for price changes.
type TrackedProduct struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Title         string           `json:"title"`
	URLs          []string         `json:"urls"`
	Listings      []ProductListing `json:"listings"`
	TargetPrice   *float64         `json:"targetPrice,omitempty"`
	LastCheckedAt *time.Time       `json:"lastCheckedAt,omitempty"`
	NextCheckAt   time.Time        `json:"nextCheckAt"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// LowestPrice returns the cheapest resolved listing, or nil.
func (p *TrackedProduct) LowestPrice() *ProductListing {
	var best *ProductListing
	for i := range p.Listings {
		l := &p.Listings[i]
		if l.Price <= 0 {
			continue
		}
		if best == nil || l.Price < best.Price {
			best = l
		}
	}
	return best
}

// PricePoint is one observation of a tracked URL's price.
type PricePoint struct {
	ID               string       `json:"id"`
	TrackedProductID string       `json:"trackedProductId"`
	Platform         Platform     `json:"platform"`
	URL              string       `json:"url"`
	Price            float64      `json:"price"`
	Availability     Availability `json:"availability"`
	RecordedAt       time.Time    `json:"recordedAt"`
}
