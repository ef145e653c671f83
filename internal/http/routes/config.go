// Package routes provides shared route registration for the pricewatch API.
// Both the server and the OpenAPI generator register through it, so the
// published document always matches what is served.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/pricewatch-api/internal/http/mw"
	"github.com/jmylchreest/pricewatch-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Pricewatch API", version.Get().Version)
	cfg.Info.Description = "Cross-platform product search, market analysis and price tracking."

	// No $schema links in responses.
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "HS256 JWT whose subject is the user ID.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Search", Description: "Product search with market analysis and recommendations"},
		{Name: "Tracking", Description: "Tracked products and price history"},
		{Name: "Usage", Description: "Search allowance and upstream budget"},
		{Name: "Health", Description: "System health and status"},
	}

	return cfg
}

// GroupConfig derives the config for a route group mounted on its own
// middleware stack. The group shares the main API's OpenAPI document so its
// operations are published, but it serves no docs routes of its own.
func GroupConfig(cfg huma.Config) huma.Config {
	cfg.DocsPath = ""
	cfg.OpenAPIPath = ""
	cfg.SchemasPath = ""
	return cfg
}
