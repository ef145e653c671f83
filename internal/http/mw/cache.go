package mw

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	cacheMaxAgeShort = 30 * time.Second
	cacheMaxAgeLong  = 10 * time.Minute
)

// CachePolicy defines caching behavior for a route pattern.
type CachePolicy struct {
	// Pattern is a path prefix.
	Pattern string
	// CacheControl is the Cache-Control header value to set.
	CacheControl string
}

// CacheConfig holds the cache middleware configuration.
type CacheConfig struct {
	// Policies are matched in order; first match wins.
	Policies []CachePolicy
	// DefaultPolicy is applied when no policy matches (empty = no header set).
	DefaultPolicy string
}

// DefaultCacheConfig returns the cache policies for the API. Searches are
// immutable once stored, so a single search can be cached privately; every
// other user-scoped resource changes underneath the client.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultPolicy: "private, no-cache",
		Policies: []CachePolicy{
			{Pattern: "/api/v1/health", CacheControl: fmt.Sprintf("public, max-age=%d", int(cacheMaxAgeShort.Seconds()))},

			{Pattern: "/healthz", CacheControl: "no-store"},
			{Pattern: "/readyz", CacheControl: "no-store"},
			{Pattern: "/metrics", CacheControl: "no-store"},

			{Pattern: "/api/v1/searches/", CacheControl: fmt.Sprintf("private, max-age=%d", int(cacheMaxAgeLong.Seconds()))},
			{Pattern: "/api/v1/searches", CacheControl: "private, no-cache"},
			{Pattern: "/api/v1/tracked", CacheControl: "private, no-cache"},
			{Pattern: "/api/v1/usage", CacheControl: "no-store"},
		},
	}
}

// Cache returns middleware that sets Cache-Control headers based on route patterns.
// Non-GET/HEAD requests always get "no-store".
func Cache(cfg CacheConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}

			path := r.URL.Path
			for _, policy := range cfg.Policies {
				if strings.HasPrefix(path, policy.Pattern) {
					w.Header().Set("Cache-Control", policy.CacheControl)
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.DefaultPolicy != "" {
				w.Header().Set("Cache-Control", cfg.DefaultPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}
