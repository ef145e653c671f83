package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCache_NonGetRequest(t *testing.T) {
	handler := Cache(DefaultCacheConfig())(okHandler())

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/v1/searches/abc", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
			t.Errorf("%s Cache-Control = %q, want no-store", method, cc)
		}
	}
}

func TestCache_DefaultConfig(t *testing.T) {
	handler := Cache(DefaultCacheConfig())(okHandler())

	tests := []struct {
		path   string
		prefix string
	}{
		{"/api/v1/health", "public"},
		{"/healthz", "no-store"},
		{"/readyz", "no-store"},
		{"/metrics", "no-store"},
		{"/api/v1/searches/01JABC", "private, max-age="},
		{"/api/v1/searches", "private, no-cache"},
		{"/api/v1/tracked/01JABC/history", "private, no-cache"},
		{"/api/v1/usage", "no-store"},
		{"/api/v1/unknown", "private, no-cache"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			cc := rec.Header().Get("Cache-Control")
			if !strings.HasPrefix(cc, tt.prefix) {
				t.Errorf("Cache-Control = %q, want prefix %q", cc, tt.prefix)
			}
		})
	}
}

func TestCache_FirstMatchWins(t *testing.T) {
	cfg := CacheConfig{
		Policies: []CachePolicy{
			{Pattern: "/api", CacheControl: "first"},
			{Pattern: "/api/v1", CacheControl: "second"},
		},
	}
	handler := Cache(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodHead, "/api/v1/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if cc := rec.Header().Get("Cache-Control"); cc != "first" {
		t.Errorf("Cache-Control = %q, want first", cc)
	}
}

func TestCache_NoDefaultPolicy(t *testing.T) {
	handler := Cache(CacheConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if cc := rec.Header().Get("Cache-Control"); cc != "" {
		t.Errorf("Cache-Control = %q, want empty", cc)
	}
}
