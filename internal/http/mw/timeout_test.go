package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTimeoutConfig_TimeoutFor(t *testing.T) {
	cfg := DefaultTimeoutConfig()

	tests := []struct {
		path string
		want time.Duration
	}{
		{"/api/v1/search", cfg.Extended},
		{"/api/v1/searches", cfg.Extended},
		{"/api/v1/track", cfg.Extended},
		{"/api/v1/tracked/abc", cfg.Extended},
		{"/api/v1/usage", cfg.Default},
		{"/healthz", cfg.Default},
	}
	for _, tt := range tests {
		if got := cfg.timeoutFor(tt.path); got != tt.want {
			t.Errorf("timeoutFor(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTimeout_FastHandler(t *testing.T) {
	handler := Timeout(TimeoutConfig{Default: 50 * time.Millisecond})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))

	if rec.Code != http.StatusCreated || rec.Body.String() != "ok" {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestTimeout_SlowHandler(t *testing.T) {
	cfg := TimeoutConfig{
		Default:          20 * time.Millisecond,
		Extended:         time.Second,
		ExtendedPatterns: []string{"/api/v1/search"},
	}
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(100 * time.Millisecond):
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := Timeout(cfg)(slow)

	t.Run("default path times out", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
		if rec.Code != http.StatusGatewayTimeout {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
		}
	})

	t.Run("extended path completes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/search", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestTimeout_ZeroDisables(t *testing.T) {
	handler := Timeout(TimeoutConfig{})(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestTimeout_PanicPropagates(t *testing.T) {
	handler := Timeout(TimeoutConfig{Default: time.Second})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	defer func() {
		if recover() == nil {
			t.Error("expected panic to propagate")
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
