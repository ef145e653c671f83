package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// UserRequestsPerMinute limits authenticated callers. 0 disables the limit.
	UserRequestsPerMinute int
	// IPRequestsPerMinute is the fallback for requests without user claims.
	IPRequestsPerMinute int
}

// DefaultRateLimitConfig returns the limits used when none are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		UserRequestsPerMinute: 30,
		IPRequestsPerMinute:   100,
	}
}

// userKey keys a limiter by user ID, falling back to the client IP.
func userKey(r *http.Request) (string, error) {
	claims := GetUserClaims(r.Context())
	if claims == nil || claims.UserID == "" {
		return httprate.KeyByIP(r)
	}
	return "user:" + claims.UserID, nil
}

// RateLimitByUser returns a middleware that rate limits by user ID.
// Should be applied AFTER authentication middleware.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.UserRequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	userLimiter := httprate.NewRateLimiter(
		cfg.UserRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(userKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
		}),
	)
	ipLimiter := httprate.NewRateLimiter(
		cfg.IPRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserClaims(r.Context()) == nil {
				ipLimiter.Handler(next).ServeHTTP(w, r)
				return
			}
			userLimiter.Handler(next).ServeHTTP(w, r)
		})
	}
}

// SearchBurstConfig is the request-level search ceiling. It is independent of
// the persisted per-user search window: separate counters, separate clocks.
type SearchBurstConfig struct {
	Limit  int
	Window time.Duration
}

// SearchBurstLimit returns a middleware that short-circuits searches once a
// user has made Limit search requests within Window. Denials are 429 with the
// limit and the time the current window ends.
func SearchBurstLimit(cfg SearchBurstConfig) func(http.Handler) http.Handler {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := httprate.NewRateLimiter(
		cfg.Limit,
		cfg.Window,
		httprate.WithKeyFuncs(userKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			p := problem{
				Status: http.StatusTooManyRequests,
				Detail: "search limit reached, try again later",
				Limit:  cfg.Limit,
			}
			// httprate sets the reset header before invoking the limit handler.
			if reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64); err == nil {
				t := time.Unix(reset, 0).UTC()
				p.ResetsAt = &t
			}
			writeProblem(w, p)
		}),
	)

	return limiter.Handler
}

// RateLimitByIP returns a middleware that rate limits by IP address.
// Useful for public endpoints or as a global fallback.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
