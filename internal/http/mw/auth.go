// Package mw contains HTTP middleware for the pricewatch-api.
package mw

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/auth"
	"github.com/jmylchreest/pricewatch-api/internal/logging"
	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserClaimsKey is the context key for user claims.
	UserClaimsKey ContextKey = "user_claims"
)

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

// UserClaims identifies the caller of a protected endpoint.
type UserClaims struct {
	UserID string // token subject
	Email  string
	Name   string
}

// TokenVerifier verifies a bearer token.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// UserProvisioner creates the user row on first sight.
type UserProvisioner interface {
	Ensure(ctx context.Context, userID, email string) (*models.User, error)
}

// Auth returns an authentication middleware for bearer JWTs. Every verified
// caller is provisioned before the request continues, so downstream quota
// checks always find a user row.
func Auth(verifier TokenVerifier, users UserProvisioner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			claims, err := validateToken(verifier, token)
			if err != nil {
				slog.Debug("auth validation failed", "error", err)
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if users != nil {
				if _, err := users.Ensure(r.Context(), claims.UserID, claims.Email); err != nil {
					slog.Error("failed to provision user", "user_id", claims.UserID, "error", err)
					writeJSONError(w, http.StatusInternalServerError, "failed to load user")
					return
				}
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			ctx = logging.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(header)
}

func validateToken(verifier TokenVerifier, token string) (*UserClaims, error) {
	if verifier == nil {
		return nil, auth.ErrInvalidToken
	}
	c, err := verifier.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return &UserClaims{
		UserID: c.Subject,
		Email:  c.Email,
		Name:   c.Name,
	}, nil
}

// GetUserClaims retrieves user claims from context.
func GetUserClaims(ctx context.Context) *UserClaims {
	claims, ok := ctx.Value(UserClaimsKey).(*UserClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithUserClaims returns a context carrying claims.
func WithUserClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, UserClaimsKey, claims)
}

// problem mirrors the error body huma writes, so chi-level rejections look
// the same to clients as handler errors.
type problem struct {
	Status   int        `json:"status"`
	Title    string     `json:"title"`
	Detail   string     `json:"detail"`
	Limit    int        `json:"limit,omitempty"`
	ResetsAt *time.Time `json:"resetsAt,omitempty"`
}

func writeProblem(w http.ResponseWriter, p problem) {
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeProblem(w, problem{Status: status, Detail: msg})
}
