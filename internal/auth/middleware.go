package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tabletalk/tabletalk/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

// Failure reasons, used as the metric label and in the 401 message.
const (
	FailureMissingKey    = "missing_key"
	FailureUnknownScheme = "unsupported_scheme"
	FailureInvalidKey    = "invalid_key"
)

var failureMessages = map[string]string{
	FailureMissingKey:    "missing API key",
	FailureUnknownScheme: "unsupported authorization scheme; send X-API-Key or Bearer",
	FailureInvalidKey:    "invalid API key",
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware admits requests carrying a key the validator knows and stores
// the caller's identity for RequireRole. The key is read from X-API-Key, then
// from an Authorization Bearer token.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, reason := presentedKey(r)
			if reason == "" {
				identity, ok := validator.Validate(r.Context(), apiKey)
				if ok {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
					return
				}
				reason = FailureInvalidKey
			}

			observability.IncrementAuthFailure(reason)
			level := slog.LevelDebug
			if reason == FailureInvalidKey {
				level = slog.LevelWarn
			}
			observability.WithTrace(r.Context(), logger).Log(r.Context(), level, "request rejected by api key auth",
				slog.String("reason", reason),
				slog.String("method", r.Method),
				slog.String("route", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			writeUnauthorized(w, r, failureMessages[reason])
		})
	}
}

// presentedKey returns the key or the reason none could be read.
func presentedKey(r *http.Request) (string, string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, ""
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return "", FailureMissingKey
	}
	scheme, token, _ := strings.Cut(authorization, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", FailureUnknownScheme
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", FailureMissingKey
	}
	return token, ""
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="tabletalk"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"error":      message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
