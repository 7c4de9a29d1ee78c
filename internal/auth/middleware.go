package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cognitivepath/api/internal/apperror"
	"github.com/cognitivepath/api/internal/model"
	"github.com/cognitivepath/api/internal/repository"
)

// Principal is the authenticated identity attached to a request after the
// middleware resolves the bearer token. It carries only what handlers need
// for authorization decisions — never the password hash.
type Principal struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Role  model.Role `json:"role"`
}

// contextKey is an unexported type for context keys in this package.
// Only this package can create a key of this type, so no other package can
// read or shadow the principal stored in the context.
type contextKey string

const principalKey contextKey = "principal"

// PrincipalFromContext retrieves the authenticated principal from the
// request context. Returns (nil, false) when the request is anonymous.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// RequireAuth enforces authentication on protected routes.
//
// Per-request algorithm:
//  1. Extract the bearer token: the Authorization header must start with
//     exactly "Bearer ". Missing or malformed → 401.
//  2. Verify the access token. Expired and invalid are reported with
//     distinct messages, both 401.
//  3. Look the user up — tokens are stateless, but existence and active
//     status are re-checked on EVERY request so a deactivated account is
//     cut off immediately, not when its token expires. Unknown user → 401,
//     deactivated → 403.
//  4. Attach the Principal to the request context and continue.
//
// A store failure in step 3 is an infrastructure error, not a credential
// error: it is logged and surfaced as a 500, never as a 401. Conflating
// the two would make an outage indistinguishable from a revoked login.
func RequireAuth(tokens *TokenService, users repository.UserRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, failure := resolvePrincipal(r, tokens, users)
			if failure != nil {
				var appErr *apperror.AppError
				if errors.As(failure, &appErr) {
					status := http.StatusUnauthorized
					if errors.Is(failure, apperror.ErrForbidden) {
						status = http.StatusForbidden
					}
					writeFail(w, status, appErr.Message)
					return
				}
				logger.Error("authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("error", failure.Error()),
				)
				writeFail(w, http.StatusInternalServerError, "Authentication failed. Please try again.")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves the principal when a valid token is present but
// never blocks the request. Use it on endpoints with mixed
// public/authenticated behavior (e.g. /health).
//
// The contract is "best effort, no error channel": every failure —
// including a store outage, which is logged — simply leaves the request
// anonymous. This middleware must never write a response.
func OptionalAuth(tokens *TokenService, users repository.UserRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, failure := resolvePrincipal(r, tokens, users)
			if failure != nil {
				var appErr *apperror.AppError
				if !errors.As(failure, &appErr) {
					// Infrastructure failure — worth a log line even though
					// the request proceeds anonymously.
					logger.Error("optional auth lookup failed",
						slog.String("path", r.URL.Path),
						slog.String("error", failure.Error()),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates an endpoint class to a fixed set of roles. It must run
// after RequireAuth; a missing principal here means a wiring bug, answered
// defensively with 401 rather than a panic.
//
// This check answers "can this role reach this endpoint class". Whether the
// principal may touch a specific record (a provider acting on someone
// else's patient) is the service layer's job.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeFail(w, http.StatusUnauthorized, "Authentication required.")
				return
			}

			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeFail(w, http.StatusForbidden, "Insufficient permissions. Access denied.")
		})
	}
}

// resolvePrincipal runs the shared extraction/verification/lookup sequence.
//
// Failure classes, distinguished by the returned error:
//   - *apperror.AppError wrapping ErrUnauthenticated or ErrForbidden —
//     credential problems, safe to show the client
//   - anything else — infrastructure failure (store unavailable etc.)
func resolvePrincipal(r *http.Request, tokens *TokenService, users repository.UserRepository) (*Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, apperror.Unauthenticated("Authentication required. Please provide a valid token.")
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

	userID, err := tokens.VerifyAccessToken(tokenStr)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperror.Unauthenticated("Token expired. Please login again.")
		}
		return nil, apperror.Unauthenticated("Invalid token. Please login again.")
	}

	user, err := users.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("User not found. Token is invalid.")
		}
		// Store failure — bubbles up as the infrastructure class.
		return nil, err
	}

	if !user.IsActive {
		return nil, apperror.Forbidden("Account is deactivated. Please contact administrator.")
	}

	return &Principal{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}, nil
}

// writeFail emits the standard failure envelope. The middleware can't use
// the handler package's helpers (the handlers import this package), so it
// carries its own copy of the two-field envelope.
func writeFail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
