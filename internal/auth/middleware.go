package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// CookieName is the HttpOnly cookie carrying the access token.
const CookieName = "token"

// Denylist reports whether a token ID has been revoked. Implemented by
// session.RedisDenylist.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// contextKey is an unexported type used for context keys in this package.
// Only this package can create keys of this type, so no other package can
// shadow the values stored here.
type contextKey string

const (
	userIDKey contextKey = "userID"
	ownerKey  contextKey = "owner"
	claimsKey contextKey = "claims"
)

// RequireAuth is a middleware that enforces authentication on protected
// routes.
//
// It reads the JWT from the "token" cookie, falling back to an
// "Authorization: Bearer" header for non-browser clients, validates it and
// stores the user ID, the Owner and the claims in the request context. A
// missing, invalid or revoked token stops the chain with 401.
//
// denylist may be nil, in which case revocation is not checked. If the
// denylist itself fails the request is rejected with 503.
func RequireAuth(tokens *TokenService, denylist Denylist, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractClaims(r, tokens)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}

			if denylist != nil {
				revoked, err := denylist.IsRevoked(r.Context(), claims.ID)
				if err != nil {
					logger.Error("denylist lookup failed",
						slog.String("jti", claims.ID),
						slog.String("error", err.Error()),
					)
					writeAuthError(w, http.StatusServiceUnavailable, "storage_unavailable", "session store unavailable")
					return
				}
				if revoked {
					writeAuthError(w, http.StatusUnauthorized, "unauthorized", "session has been revoked")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns a copy of ctx carrying the authenticated identity.
// Handler tests use it to skip token handling.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, c)
	ctx = context.WithValue(ctx, userIDKey, c.Subject)
	return context.WithValue(ctx, ownerKey, c.Email)
}

// UserIDFromContext retrieves the authenticated user's ID.
// Returns ("", false) if the request is anonymous.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// OwnerFromContext retrieves the Owner every record of this request is
// scoped to.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey).(string)
	return owner, ok && owner != ""
}

// ClaimsFromContext retrieves the validated token claims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// TokenFromRequest returns the raw token from the cookie or the
// Authorization header, or "" if neither is present.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func extractClaims(r *http.Request, tokens *TokenService) (*Claims, error) {
	raw := TokenFromRequest(r)
	if raw == "" {
		return nil, http.ErrNoCookie
	}
	return tokens.Validate(raw)
}

func writeAuthError(w http.ResponseWriter, status int, errType, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + errType + `","message":"` + msg + `"}`))
}
