package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeDenylist struct {
	revoked map[string]bool
	err     error
}

func (f *fakeDenylist) Revoke(_ context.Context, id string, _ time.Time) error {
	if f.revoked == nil {
		f.revoked = map[string]bool{}
	}
	f.revoked[id] = true
	return nil
}

func (f *fakeDenylist) IsRevoked(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[id], nil
}

// echoOwner responds with the Owner and user ID found in the context.
var echoOwner = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	userID, _ := UserIDFromContext(r.Context())
	io.WriteString(w, owner+"|"+userID)
})

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	token, _, _ := ts.Generate("user-1", "ana@example.com")
	revokedToken, revokedClaims, _ := ts.Generate("user-1", "ana@example.com")

	deny := &fakeDenylist{}
	deny.Revoke(context.Background(), revokedClaims.ID, time.Now().Add(time.Hour))

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		denylist Denylist
		wantCode int
		wantBody string
	}{
		{
			name:     "cookie",
			setup:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) },
			wantCode: http.StatusOK,
			wantBody: "ana@example.com|user-1",
		},
		{
			name:     "bearer header",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			wantCode: http.StatusOK,
			wantBody: "ana@example.com|user-1",
		},
		{
			name:     "no token",
			setup:    func(r *http.Request) {},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "bad token",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "not revoked",
			setup:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) },
			denylist: deny,
			wantCode: http.StatusOK,
			wantBody: "ana@example.com|user-1",
		},
		{
			name:     "revoked",
			setup:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: revokedToken}) },
			denylist: deny,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "denylist down",
			setup:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) },
			denylist: &fakeDenylist{err: errors.New("connection refused")},
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			RequireAuth(ts, tt.denylist, discardLogger())(echoOwner).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestContextHelpers_Anonymous(t *testing.T) {
	ctx := context.Background()
	if _, ok := OwnerFromContext(ctx); ok {
		t.Error("OwnerFromContext() ok on empty context")
	}
	if _, ok := UserIDFromContext(ctx); ok {
		t.Error("UserIDFromContext() ok on empty context")
	}
	if _, ok := ClaimsFromContext(ctx); ok {
		t.Error("ClaimsFromContext() ok on empty context")
	}
}

func TestTokenFromRequest_CookieWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")

	if got := TokenFromRequest(req); got != "from-cookie" {
		t.Errorf("TokenFromRequest() = %q, want %q", got, "from-cookie")
	}
}
