package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cognitivepath/api/internal/apperror"
	"github.com/cognitivepath/api/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserStore is an in-memory repository.UserRepository. Set lookupErr to
// a non-nil error to simulate a store outage — the middleware must treat
// that as an infrastructure failure, not a credential failure.
type fakeUserStore struct {
	users     map[string]*model.User
	lookupErr error
}

func newFakeUserStore(users ...*model.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*model.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func (s *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (s *fakeUserStore) CreateUser(ctx context.Context, user *model.User) error { return nil }
func (s *fakeUserStore) UpdateUserName(ctx context.Context, id, name string) (*model.User, error) {
	return nil, apperror.NotFound("user", id)
}
func (s *fakeUserStore) UpdateUserPassword(ctx context.Context, id, hash string) error { return nil }
func (s *fakeUserStore) SetUserActive(ctx context.Context, id string, active bool) error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// okHandler records whether it ran and what principal it saw.
type okHandler struct {
	called    bool
	principal *Principal
}

func (h *okHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.principal, _ = PrincipalFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func decodeFailure(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding failure envelope: %v", err)
	}
	if body.Success {
		t.Error("failure envelope has success=true")
	}
	return body.Error
}

// activeUser returns a stored user and a valid access token for them.
func activeUser(t *testing.T, ts *TokenService) (*model.User, string) {
	t.Helper()
	user := &model.User{
		ID:       "user-1",
		Email:    "alice@example.com",
		Name:     "Alice",
		Role:     model.RoleProvider,
		IsActive: true,
	}
	token, _, err := ts.IssueAccessToken(user.ID)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return user, token
}

// =========================================================================
// RequireAuth TESTS
// =========================================================================

func TestRequireAuth_Success(t *testing.T) {
	ts := newTestTokenService(t)
	user, token := activeUser(t, ts)
	store := newFakeUserStore(user)

	next := &okHandler{}
	mw := RequireAuth(ts, store, discardLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	mw.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !next.called {
		t.Fatal("next handler was not called")
	}
	if next.principal == nil {
		t.Fatal("no principal attached to context")
	}
	if next.principal.ID != user.ID || next.principal.Role != model.RoleProvider {
		t.Errorf("principal = %+v, want id=%s role=provider", next.principal, user.ID)
	}
	if next.principal.Email != "alice@example.com" {
		t.Errorf("principal.Email = %q", next.principal.Email)
	}
}

func TestRequireAuth_Failures(t *testing.T) {
	ts := newTestTokenService(t)
	user, _ := activeUser(t, ts)

	expiredToken, _, err := ts.issue(user.ID, ts.accessSecret, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Refresh tokens must not pass the access gate.
	refreshToken, err := ts.IssueRefreshToken(user.ID)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	orphanToken, _, err := ts.IssueAccessToken("no-such-user")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	inactive := &model.User{ID: "user-2", Email: "bob@example.com", Role: model.RolePatient, IsActive: false}
	inactiveToken, _, err := ts.IssueAccessToken(inactive.ID)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	tests := []struct {
		name        string
		authHeader  string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "missing header",
			authHeader:  "",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Authentication required. Please provide a valid token.",
		},
		{
			name:        "wrong scheme",
			authHeader:  "Basic abc123",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Authentication required. Please provide a valid token.",
		},
		{
			name:        "garbage token",
			authHeader:  "Bearer not.a.jwt",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid token. Please login again.",
		},
		{
			name:        "expired token",
			authHeader:  "Bearer " + expiredToken,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Token expired. Please login again.",
		},
		{
			name:        "refresh token on access gate",
			authHeader:  "Bearer " + refreshToken,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid token. Please login again.",
		},
		{
			name:        "valid token, unknown user",
			authHeader:  "Bearer " + orphanToken,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "User not found. Token is invalid.",
		},
		{
			name:        "valid token, deactivated account",
			authHeader:  "Bearer " + inactiveToken,
			wantStatus:  http.StatusForbidden,
			wantMessage: "Account is deactivated. Please contact administrator.",
		},
	}

	store := newFakeUserStore(user, inactive)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &okHandler{}
			mw := RequireAuth(ts, store, discardLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/patients", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			mw.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := decodeFailure(t, rr); got != tt.wantMessage {
				t.Errorf("error = %q, want %q", got, tt.wantMessage)
			}
			if next.called {
				t.Error("next handler should not run on auth failure")
			}
		})
	}
}

// A store outage must surface as 500, never as a 401 — infrastructure
// failures and credential failures are different classes.
func TestRequireAuth_StoreFailureIs500(t *testing.T) {
	ts := newTestTokenService(t)
	user, token := activeUser(t, ts)

	store := newFakeUserStore(user)
	store.lookupErr = errors.New("connection refused")

	next := &okHandler{}
	mw := RequireAuth(ts, store, discardLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	mw.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if got := decodeFailure(t, rr); got != "Authentication failed. Please try again." {
		t.Errorf("error = %q", got)
	}
	if next.called {
		t.Error("next handler should not run on store failure")
	}
}

// =========================================================================
// OptionalAuth TESTS
// =========================================================================

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	user, token := activeUser(t, ts)

	t.Run("valid token attaches principal", func(t *testing.T) {
		store := newFakeUserStore(user)
		next := &okHandler{}
		mw := OptionalAuth(ts, store, discardLogger())(next)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		mw.ServeHTTP(rr, req)

		if !next.called {
			t.Fatal("next handler was not called")
		}
		if next.principal == nil || next.principal.ID != user.ID {
			t.Errorf("principal = %+v, want id=%s", next.principal, user.ID)
		}
	})

	anonymousCases := []struct {
		name  string
		setup func(req *http.Request, store *fakeUserStore)
	}{
		{
			name:  "no header",
			setup: func(req *http.Request, store *fakeUserStore) {},
		},
		{
			name: "garbage token",
			setup: func(req *http.Request, store *fakeUserStore) {
				req.Header.Set("Authorization", "Bearer junk")
			},
		},
		{
			name: "store outage is swallowed",
			setup: func(req *http.Request, store *fakeUserStore) {
				req.Header.Set("Authorization", "Bearer "+token)
				store.lookupErr = errors.New("connection refused")
			},
		},
	}

	for _, tt := range anonymousCases {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeUserStore(user)
			next := &okHandler{}
			mw := OptionalAuth(ts, store, discardLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			tt.setup(req, store)
			rr := httptest.NewRecorder()

			mw.ServeHTTP(rr, req)

			// Optional auth never blocks and never writes its own response.
			if !next.called {
				t.Fatal("next handler was not called")
			}
			if next.principal != nil {
				t.Errorf("principal = %+v, want anonymous", next.principal)
			}
			if rr.Code != http.StatusOK {
				t.Errorf("status = %d, want 200 from next handler", rr.Code)
			}
		})
	}
}

// =========================================================================
// RequireRole TESTS
// =========================================================================

func withPrincipal(req *http.Request, p *Principal) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), principalKey, p))
}

func TestRequireRole(t *testing.T) {
	provider := &Principal{ID: "p1", Role: model.RoleProvider}
	admin := &Principal{ID: "a1", Role: model.RoleAdmin}

	tests := []struct {
		name       string
		allowed    []model.Role
		principal  *Principal
		wantStatus int
	}{
		{
			name:       "admin-only rejects provider",
			allowed:    []model.Role{model.RoleAdmin},
			principal:  provider,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin-only accepts admin",
			allowed:    []model.Role{model.RoleAdmin},
			principal:  admin,
			wantStatus: http.StatusOK,
		},
		{
			name:       "provider+admin accepts provider",
			allowed:    []model.Role{model.RoleProvider, model.RoleAdmin},
			principal:  provider,
			wantStatus: http.StatusOK,
		},
		{
			name:       "provider+admin accepts admin",
			allowed:    []model.Role{model.RoleProvider, model.RoleAdmin},
			principal:  admin,
			wantStatus: http.StatusOK,
		},
		{
			name:       "no principal is 401",
			allowed:    []model.Role{model.RoleAdmin},
			principal:  nil,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &okHandler{}
			mw := RequireRole(tt.allowed...)(next)

			req := httptest.NewRequest(http.MethodDelete, "/patients/x", nil)
			if tt.principal != nil {
				req = withPrincipal(req, tt.principal)
			}
			rr := httptest.NewRecorder()

			mw.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if wantCalled := tt.wantStatus == http.StatusOK; next.called != wantCalled {
				t.Errorf("next.called = %v, want %v", next.called, wantCalled)
			}
		})
	}
}
