package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cognitivepath/api/internal/apperror"
	"github.com/cognitivepath/api/internal/auth"
	"github.com/cognitivepath/api/internal/model"
)

// =========================================================================
// FAKES AND FIXTURES
// =========================================================================

// memUserRepo is an in-memory repository.UserRepository for service tests.
type memUserRepo struct {
	byID   map[string]*model.User
	nextID int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[string]*model.User)}
}

func (r *memUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	r.nextID++
	user.ID = fmt.Sprintf("user-%d", r.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.byID[user.ID] = &cp
	return nil
}

func (r *memUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (r *memUserRepo) UpdateUserName(ctx context.Context, id, name string) (*model.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	u.Name = name
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) UpdateUserPassword(ctx context.Context, id, hash string) error {
	u, ok := r.byID[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.PasswordHash = hash
	return nil
}

func (r *memUserRepo) SetUserActive(ctx context.Context, id string, active bool) error {
	u, ok := r.byID[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.IsActive = active
	return nil
}

func newTestAuthService(t *testing.T) (*AuthService, *memUserRepo) {
	t.Helper()

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:    "test-access-secret-0123456789",
		RefreshSecret:   "test-refresh-secret-0123456789",
		AccessLifetime:  time.Hour,
		RefreshLifetime: 24 * time.Hour,
	})
	require.NoError(t, err)

	repo := newMemUserRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewAuthService(repo, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), logger)
	return svc, repo
}

func mustRegister(t *testing.T, svc *AuthService, email string, role model.Role) *AuthResult {
	t.Helper()
	res, err := svc.Register(context.Background(), email, "Passw0rd", "Alice Example", role)
	require.NoError(t, err)
	return res
}

// =========================================================================
// REGISTER
// =========================================================================

func TestRegister(t *testing.T) {
	svc, repo := newTestAuthService(t)

	res := mustRegister(t, svc, "alice@example.com", model.RoleProvider)

	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, model.RoleProvider, res.User.Role)
	assert.True(t, res.User.IsActive)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, res.AccessToken, res.RefreshToken)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	// Stored hash is bcrypt, not the plaintext.
	stored := repo.byID[res.User.ID]
	assert.NotEqual(t, "Passw0rd", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Passw0rd")))
}

func TestRegister_RoleDefaultsToPatient(t *testing.T) {
	svc, _ := newTestAuthService(t)

	res := mustRegister(t, svc, "alice@example.com", "")

	assert.Equal(t, model.RolePatient, res.User.Role)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestAuthService(t)

	tests := []struct {
		name      string
		email     string
		password  string
		userName  string
		role      model.Role
		wantField string
	}{
		{"bad email", "not-an-email", "Passw0rd", "Alice", "", "email"},
		{"short password", "a@b.co", "Pw1", "Alice", "", "password"},
		{"no uppercase", "a@b.co", "passw0rd", "Alice", "", "password"},
		{"no digit", "a@b.co", "Password", "Alice", "", "password"},
		{"short name", "a@b.co", "Passw0rd", "A", "", "name"},
		{"unknown role", "a@b.co", "Passw0rd", "Alice", model.Role("superuser"), "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.email, tt.password, tt.userName, tt.role)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newTestAuthService(t)
	mustRegister(t, svc, "alice@example.com", "")

	_, err := svc.Register(context.Background(), "alice@example.com", "Passw0rd", "Alice Two", "")
	require.ErrorIs(t, err, apperror.ErrValidation)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Email already registered", appErr.Message)
}

// =========================================================================
// LOGIN
// =========================================================================

func TestLogin(t *testing.T) {
	svc, _ := newTestAuthService(t)
	reg := mustRegister(t, svc, "alice@example.com", model.RoleProvider)

	res, err := svc.Login(context.Background(), "alice@example.com", "Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
}

// Unknown email and wrong password must be indistinguishable to the caller.
func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newTestAuthService(t)
	mustRegister(t, svc, "alice@example.com", "")

	_, errUnknown := svc.Login(context.Background(), "nobody@example.com", "Passw0rd")
	_, errWrongPw := svc.Login(context.Background(), "alice@example.com", "WrongPw99")

	require.ErrorIs(t, errUnknown, apperror.ErrUnauthenticated)
	require.ErrorIs(t, errWrongPw, apperror.ErrUnauthenticated)

	var e1, e2 *apperror.AppError
	require.ErrorAs(t, errUnknown, &e1)
	require.ErrorAs(t, errWrongPw, &e2)
	assert.Equal(t, "Invalid email or password", e1.Message)
	assert.Equal(t, e1.Message, e2.Message)
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	svc, _ := newTestAuthService(t)
	reg := mustRegister(t, svc, "alice@example.com", "")

	require.NoError(t, svc.Deactivate(context.Background(), reg.User.ID))

	// Even with the correct password, a deactivated account gets 403 —
	// never the generic credentials message.
	_, err := svc.Login(context.Background(), "alice@example.com", "Passw0rd")
	require.ErrorIs(t, err, apperror.ErrForbidden)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Account is deactivated. Please contact administrator.", appErr.Message)
}

// =========================================================================
// REFRESH
// =========================================================================

func TestRefresh(t *testing.T) {
	svc, _ := newTestAuthService(t)
	reg := mustRegister(t, svc, "alice@example.com", "")

	token, expiresAt, err := svc.Refresh(context.Background(), reg.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
}

func TestRefresh_Failures(t *testing.T) {
	svc, _ := newTestAuthService(t)
	reg := mustRegister(t, svc, "alice@example.com", "")

	t.Run("garbage token", func(t *testing.T) {
		_, _, err := svc.Refresh(context.Background(), "not.a.token")
		require.ErrorIs(t, err, apperror.ErrUnauthenticated)

		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Invalid refresh token", appErr.Message)
	})

	t.Run("access token on the refresh endpoint", func(t *testing.T) {
		_, _, err := svc.Refresh(context.Background(), reg.AccessToken)
		require.ErrorIs(t, err, apperror.ErrUnauthenticated)
	})

	t.Run("deactivated user", func(t *testing.T) {
		require.NoError(t, svc.Deactivate(context.Background(), reg.User.ID))

		_, _, err := svc.Refresh(context.Background(), reg.RefreshToken)
		require.ErrorIs(t, err, apperror.ErrUnauthenticated)

		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Invalid refresh token", appErr.Message)
	})
}

// =========================================================================
// PROFILE AND PASSWORD
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestAuthService(t)
	reg := mustRegister(t, svc, "alice@example.com", "")

	user, err := svc.UpdateProfile(context.Background(), reg.User.ID, "Alice Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", user.Name)

	_, err = svc.UpdateProfile(context.Background(), reg.User.ID, "A")
	require.ErrorIs(t, err, apperror.ErrValidation)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestAuthService(t)
	reg := mustRegister(t, svc, "alice@example.com", "")
	ctx := context.Background()

	t.Run("success, old password stops working", func(t *testing.T) {
		require.NoError(t, svc.ChangePassword(ctx, reg.User.ID, "Passw0rd", "NewPassw0rd"))

		_, err := svc.Login(ctx, "alice@example.com", "Passw0rd")
		require.ErrorIs(t, err, apperror.ErrUnauthenticated)

		_, err = svc.Login(ctx, "alice@example.com", "NewPassw0rd")
		require.NoError(t, err)
	})

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, reg.User.ID, "WrongPw99", "AnotherPw1")
		require.ErrorIs(t, err, apperror.ErrUnauthenticated)

		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Current password is incorrect", appErr.Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		err := svc.ChangePassword(ctx, reg.User.ID, "", "AnotherPw1")
		require.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("weak new password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, reg.User.ID, "NewPassw0rd", "weak")
		require.ErrorIs(t, err, apperror.ErrValidation)
	})
}
