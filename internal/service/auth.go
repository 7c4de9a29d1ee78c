// Package service holds the business rules, between the HTTP handlers and
// the repositories.
//
//	handler (HTTP) → service (rules) → repository (DB)
//	               ↘ auth.TokenService / auth.PasswordService
//
// Services never touch HTTP types and never see status codes; they raise
// apperror values and the handlers translate.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"
	"unicode"

	"github.com/cognitivepath/api/internal/apperror"
	"github.com/cognitivepath/api/internal/auth"
	"github.com/cognitivepath/api/internal/model"
	"github.com/cognitivepath/api/internal/repository"
)

// emailPattern is a sanity check, not RFC 5322 — enough to catch obvious
// typos; deliverability is the only real test of an address.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthService implements registration, login, token refresh, and the
// profile/password operations behind the /auth routes.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService wires an AuthService. All dependencies are injected;
// the composition root (internal/server) owns construction.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the authenticated user with a freshly issued token
// pair. Both tokens always encode the same user ID — they are minted
// together from the same record.
type AuthResult struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
}

// Register creates a new account and issues its first token pair.
//
// role defaults to patient when empty; an unknown role is a validation
// error rather than a silent downgrade. A duplicate email is reported the
// same way whether it is caught by the lookup here or by the UNIQUE index
// under a concurrent race.
func (s *AuthService) Register(ctx context.Context, email, password, name string, role model.Role) (*AuthResult, error) {
	if err := validateRegistration(email, password, name); err != nil {
		return nil, err
	}
	if role == "" {
		role = model.RolePatient
	}
	if !role.Valid() {
		return nil, apperror.ValidationFailed("role", "Invalid role")
	}

	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperror.ValidationFailed("email", "Email already registered")
	case !isNotFound(err):
		return nil, fmt.Errorf("service/auth: checking email %s: %w", email, err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user (email=%s): %w", email, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
		slog.String("role", string(user.Role)),
	)

	return s.issueTokens(user)
}

// Login authenticates email+password and issues a new token pair.
//
// ENUMERATION RESISTANCE:
// Unknown email and wrong password produce the identical 401 message —
// a failed login must not tell an attacker which half was wrong. The one
// deliberate exception is a deactivated account, which answers 403 so a
// legitimate locked-out user knows to contact an administrator.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.Unauthenticated("Invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	if !user.IsActive {
		return nil, apperror.Forbidden("Account is deactivated. Please contact administrator.")
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthenticated("Invalid email or password")
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	return s.issueTokens(user)
}

// Refresh verifies a refresh token and mints a new access token.
//
// The token itself is stateless, but the account is re-checked: a missing
// or deactivated user invalidates the refresh immediately, which is the
// only revocation mechanism this design has before the token expires.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return "", time.Time{}, apperror.Unauthenticated("Refresh token expired. Please login again.")
		}
		return "", time.Time{}, apperror.Unauthenticated("Invalid refresh token")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return "", time.Time{}, apperror.Unauthenticated("Invalid refresh token")
		}
		return "", time.Time{}, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	if !user.IsActive {
		return "", time.Time{}, apperror.Unauthenticated("Invalid refresh token")
	}

	accessToken, expiresAt, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("service/auth: issuing access token for %s: %w", user.ID, err)
	}

	return accessToken, expiresAt, nil
}

// Profile returns the full record for an authenticated user.
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// UpdateProfile changes the display name. Name is the only self-editable
// field — email and role are fixed at registration.
func (s *AuthService) UpdateProfile(ctx context.Context, userID, name string) (*model.User, error) {
	if len(name) < 2 || len(name) > 100 {
		return nil, apperror.ValidationFailed("name", "Name must be between 2 and 100 characters")
	}

	user, err := s.users.UpdateUserName(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("service/auth: updating profile for %s: %w", userID, err)
	}

	return user, nil
}

// ChangePassword verifies the current password before replacing it.
// The new password must meet the same strength rules as registration.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperror.ValidationFailed("", "Current password and new password are required")
	}
	if err := validatePasswordStrength(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, currentPassword); err != nil {
		return apperror.Unauthenticated("Current password is incorrect")
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("service/auth: updating password for %s: %w", userID, err)
	}

	s.logger.Info("password changed", slog.String("userID", userID))

	return nil
}

// Deactivate marks an account inactive — the terminal state. Every
// subsequent request with that account's tokens is rejected at the
// authentication gate, and refresh stops working.
func (s *AuthService) Deactivate(ctx context.Context, userID string) error {
	if err := s.users.SetUserActive(ctx, userID, false); err != nil {
		return fmt.Errorf("service/auth: deactivating user %s: %w", userID, err)
	}

	s.logger.Info("user deactivated", slog.String("userID", userID))

	return nil
}

func (s *AuthService) issueTokens(user *model.User) (*AuthResult, error) {
	accessToken, expiresAt, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing access token for %s: %w", user.ID, err)
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing refresh token for %s: %w", user.ID, err)
	}

	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func validateRegistration(email, password, name string) error {
	if !emailPattern.MatchString(email) {
		return apperror.ValidationFailed("email", "Please provide a valid email address")
	}
	if err := validatePasswordStrength(password); err != nil {
		return err
	}
	if len(name) < 2 || len(name) > 100 {
		return apperror.ValidationFailed("name", "Name must be between 2 and 100 characters")
	}
	return nil
}

// validatePasswordStrength requires at least 8 characters with an upper,
// a lower, and a digit.
func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return apperror.ValidationFailed("password", "Password must be at least 8 characters long")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return apperror.ValidationFailed("password",
			"Password must contain at least one uppercase letter, one lowercase letter, and one number")
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
