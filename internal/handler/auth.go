package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cognitivepath/api/internal/apperror"
	"github.com/cognitivepath/api/internal/auth"
	"github.com/cognitivepath/api/internal/model"
	"github.com/cognitivepath/api/internal/service"
)

// AuthHandler exposes registration, login, token refresh, and the profile
// and password operations. It is pure HTTP translation: decode the body,
// call the service, write the envelope.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, logger: logger}
}

// authPayload is the token-pair response body shared by register and login.
type authPayload struct {
	User         *model.User `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
}

// HandleRegister creates a new account.
//
// HTTP: POST /auth/register
// Body: {"email","password","name","role"?}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string     `json:"email"`
		Password string     `json:"password"`
		Name     string     `json:"name"`
		Role     model.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("", "Invalid JSON body"))
		return
	}

	result, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "User registered successfully", authPayload{
		User:         result.User,
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	})
}

// HandleLogin authenticates email+password.
//
// HTTP: POST /auth/login
// Body: {"email","password"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("", "Invalid JSON body"))
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Login successful", authPayload{
		User:         result.User,
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	})
}

// HandleRefreshToken exchanges a refresh token for a new access token.
//
// HTTP: POST /auth/refresh-token
// Body: {"refreshToken"}
func (h *AuthHandler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("", "Invalid JSON body"))
		return
	}
	if req.RefreshToken == "" {
		writeError(w, apperror.ValidationFailed("refreshToken", "Refresh token is required"))
		return
	}

	token, expiresAt, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{
		"token":     token,
		"expiresAt": expiresAt,
	})
}

// HandleGetProfile returns the authenticated user's record.
//
// HTTP: GET /auth/profile (RequireAuth)
func (h *AuthHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		// Unreachable behind RequireAuth, answered defensively.
		writeError(w, apperror.Unauthenticated("Authentication required."))
		return
	}

	user, err := h.auth.Profile(r.Context(), principal.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{"user": user})
}

// HandleUpdateProfile changes the authenticated user's display name.
//
// HTTP: PUT /auth/profile (RequireAuth)
// Body: {"name"}
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Authentication required."))
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("", "Invalid JSON body"))
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), principal.ID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Profile updated successfully", map[string]any{"user": user})
}

// HandleChangePassword verifies the current password and sets a new one.
//
// HTTP: PUT /auth/change-password (RequireAuth)
// Body: {"currentPassword","newPassword"}
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Authentication required."))
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("", "Invalid JSON body"))
		return
	}

	if err := h.auth.ChangePassword(r.Context(), principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password changed successfully", nil)
}
