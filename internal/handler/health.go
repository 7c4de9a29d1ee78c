package handler

import (
	"net/http"
	"time"

	"github.com/cognitivepath/api/internal/auth"
)

// HealthHandler serves the liveness endpoint.
//
// It sits behind OptionalAuth: anonymous callers get the plain status,
// while a request carrying a valid token also sees who the API thinks it
// is — handy for the mobile client's "am I still logged in" probe without
// burning a full profile fetch.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a HealthHandler reporting the given API version.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// HandleHealth reports service status.
//
// HTTP: GET /health (OptionalAuth)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"version":       h.version,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"authenticated": false,
	}

	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		data["authenticated"] = true
		data["role"] = principal.Role
	}

	writeSuccess(w, http.StatusOK, "API is running", data)
}
