package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cognitivepath/api/internal/apperror"
	"github.com/cognitivepath/api/internal/auth"
	"github.com/cognitivepath/api/internal/service"
)

// PatientHandler exposes CRUD on clinical records. Role gating happens at
// the route table (RequireRole); instance-level ownership happens in the
// service. This layer only translates HTTP.
type PatientHandler struct {
	patients *service.PatientService
	logger   *slog.Logger
}

// NewPatientHandler creates a PatientHandler.
func NewPatientHandler(patients *service.PatientService, logger *slog.Logger) *PatientHandler {
	return &PatientHandler{patients: patients, logger: logger}
}

// HandleList returns the caller's visible patients with pagination.
//
// HTTP: GET /patients?page=&limit=&risk_level=&status=
func (h *PatientHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Authentication required."))
		return
	}

	q := r.URL.Query()
	params := service.ListParams{
		RiskLevel: q.Get("risk_level"),
		Status:    q.Get("status"),
	}
	params.Page, _ = strconv.Atoi(q.Get("page"))
	params.Limit, _ = strconv.Atoi(q.Get("limit"))

	patients, pagination, err := h.patients.List(r.Context(), principal, params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{
		"patients":   patients,
		"pagination": pagination,
	})
}

// HandleGet returns one patient.
//
// HTTP: GET /patients/{id}
func (h *PatientHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Authentication required."))
		return
	}

	patient, err := h.patients.Get(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{"patient": patient})
}

// HandleCreate adds a patient record.
//
// HTTP: POST /patients (RequireRole: provider, admin)
func (h *PatientHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Authentication required."))
		return
	}

	var input service.PatientInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, apperror.ValidationFailed("", "Invalid JSON body"))
		return
	}

	patient, err := h.patients.Create(r.Context(), principal, input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Patient created successfully", map[string]any{"patient": patient})
}

// HandleUpdate modifies a patient record.
//
// HTTP: PUT /patients/{id}
func (h *PatientHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Authentication required."))
		return
	}

	var update service.PatientUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, apperror.ValidationFailed("", "Invalid JSON body"))
		return
	}

	patient, err := h.patients.Update(r.Context(), principal, chi.URLParam(r, "id"), update)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Patient updated successfully", map[string]any{"patient": patient})
}

// HandleDelete removes a patient record.
//
// HTTP: DELETE /patients/{id} (RequireRole: admin)
func (h *PatientHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("Authentication required."))
		return
	}

	if err := h.patients.Delete(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Patient deleted successfully", nil)
}
