package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cognitivepath/api/internal/apperror"
	"github.com/cognitivepath/api/internal/auth"
	"github.com/cognitivepath/api/internal/model"
	"github.com/cognitivepath/api/internal/repository"
)

// PatientService implements the clinical record operations behind
// /patients. Every method takes the caller's Principal: the role gate at
// the route layer has already answered "may this role reach this endpoint",
// and this layer answers the instance-level question — does THIS caller own
// THIS record.
//
// Ownership rule: providers see and modify only patients whose ProviderID
// is their own ID; coordinators and admins are unscoped.
type PatientService struct {
	patients repository.PatientRepository
	logger   *slog.Logger
}

// NewPatientService wires a PatientService.
func NewPatientService(patients repository.PatientRepository, logger *slog.Logger) *PatientService {
	return &PatientService{patients: patients, logger: logger}
}

// ListParams carries the query-string options for List.
type ListParams struct {
	Page      int
	Limit     int
	RiskLevel string
	Status    string
}

// Pagination is echoed back with every list response.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// List returns patients visible to the caller, newest first.
func (s *PatientService) List(ctx context.Context, principal *auth.Principal, params ListParams) ([]model.Patient, Pagination, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 || params.Limit > 100 {
		params.Limit = 20
	}

	filter := repository.PatientFilter{
		RiskLevel: params.RiskLevel,
		Status:    params.Status,
		Limit:     params.Limit,
		Offset:    (params.Page - 1) * params.Limit,
	}
	if principal.Role == model.RoleProvider {
		filter.ProviderID = principal.ID
	}

	patients, err := s.patients.ListPatients(ctx, filter)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("service/patient: listing: %w", err)
	}
	total, err := s.patients.CountPatients(ctx, filter)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("service/patient: counting: %w", err)
	}

	totalPages := (total + params.Limit - 1) / params.Limit

	return patients, Pagination{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// Get returns one patient, enforcing provider ownership.
func (s *PatientService) Get(ctx context.Context, principal *auth.Principal, id string) (*model.Patient, error) {
	patient, err := s.patients.GetPatientByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/patient: fetching %s: %w", id, err)
	}

	if principal.Role == model.RoleProvider && patient.ProviderID != principal.ID {
		return nil, apperror.Forbidden("Access denied")
	}

	return patient, nil
}

// PatientInput is the caller-supplied portion of a new patient record.
type PatientInput struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	ProviderID string `json:"providerId"`
}

// Create adds a patient record. A provider always becomes the owning
// provider of records they create; admins may assign any provider.
func (s *PatientService) Create(ctx context.Context, principal *auth.Principal, input PatientInput) (*model.Patient, error) {
	if len(input.Name) < 2 || len(input.Name) > 100 {
		return nil, apperror.ValidationFailed("name", "Name must be between 2 and 100 characters")
	}
	if input.Age < 18 || input.Age > 120 {
		return nil, apperror.ValidationFailed("age", "Age must be between 18 and 120")
	}
	if input.Email != "" && !emailPattern.MatchString(input.Email) {
		return nil, apperror.ValidationFailed("email", "Please provide a valid email address")
	}

	providerID := input.ProviderID
	if principal.Role == model.RoleProvider {
		providerID = principal.ID
	}

	patient := &model.Patient{
		Name:       input.Name,
		Age:        input.Age,
		Email:      input.Email,
		Phone:      input.Phone,
		ProviderID: providerID,
	}
	if err := s.patients.CreatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("service/patient: creating: %w", err)
	}

	s.logger.Info("patient created",
		slog.String("patientID", patient.ID),
		slog.String("createdBy", principal.ID),
	)

	return patient, nil
}

// PatientUpdate holds the fields a PUT may change. Pointer fields
// distinguish "not sent" from a zero value, so a partial body only touches
// what it names.
type PatientUpdate struct {
	Name           *string `json:"name"`
	Age            *int    `json:"age"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	CognitiveScore *int    `json:"cognitiveScore"`
	RiskLevel      *string `json:"riskLevel"`
	Status         *string `json:"status"`
}

// Update modifies an existing record, enforcing provider ownership.
func (s *PatientService) Update(ctx context.Context, principal *auth.Principal, id string, update PatientUpdate) (*model.Patient, error) {
	patient, err := s.patients.GetPatientByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/patient: fetching %s: %w", id, err)
	}

	if principal.Role == model.RoleProvider && patient.ProviderID != principal.ID {
		return nil, apperror.Forbidden("Access denied")
	}

	if update.Name != nil {
		if len(*update.Name) < 2 || len(*update.Name) > 100 {
			return nil, apperror.ValidationFailed("name", "Name must be between 2 and 100 characters")
		}
		patient.Name = *update.Name
	}
	if update.Age != nil {
		if *update.Age < 18 || *update.Age > 120 {
			return nil, apperror.ValidationFailed("age", "Age must be between 18 and 120")
		}
		patient.Age = *update.Age
	}
	if update.Email != nil {
		patient.Email = *update.Email
	}
	if update.Phone != nil {
		patient.Phone = *update.Phone
	}
	if update.CognitiveScore != nil {
		patient.CognitiveScore = *update.CognitiveScore
	}
	if update.RiskLevel != nil {
		patient.RiskLevel = *update.RiskLevel
	}
	if update.Status != nil {
		patient.Status = *update.Status
	}

	if err := s.patients.UpdatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("service/patient: updating %s: %w", id, err)
	}

	s.logger.Info("patient updated",
		slog.String("patientID", id),
		slog.String("updatedBy", principal.ID),
	)

	return patient, nil
}

// Delete removes a record. The route layer already restricts this to
// admins; the check here repeats the rule so the service is safe even if
// someone wires a new route without the role gate.
func (s *PatientService) Delete(ctx context.Context, principal *auth.Principal, id string) error {
	if principal.Role != model.RoleAdmin {
		return apperror.Forbidden("Access denied. Only admins can delete patients.")
	}

	if _, err := s.patients.GetPatientByID(ctx, id); err != nil {
		return fmt.Errorf("service/patient: fetching %s: %w", id, err)
	}

	if err := s.patients.DeletePatient(ctx, id); err != nil {
		return fmt.Errorf("service/patient: deleting %s: %w", id, err)
	}

	s.logger.Info("patient deleted",
		slog.String("patientID", id),
		slog.String("deletedBy", principal.ID),
	)

	return nil
}
