// Package repository declares the storage interfaces consumed by the
// services and the auth middleware. The sqlite subpackage is the concrete
// implementation; tests substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/cognitivepath/api/internal/model"
)

// UserRepository is the credential store. Lookups that find nothing return
// an error matching apperror.ErrNotFound — callers distinguish "no such
// user" from infrastructure failures with errors.Is.
//
// Password hashing happens above this layer (service + auth.PasswordService);
// the repository only ever sees and stores the bcrypt hash.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserName(ctx context.Context, id, name string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	SetUserActive(ctx context.Context, id string, active bool) error
}

// PatientFilter narrows ListPatients/CountPatients. Zero values mean
// "no constraint"; ProviderID is set by the service when the caller is a
// provider so they only ever see their own records.
type PatientFilter struct {
	ProviderID string
	RiskLevel  string
	Status     string
	Limit      int
	Offset     int
}

// PatientRepository persists the clinical records the auth core gates
// access to.
type PatientRepository interface {
	CreatePatient(ctx context.Context, patient *model.Patient) error
	GetPatientByID(ctx context.Context, id string) (*model.Patient, error)
	ListPatients(ctx context.Context, filter PatientFilter) ([]model.Patient, error)
	CountPatients(ctx context.Context, filter PatientFilter) (int, error)
	UpdatePatient(ctx context.Context, patient *model.Patient) error
	DeletePatient(ctx context.Context, id string) error
}
