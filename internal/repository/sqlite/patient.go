package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/cognitivepath/api/internal/apperror"
	"github.com/cognitivepath/api/internal/model"
	"github.com/cognitivepath/api/internal/repository"
)

// compile-time check that *DB implements repository.PatientRepository
var _ repository.PatientRepository = (*DB)(nil)

const patientColumns = "id, name, age, email, phone, provider_id, cognitive_score, risk_level, status, created_at, updated_at"

// CreatePatient inserts a new clinical record. Status defaults to "active"
// when the caller leaves it empty.
func (db *DB) CreatePatient(ctx context.Context, patient *model.Patient) error {
	now := time.Now()
	patient.ID = xid.New().String()
	if patient.Status == "" {
		patient.Status = "active"
	}
	patient.CreatedAt = now
	patient.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO patients (id, name, age, email, phone, provider_id, cognitive_score, risk_level, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		patient.ID,
		patient.Name,
		patient.Age,
		patient.Email,
		patient.Phone,
		patient.ProviderID,
		patient.CognitiveScore,
		patient.RiskLevel,
		patient.Status,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting patient (name=%s): %w", patient.Name, err)
	}

	return nil
}

// GetPatientByID retrieves a patient by ID.
// Returns an error matching apperror.ErrNotFound if no row exists.
func (db *DB) GetPatientByID(ctx context.Context, id string) (*model.Patient, error) {
	var p model.Patient
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE id = ?`, id,
	).Scan(
		&p.ID,
		&p.Name,
		&p.Age,
		&p.Email,
		&p.Phone,
		&p.ProviderID,
		&p.CognitiveScore,
		&p.RiskLevel,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("patient", id)
		}
		return nil, fmt.Errorf("sqlite: getting patient %s: %w", id, err)
	}

	return &p, nil
}

// filterClause builds the WHERE clause shared by ListPatients and
// CountPatients so the two queries can never disagree about what a filter
// means.
func filterClause(filter repository.PatientFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.ProviderID != "" {
		conds = append(conds, "provider_id = ?")
		args = append(args, filter.ProviderID)
	}
	if filter.RiskLevel != "" {
		conds = append(conds, "risk_level = ?")
		args = append(args, filter.RiskLevel)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListPatients returns patients matching the filter, newest first.
func (db *DB) ListPatients(ctx context.Context, filter repository.PatientFilter) ([]model.Patient, error) {
	where, args := filterClause(filter)

	query := `SELECT ` + patientColumns + ` FROM patients` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing patients: %w", err)
	}
	defer rows.Close()

	patients := []model.Patient{}
	for rows.Next() {
		var p model.Patient
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Age,
			&p.Email,
			&p.Phone,
			&p.ProviderID,
			&p.CognitiveScore,
			&p.RiskLevel,
			&p.Status,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning patient row: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating patients: %w", err)
	}

	return patients, nil
}

// CountPatients returns the number of patients matching the filter,
// ignoring Limit/Offset. Used for the pagination envelope.
func (db *DB) CountPatients(ctx context.Context, filter repository.PatientFilter) (int, error) {
	where, args := filterClause(filter)

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM patients`+where, args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting patients: %w", err)
	}

	return count, nil
}

// UpdatePatient persists the mutable fields of an existing record.
func (db *DB) UpdatePatient(ctx context.Context, patient *model.Patient) error {
	patient.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE patients
		 SET name = ?, age = ?, email = ?, phone = ?, cognitive_score = ?, risk_level = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		patient.Name,
		patient.Age,
		patient.Email,
		patient.Phone,
		patient.CognitiveScore,
		patient.RiskLevel,
		patient.Status,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating patient %s: %w", patient.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("patient", patient.ID)
	}

	return nil
}

// DeletePatient removes a record. Unlike users, patient records are hard
// deleted — admin-only at the route layer.
func (db *DB) DeletePatient(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM patients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting patient %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("patient", id)
	}

	return nil
}
