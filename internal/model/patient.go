package model

import "time"

// Patient is a clinical record tracked by a provider.
//
// ProviderID links the record to the provider (a User with RoleProvider)
// responsible for it. Providers may only see and modify their own patients;
// that ownership check lives in the patient service, not here.
//
// CognitiveScore, RiskLevel and Status are filled in by assessments after
// the record is created, so their zero values (0, "", "active") are the
// normal state of a fresh record.
type Patient struct {
	ID             string    `json:"id"             db:"id"`
	Name           string    `json:"name"           db:"name"`
	Age            int       `json:"age"            db:"age"`
	Email          string    `json:"email"          db:"email"` // optional contact, may be empty
	Phone          string    `json:"phone"          db:"phone"`
	ProviderID     string    `json:"providerId"     db:"provider_id"`
	CognitiveScore int       `json:"cognitiveScore" db:"cognitive_score"`
	RiskLevel      string    `json:"riskLevel"      db:"risk_level"`
	Status         string    `json:"status"         db:"status"`
	CreatedAt      time.Time `json:"createdAt"      db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt"      db:"updated_at"`
}
