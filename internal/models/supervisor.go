package models

import (
	"time"

	"github.com/lib/pq"
)

// SupervisorProfile holds the academic metadata of a SUPERVISOR account.
// AllowedFields, when non-empty, restricts which field values new theses
// owned by this supervisor may use.
type SupervisorProfile struct {
	ID            string         `db:"id" json:"id"`
	UserID        string         `db:"user_id" json:"user_id"`
	AcademicTitle string         `db:"academic_title" json:"academic_title"`
	Interests     string         `db:"interests" json:"interests"`
	ThesisLimit   *int           `db:"thesis_limit" json:"thesis_limit,omitempty"`
	AllowedFields pq.StringArray `db:"allowed_fields" json:"allowed_fields"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// AllowsField reports whether the supervisor may publish theses in the field.
// An empty allow-list places no restriction.
func (p *SupervisorProfile) AllowsField(field string) bool {
	if len(p.AllowedFields) == 0 {
		return true
	}
	for _, allowed := range p.AllowedFields {
		if allowed == field {
			return true
		}
	}
	return false
}

// SupervisorDetail enriches the profile with account info and owned theses.
type SupervisorDetail struct {
	SupervisorProfile
	FullName  string         `db:"full_name" json:"full_name"`
	Email     string         `db:"email" json:"email"`
	Faculty   string         `db:"faculty" json:"faculty"`
	ThesisIDs pq.StringArray `db:"thesis_ids" json:"thesis_ids"`
}
