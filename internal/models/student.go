package models

import (
	"time"

	"github.com/lib/pq"
)

// StudentProfile holds the study metadata of a STUDENT account.
type StudentProfile struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	StudiesType  string    `db:"studies_type" json:"studies_type"`
	StudiesStart time.Time `db:"studies_start" json:"studies_start"`
	FieldOfStudy string    `db:"field_of_study" json:"field_of_study"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail enriches the profile with account info and enrolled theses.
type StudentDetail struct {
	StudentProfile
	FullName  string         `db:"full_name" json:"full_name"`
	Email     string         `db:"email" json:"email"`
	Faculty   string         `db:"faculty" json:"faculty"`
	ThesisIDs pq.StringArray `db:"thesis_ids" json:"thesis_ids"`
}
