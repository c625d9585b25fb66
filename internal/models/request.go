package models

import "time"

// RequestStatus represents the lifecycle of an enrollment request.
type RequestStatus string

// Possible request statuses. IN_PROGRESS and COMPLETED are accepted on the
// status endpoint but drive no workflow behavior yet.
const (
	RequestStatusPending    RequestStatus = "PENDING"
	RequestStatusApproved   RequestStatus = "APPROVED"
	RequestStatusRejected   RequestStatus = "REJECTED"
	RequestStatusInProgress RequestStatus = "IN_PROGRESS"
	RequestStatusCompleted  RequestStatus = "COMPLETED"
)

// Terminal reports whether no further transition is allowed out of the status.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

// RequestType classifies what the student is asking for.
type RequestType string

const (
	RequestTypeThesisEnrollment RequestType = "THESIS_ENROLLMENT"
	RequestTypeOwnProposal      RequestType = "OWN_THESIS_PROPOSAL"
	RequestTypeOther            RequestType = "OTHER"
)

// EnrollmentRequest is a student's ask to occupy a seat on a thesis,
// adjudicated by the owning supervisor.
type EnrollmentRequest struct {
	ID           string        `db:"id" json:"id"`
	StudentID    string        `db:"student_id" json:"student_id"`
	SupervisorID string        `db:"supervisor_id" json:"supervisor_id"`
	ThesisID     *string       `db:"thesis_id" json:"thesis_id,omitempty"`
	Content      string        `db:"content" json:"content"`
	Status       RequestStatus `db:"status" json:"status"`
	Type         RequestType   `db:"type" json:"type"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// RequestDetail enriches a request with the populated party sub-records.
type RequestDetail struct {
	EnrollmentRequest
	StudentName     string `db:"student_name" json:"student_name"`
	StudentFaculty  string `db:"student_faculty" json:"student_faculty"`
	StudentField    string `db:"student_field" json:"student_field"`
	SupervisorName  string `db:"supervisor_name" json:"supervisor_name"`
	SupervisorTitle string `db:"supervisor_title" json:"supervisor_title"`
}
