package models

import (
	"time"

	"github.com/lib/pq"
)

// Degree represents the enrollment level of a thesis topic.
type Degree string

// Known degree tiers.
const (
	DegreeBachelor     Degree = "BACHELOR"
	DegreeMaster       Degree = "MASTER"
	DegreeDoctoral     Degree = "DOCTORAL"
	DegreePostgraduate Degree = "POSTGRADUATE"
)

// Valid reports whether the degree is one of the known tiers.
func (d Degree) Valid() bool {
	switch d {
	case DegreeBachelor, DegreeMaster, DegreeDoctoral, DegreePostgraduate:
		return true
	}
	return false
}

// ThesisStatus represents the lifecycle state of a thesis topic.
type ThesisStatus string

// Possible thesis statuses.
const (
	ThesisStatusFree            ThesisStatus = "FREE"
	ThesisStatusTaken           ThesisStatus = "TAKEN"
	ThesisStatusPendingApproval ThesisStatus = "PENDING_APPROVAL"
	ThesisStatusArchived        ThesisStatus = "ARCHIVED"
)

// Thesis is a supervised topic with a bounded number of student seats.
type Thesis struct {
	ID            string         `db:"id" json:"id"`
	Title         string         `db:"title" json:"title"`
	Description   string         `db:"description" json:"description"`
	Degree        Degree         `db:"degree" json:"degree"`
	Field         string         `db:"field" json:"field"`
	Tags          pq.StringArray `db:"tags" json:"tags"`
	StudentsLimit int            `db:"students_limit" json:"students_limit"`
	Status        ThesisStatus   `db:"status" json:"status"`
	SupervisorID  string         `db:"supervisor_id" json:"supervisor_id"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// ThesisRecord pairs a thesis row with its ordered occupant list.
type ThesisRecord struct {
	Thesis
	StudentIDs pq.StringArray `db:"student_ids" json:"students"`
}

// ThesisView is the read model served to clients. Status is recomputed from
// occupancy at read time, the stored status is only kept for
// PENDING_APPROVAL and ARCHIVED topics.
type ThesisView struct {
	ThesisRecord
	AvailableSlots int `json:"available_slots"`
}

// Recompute derives the effective status and free seat count from occupancy.
func (r ThesisRecord) Recompute() ThesisView {
	view := ThesisView{ThesisRecord: r}
	view.AvailableSlots = r.StudentsLimit - len(r.StudentIDs)
	if view.AvailableSlots < 0 {
		view.AvailableSlots = 0
	}
	switch {
	case view.AvailableSlots == 0:
		view.Status = ThesisStatusTaken
	case r.Status != ThesisStatusPendingApproval && r.Status != ThesisStatusArchived:
		view.Status = ThesisStatusFree
	}
	return view
}

// ThesisFilter provides storage-level filters for listing theses. Status is
// matched after read-time recomputation, all other criteria are pushed down
// to SQL.
type ThesisFilter struct {
	Degree       Degree
	Field        string
	Tags         []string
	SupervisorID string
	Status       ThesisStatus
	Page         int
	PageSize     int
}
