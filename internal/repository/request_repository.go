package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencampus/thesis-match-api/internal/models"
)

// ErrRequestDecided is returned when a transition targets a request that is
// already in a terminal state.
var ErrRequestDecided = errors.New("request already decided")

// RequestRepository handles persistence of enrollment requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestDetailQuery = `SELECT r.id, r.student_id, r.supervisor_id, r.thesis_id, r.content, r.status, r.type, r.created_at, r.updated_at,
	su.full_name AS student_name, su.faculty AS student_faculty, s.field_of_study AS student_field,
	pu.full_name AS supervisor_name, p.academic_title AS supervisor_title
FROM requests r
JOIN students s ON s.id = r.student_id
JOIN users su ON su.id = s.user_id
JOIN supervisors p ON p.id = r.supervisor_id
JOIN users pu ON pu.id = p.user_id`

// Create persists a new enrollment request.
func (r *RequestRepository) Create(ctx context.Context, request *models.EnrollmentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now

	const query = `INSERT INTO requests (id, student_id, supervisor_id, thesis_id, content, status, type, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, request.ID, request.StudentID, request.SupervisorID, request.ThesisID,
		request.Content, request.Status, request.Type, request.CreatedAt, request.UpdatedAt); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// FindByID returns a request by identifier.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	const query = `SELECT id, student_id, supervisor_id, thesis_id, content, status, type, created_at, updated_at FROM requests WHERE id = $1 LIMIT 1`
	var request models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find request by id: %w", err)
	}
	return &request, nil
}

// FindDetailByID returns a request enriched with party sub-records.
func (r *RequestRepository) FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error) {
	query := requestDetailQuery + ` WHERE r.id = $1 LIMIT 1`
	var detail models.RequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find request detail: %w", err)
	}
	return &detail, nil
}

// ListBySupervisor returns every request targeting the supervisor.
func (r *RequestRepository) ListBySupervisor(ctx context.Context, supervisorID string) ([]models.RequestDetail, error) {
	query := requestDetailQuery + ` WHERE r.supervisor_id = $1 ORDER BY r.created_at DESC`
	var details []models.RequestDetail
	if err := r.db.SelectContext(ctx, &details, query, supervisorID); err != nil {
		return nil, fmt.Errorf("list requests by supervisor: %w", err)
	}
	return details, nil
}

// ListByStudent returns every request filed by the student.
func (r *RequestRepository) ListByStudent(ctx context.Context, studentID string) ([]models.RequestDetail, error) {
	query := requestDetailQuery + ` WHERE r.student_id = $1 ORDER BY r.created_at DESC`
	var details []models.RequestDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list requests by student: %w", err)
	}
	return details, nil
}

// UpdateStatus transitions a non-terminal request to the given status.
// Returns ErrRequestDecided when the request exists but is already APPROVED
// or REJECTED, sql.ErrNoRows when it does not exist.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	const query = `UPDATE requests SET status = $2, updated_at = $3 WHERE id = $1 AND status NOT IN ($4, $5)`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(), models.RequestStatusApproved, models.RequestStatusRejected)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, id); err != nil {
			return fmt.Errorf("check request existence: %w", err)
		}
		if exists {
			return ErrRequestDecided
		}
		return sql.ErrNoRows
	}
	return nil
}

// Approve marks the request APPROVED and appends its student to the thesis
// occupant list as one transaction. The request row is locked first, then the
// thesis row, so the capacity check and the append are indivisible. Any
// failure rolls back both writes: a request is never left APPROVED without
// its seat.
func (r *RequestRepository) Approve(ctx context.Context, requestID, thesisID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approval transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		StudentID string               `db:"student_id"`
		Status    models.RequestStatus `db:"status"`
	}
	const lockQuery = `SELECT student_id, status FROM requests WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, requestID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock request row: %w", err)
	}
	if current.Status.Terminal() {
		err = ErrRequestDecided
		return err
	}

	if err = appendOccupantTx(ctx, tx, thesisID, current.StudentID); err != nil {
		return err
	}

	const approveQuery = `UPDATE requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, approveQuery, requestID, models.RequestStatusApproved, time.Now().UTC()); err != nil {
		return fmt.Errorf("approve request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit approval transaction: %w", err)
	}
	return nil
}

// Delete removes a request by id.
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM requests WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
