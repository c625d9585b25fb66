package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/opencampus/thesis-match-api/internal/models"
)

// ErrThesisFull is returned when a conditional occupant append finds no free
// seat left on the thesis.
var ErrThesisFull = errors.New("thesis capacity reached")

// ThesisRepository handles persistence of thesis topics and their occupants.
type ThesisRepository struct {
	db *sqlx.DB
}

// NewThesisRepository constructs the repository.
func NewThesisRepository(db *sqlx.DB) *ThesisRepository {
	return &ThesisRepository{db: db}
}

const thesisColumns = `t.id, t.title, t.description, t.degree, t.field, t.tags, t.students_limit, t.status, t.supervisor_id, t.created_at, t.updated_at,
	COALESCE(ARRAY(SELECT ts.student_id FROM thesis_students ts WHERE ts.thesis_id = t.id ORDER BY ts.position), '{}') AS student_ids`

// List returns theses matching the storage-level filter criteria with a total
// count. The status filter is intentionally not applied here, it operates on
// the recomputed status in the service layer.
func (r *ThesisRepository) List(ctx context.Context, filter models.ThesisFilter) ([]models.ThesisRecord, int, error) {
	base := `FROM theses t`
	var conditions []string
	var args []interface{}

	if filter.Degree != "" {
		conditions = append(conditions, fmt.Sprintf("t.degree = $%d", len(args)+1))
		args = append(args, filter.Degree)
	}
	if filter.Field != "" {
		conditions = append(conditions, fmt.Sprintf("t.field = $%d", len(args)+1))
		args = append(args, filter.Field)
	}
	if len(filter.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("t.tags @> $%d", len(args)+1))
		args = append(args, pq.Array(filter.Tags))
	}
	if filter.SupervisorID != "" {
		conditions = append(conditions, fmt.Sprintf("t.supervisor_id = $%d", len(args)+1))
		args = append(args, filter.SupervisorID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) " + base + clause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count theses: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s%s ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d",
		thesisColumns, base, clause, len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	var records []models.ThesisRecord
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list theses: %w", err)
	}
	return records, total, nil
}

// FindByID returns a single thesis with its occupant list.
func (r *ThesisRepository) FindByID(ctx context.Context, id string) (*models.ThesisRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM theses t WHERE t.id = $1 LIMIT 1", thesisColumns)
	var record models.ThesisRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find thesis by id: %w", err)
	}
	return &record, nil
}

// CountBySupervisorAndDegree counts theses a supervisor owns at a degree tier.
func (r *ThesisRepository) CountBySupervisorAndDegree(ctx context.Context, supervisorID string, degree models.Degree) (int, error) {
	const query = `SELECT COUNT(*) FROM theses WHERE supervisor_id = $1 AND degree = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, supervisorID, degree); err != nil {
		return 0, fmt.Errorf("count supervisor theses: %w", err)
	}
	return count, nil
}

// CreateWithOccupants persists the thesis and its initial occupant rows as a
// single transaction. Either every row becomes visible or none do.
func (r *ThesisRepository) CreateWithOccupants(ctx context.Context, thesis *models.Thesis, studentIDs []string) (err error) {
	if thesis.ID == "" {
		thesis.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	thesis.CreatedAt = now
	thesis.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin thesis transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertThesis = `INSERT INTO theses (id, title, description, degree, field, tags, students_limit, status, supervisor_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err = tx.ExecContext(ctx, insertThesis, thesis.ID, thesis.Title, thesis.Description, thesis.Degree, thesis.Field,
		pq.Array(thesis.Tags), thesis.StudentsLimit, thesis.Status, thesis.SupervisorID, thesis.CreatedAt, thesis.UpdatedAt); err != nil {
		return fmt.Errorf("insert thesis: %w", err)
	}

	const insertOccupant = `INSERT INTO thesis_students (thesis_id, student_id, position, created_at) VALUES ($1, $2, $3, $4)`
	for i, studentID := range studentIDs {
		if _, err = tx.ExecContext(ctx, insertOccupant, thesis.ID, studentID, i+1, now); err != nil {
			return fmt.Errorf("insert thesis occupant: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit thesis transaction: %w", err)
	}
	return nil
}

// Delete removes the thesis together with its occupant rows. Occupant rows
// cascade through the thesis_students foreign key.
func (r *ThesisRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM theses WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete thesis: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// appendOccupantTx appends a student to the thesis occupant list inside the
// caller's transaction. The thesis row is locked for the duration of the
// check-and-append so two concurrent approvals cannot both claim the last
// seat. Appending an already-present student is a no-op.
func appendOccupantTx(ctx context.Context, tx *sqlx.Tx, thesisID, studentID string) error {
	var thesis struct {
		StudentsLimit int `db:"students_limit"`
	}
	const lockQuery = `SELECT students_limit FROM theses WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &thesis, lockQuery, thesisID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock thesis row: %w", err)
	}

	var member bool
	const memberQuery = `SELECT EXISTS (SELECT 1 FROM thesis_students WHERE thesis_id = $1 AND student_id = $2)`
	if err := tx.GetContext(ctx, &member, memberQuery, thesisID, studentID); err != nil {
		return fmt.Errorf("check thesis membership: %w", err)
	}
	if member {
		return nil
	}

	var occupied int
	const countQuery = `SELECT COUNT(*) FROM thesis_students WHERE thesis_id = $1`
	if err := tx.GetContext(ctx, &occupied, countQuery, thesisID); err != nil {
		return fmt.Errorf("count thesis occupants: %w", err)
	}
	if occupied >= thesis.StudentsLimit {
		return ErrThesisFull
	}

	const insertQuery = `INSERT INTO thesis_students (thesis_id, student_id, position, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, insertQuery, thesisID, studentID, occupied+1, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert thesis occupant: %w", err)
	}

	if occupied+1 == thesis.StudentsLimit {
		const takenQuery = `UPDATE theses SET status = $2, updated_at = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, takenQuery, thesisID, models.ThesisStatusTaken, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark thesis taken: %w", err)
		}
	}
	return nil
}
