package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/opencampus/thesis-match-api/internal/models"
)

// StudentRepository handles persistence of student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailQuery = `SELECT s.id, s.user_id, s.studies_type, s.studies_start, s.field_of_study, s.created_at, s.updated_at,
	u.full_name, u.email, u.faculty,
	COALESCE(ARRAY(SELECT ts.thesis_id FROM thesis_students ts WHERE ts.student_id = s.id ORDER BY ts.position), '{}') AS thesis_ids
FROM students s
JOIN users u ON u.id = s.user_id`

// FindByID returns a student profile with account info and enrolled theses.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := studentDetailQuery + ` WHERE s.id = $1 LIMIT 1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by id: %w", err)
	}
	return &detail, nil
}

// FindByUserID resolves the student profile owned by an account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	query := studentDetailQuery + ` WHERE s.user_id = $1 LIMIT 1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by user id: %w", err)
	}
	return &detail, nil
}

// ExistingIDs returns which of the given profile ids are present, preserving
// no particular order.
func (r *StudentRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id FROM students WHERE id = ANY($1)`
	var found []string
	if err := r.db.SelectContext(ctx, &found, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("resolve student ids: %w", err)
	}
	return found, nil
}
