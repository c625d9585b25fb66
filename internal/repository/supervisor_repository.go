package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/opencampus/thesis-match-api/internal/models"
)

// SupervisorRepository handles persistence of supervisor profiles.
type SupervisorRepository struct {
	db *sqlx.DB
}

// NewSupervisorRepository constructs the repository.
func NewSupervisorRepository(db *sqlx.DB) *SupervisorRepository {
	return &SupervisorRepository{db: db}
}

const supervisorDetailQuery = `SELECT p.id, p.user_id, p.academic_title, p.interests, p.thesis_limit, p.allowed_fields, p.created_at, p.updated_at,
	u.full_name, u.email, u.faculty,
	COALESCE(ARRAY(SELECT t.id FROM theses t WHERE t.supervisor_id = p.id ORDER BY t.created_at), '{}') AS thesis_ids
FROM supervisors p
JOIN users u ON u.id = p.user_id`

// FindByID returns a supervisor profile with account info and owned theses.
func (r *SupervisorRepository) FindByID(ctx context.Context, id string) (*models.SupervisorDetail, error) {
	query := supervisorDetailQuery + ` WHERE p.id = $1 LIMIT 1`
	var detail models.SupervisorDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find supervisor by id: %w", err)
	}
	return &detail, nil
}

// FindByUserID resolves the supervisor profile owned by an account.
func (r *SupervisorRepository) FindByUserID(ctx context.Context, userID string) (*models.SupervisorDetail, error) {
	query := supervisorDetailQuery + ` WHERE p.user_id = $1 LIMIT 1`
	var detail models.SupervisorDetail
	if err := r.db.GetContext(ctx, &detail, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find supervisor by user id: %w", err)
	}
	return &detail, nil
}

// Update persists mutable profile fields.
func (r *SupervisorRepository) Update(ctx context.Context, profile *models.SupervisorProfile) error {
	const query = `UPDATE supervisors SET academic_title = $2, interests = $3, thesis_limit = $4, allowed_fields = $5, updated_at = $6 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, profile.ID, profile.AcademicTitle, profile.Interests, profile.ThesisLimit, pq.Array(profile.AllowedFields), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update supervisor: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
