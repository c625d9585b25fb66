package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/thesis-match-api/internal/models"
)

func requestRow(status models.RequestStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "student_id", "supervisor_id", "thesis_id", "content", "status", "type", "created_at", "updated_at"}).
		AddRow("req-1", "stu-1", "sup-1", "thesis-1", "Topic\n\nText", string(status), "THESIS_ENROLLMENT", now, now)
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec("INSERT INTO requests").
		WillReturnResult(sqlmock.NewResult(0, 1))

	thesisID := "thesis-1"
	request := &models.EnrollmentRequest{
		StudentID:    "stu-1",
		SupervisorID: "sup-1",
		ThesisID:     &thesisID,
		Content:      "Topic\n\nText",
		Status:       models.RequestStatusPending,
		Type:         models.RequestTypeThesisEnrollment,
	}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.NotEmpty(t, request.ID)
}

func TestRequestRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery("SELECT id, student_id").
		WithArgs("req-1").
		WillReturnRows(requestRow(models.RequestStatusPending))

	request, err := repo.FindByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	require.NotNil(t, request.ThesisID)
	assert.Equal(t, "thesis-1", *request.ThesisID)
}

func TestRequestRepositoryUpdateStatusDecided(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	// guarded update touches nothing, the follow-up existence probe says the
	// row is there: it must already be terminal
	mock.ExpectExec("UPDATE requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.UpdateStatus(context.Background(), "req-1", models.RequestStatusRejected)
	assert.ErrorIs(t, err, ErrRequestDecided)
}

func TestRequestRepositoryUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec("UPDATE requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req-9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.UpdateStatus(context.Background(), "req-9", models.RequestStatusRejected)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRequestRepositoryApprove(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT student_id, status FROM requests").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "status"}).AddRow("stu-1", "PENDING"))
	mock.ExpectQuery("SELECT students_limit FROM theses").
		WithArgs("thesis-1").
		WillReturnRows(sqlmock.NewRows([]string{"students_limit"}).AddRow(2))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("thesis-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM thesis_students")).
		WithArgs("thesis-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO thesis_students").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// seat 2 of 2 was claimed, the thesis flips to TAKEN
	mock.ExpectExec("UPDATE theses SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Approve(context.Background(), "req-1", "thesis-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApproveFullThesis(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT student_id, status FROM requests").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "status"}).AddRow("stu-1", "PENDING"))
	mock.ExpectQuery("SELECT students_limit FROM theses").
		WithArgs("thesis-1").
		WillReturnRows(sqlmock.NewRows([]string{"students_limit"}).AddRow(2))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("thesis-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM thesis_students")).
		WithArgs("thesis-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), "req-1", "thesis-1")
	assert.ErrorIs(t, err, ErrThesisFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApproveDecidedRequest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT student_id, status FROM requests").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "status"}).AddRow("stu-1", "REJECTED"))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), "req-1", "thesis-1")
	assert.ErrorIs(t, err, ErrRequestDecided)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApproveMissingThesis(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT student_id, status FROM requests").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "status"}).AddRow("stu-1", "PENDING"))
	mock.ExpectQuery("SELECT students_limit FROM theses").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), "req-1", "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListBySupervisor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "supervisor_id", "thesis_id", "content", "status", "type", "created_at", "updated_at",
		"student_name", "student_faculty", "student_field", "supervisor_name", "supervisor_title",
	}).AddRow("req-1", "stu-1", "sup-1", "thesis-1", "Topic", "PENDING", "THESIS_ENROLLMENT", now, now,
		"Ada Lovelace", "Engineering", "CS", "Grace Hopper", "Prof.")

	mock.ExpectQuery("SELECT r.id, r.student_id").
		WithArgs("sup-1").
		WillReturnRows(rows)

	details, err := repo.ListBySupervisor(context.Background(), "sup-1")
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "Ada Lovelace", details[0].StudentName)
	assert.Equal(t, "Prof.", details[0].SupervisorTitle)
}
