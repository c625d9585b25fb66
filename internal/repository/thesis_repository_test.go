package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/thesis-match-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
	}
	return sqlxDB, mock, cleanup
}

func thesisRows(t *testing.T) *sqlmock.Rows {
	t.Helper()
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "title", "description", "degree", "field", "tags", "students_limit",
		"status", "supervisor_id", "created_at", "updated_at", "student_ids",
	}).AddRow("thesis-1", "Topic", "Text", "BACHELOR", "CS", "{ml,go}", 2,
		"FREE", "sup-1", now, now, "{stu-1}")
}

func TestThesisRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewThesisRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM theses t WHERE t.degree = $1")).
		WithArgs("BACHELOR").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery("SELECT t.id, t.title").
		WithArgs("BACHELOR", 20, 0).
		WillReturnRows(thesisRows(t))

	records, total, err := repo.List(context.Background(), models.ThesisFilter{Degree: models.DegreeBachelor})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "thesis-1", records[0].ID)
	assert.Equal(t, []string{"stu-1"}, []string(records[0].StudentIDs))
	assert.Equal(t, []string{"ml", "go"}, []string(records[0].Tags))
}

func TestThesisRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewThesisRepository(db)

	mock.ExpectQuery("SELECT t.id, t.title").
		WithArgs("thesis-1").
		WillReturnRows(thesisRows(t))

	record, err := repo.FindByID(context.Background(), "thesis-1")
	require.NoError(t, err)
	assert.Equal(t, 2, record.StudentsLimit)
}

func TestThesisRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewThesisRepository(db)

	mock.ExpectQuery("SELECT t.id, t.title").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestThesisRepositoryCountBySupervisorAndDegree(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewThesisRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM theses WHERE supervisor_id = $1 AND degree = $2")).
		WithArgs("sup-1", "MASTER").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))

	count, err := repo.CountBySupervisorAndDegree(context.Background(), "sup-1", models.DegreeMaster)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestThesisRepositoryCreateWithOccupants(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewThesisRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO theses").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO thesis_students").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO thesis_students").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	thesis := &models.Thesis{Title: "Topic", Degree: models.DegreeBachelor, StudentsLimit: 2, Status: models.ThesisStatusTaken, SupervisorID: "sup-1"}
	err := repo.CreateWithOccupants(context.Background(), thesis, []string{"stu-1", "stu-2"})
	require.NoError(t, err)
	assert.NotEmpty(t, thesis.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThesisRepositoryCreateRollsBackOnOccupantFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewThesisRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO theses").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO thesis_students").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	thesis := &models.Thesis{Title: "Topic", Degree: models.DegreeBachelor, StudentsLimit: 2, SupervisorID: "sup-1"}
	err := repo.CreateWithOccupants(context.Background(), thesis, []string{"stu-1"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThesisRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewThesisRepository(db)

	mock.ExpectExec("DELETE FROM theses").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
