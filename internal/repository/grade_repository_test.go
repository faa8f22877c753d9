package repository

import (
	"context"
	"database/sql"
	"os"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
)

var gradeRowColumns = []string{"id", "student_id", "course_id", "semester", "academic_year", "final_score", "letter_grade", "is_published", "graded_by", "created_at", "updated_at"}
var componentRowColumns = []string{"id", "grade_record_id", "position", "name", "score", "weight", "comments", "submitted_at"}

func TestGradeRepositoryCreateWritesDerivedGrade(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO grade_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO grade_components").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO grade_components").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record := &models.GradeRecord{
		StudentID:    "s1",
		CourseID:     "c1",
		Semester:     models.SemesterFall,
		AcademicYear: "2024/2025",
		Components: []models.GradeComponent{
			{Name: "Midterm", Score: 90, Weight: 1},
			{Name: "Final", Score: 80, Weight: 1},
		},
	}
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotNil(t, record.FinalScore)
	assert.InDelta(t, 85.0, *record.FinalScore, 1e-9)
	assert.Equal(t, "B", *record.LetterGrade)
	assert.Equal(t, 1, record.Components[1].Position)
	assert.Equal(t, record.ID, record.Components[0].GradeRecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryCreatePersistsZeroWeightComponent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO grade_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO grade_components").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 0, "Participation", 75.0, 0.0, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record := &models.GradeRecord{
		StudentID:    "s1",
		CourseID:     "c1",
		Semester:     models.SemesterFall,
		AcademicYear: "2024/2025",
		Components:   []models.GradeComponent{{Name: "Participation", Score: 75, Weight: 0}},
	}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.Nil(t, record.FinalScore)
	assert.Nil(t, record.LetterGrade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaAllowsZeroComponentWeight(t *testing.T) {
	schema, err := os.ReadFile("../../migrations/0001_init.sql")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`weight\s+DOUBLE PRECISION NOT NULL CHECK \(weight >= 0\)`), string(schema))
	assert.NotContains(t, string(schema), "weight > 0")
}

func TestGradeRepositoryMutateRecordRewritesComponents(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM grade_records WHERE id = \\$1 FOR UPDATE").
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(gradeRowColumns).AddRow("g1", "s1", "c1", "Fall", "2024/2025", 90.0, "A-", false, nil, now, now))
	mock.ExpectQuery("FROM grade_components WHERE grade_record_id = \\$1 ORDER BY position").
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(componentRowColumns).AddRow("gc1", "g1", 0, "Midterm", 90.0, 1.0, nil, now))
	mock.ExpectExec("UPDATE grade_records SET final_score").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM grade_components WHERE grade_record_id = \\$1").
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO grade_components").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO grade_components").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	saved, err := repo.MutateRecord(context.Background(), "g1", func(record *models.GradeRecord) error {
		record.Components = append(record.Components, models.GradeComponent{Name: "Final", Score: 80, Weight: 1})
		return nil
	})
	require.NoError(t, err)
	require.Len(t, saved.Components, 2)
	assert.InDelta(t, 85.0, *saved.FinalScore, 1e-9)
	assert.Equal(t, "B", *saved.LetterGrade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryMutateRecordMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM grade_records WHERE id = \\$1 FOR UPDATE").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(gradeRowColumns))
	mock.ExpectRollback()

	_, err := repo.MutateRecord(context.Background(), "missing", func(*models.GradeRecord) error { return nil })
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryGradebook(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "student_number", "student_name", "semester", "academic_year", "final_score", "letter_grade", "is_published"}).
		AddRow("s1", "S-001", "Ada Lovelace", "Fall", "2024/2025", 91.5, "A-", true).
		AddRow("s2", "S-002", "Alan Turing", "Fall", "2024/2025", nil, nil, false)
	mock.ExpectQuery("FROM course_enrollments ce").
		WithArgs("c1", "Fall", "2024/2025").
		WillReturnRows(rows)

	book, err := repo.Gradebook(context.Background(), "c1", models.SemesterFall, "2024/2025")
	require.NoError(t, err)
	require.Len(t, book, 2)
	assert.Equal(t, "A-", *book[0].LetterGrade)
	assert.Nil(t, book[1].FinalScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}
