package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
)

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := studentRow(sqlmock.NewRows(studentRowColumns), "s1")
	mock.ExpectQuery("(?s)SELECT .* FROM students s WHERE 1=1 AND EXISTS \\(SELECT 1 FROM course_enrollments ce WHERE ce.student_id = s.id AND ce.course_id = \\$1\\) ORDER BY s.created_at DESC LIMIT 20 OFFSET 0").
		WithArgs("c1").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM students s").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT course_id, student_id FROM course_enrollments WHERE student_id = ANY\\(\\$1\\)").
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "student_id"}).AddRow("c1", "s1"))

	students, total, err := repo.List(context.Background(), models.StudentFilter{CourseID: "c1"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"c1"}, students[0].EnrolledCourses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("FROM students s WHERE s.id = \\$1").
		WithArgs("s1").
		WillReturnRows(studentRow(sqlmock.NewRows(studentRowColumns), "s1"))
	mock.ExpectQuery("SELECT course_id FROM course_enrollments WHERE student_id = \\$1").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}))

	student, err := repo.FindByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", student.FullName())
	assert.NotNil(t, student.EnrolledCourses)
	assert.Empty(t, student.EnrolledCourses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByNumberOrEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM students WHERE \\(student_number = \\$1 OR LOWER\\(email\\) = LOWER\\(\\$2\\)\\) LIMIT 1").
		WithArgs("S-001", "ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsByNumberOrEmail(context.Background(), "S-001", "ada@example.com", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{StudentNumber: "S-001", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", DateOfBirth: time.Now(), IsActive: true}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.False(t, student.EnrollmentDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
