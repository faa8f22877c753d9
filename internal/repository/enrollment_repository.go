package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/pkg/database"
)

// ErrInconsistentMutation is returned when a mutation leaves the two sides of the relation disagreeing.
var ErrInconsistentMutation = errors.New("enrollment mutation left course and student out of sync")

// EnrollmentRepository applies membership changes to the course_enrollments relation.
// Both sides of the relation are read from the same rows, so a committed change is
// always visible from the course and from the student.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// MutateEnrollment locks the course row and then the student row, hands copies of both
// to mutate and persists the membership difference when mutate returns nil. Errors
// returned by mutate are passed through unchanged and roll the transaction back.
func (r *EnrollmentRepository) MutateEnrollment(ctx context.Context, courseID, studentID string, mutate models.EnrollmentMutation) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		course, err := lockCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		student, err := lockStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}

		nextCourse, nextStudent := course.Clone(), student.Clone()
		if err := mutate(nextCourse, nextStudent); err != nil {
			return err
		}
		if course == nil || student == nil {
			return nil
		}

		before := course.HasStudent(studentID)
		after := nextCourse.HasStudent(studentID)
		if after != nextStudent.IsEnrolledIn(courseID) {
			return ErrInconsistentMutation
		}
		if before == after {
			return nil
		}

		now := time.Now().UTC()
		if after {
			const insertQuery = `INSERT INTO course_enrollments (course_id, student_id, enrolled_at) VALUES ($1, $2, $3)`
			if _, err := tx.ExecContext(ctx, insertQuery, courseID, studentID, now); err != nil {
				return fmt.Errorf("insert enrollment: %w", err)
			}
		} else {
			const deleteQuery = `DELETE FROM course_enrollments WHERE course_id = $1 AND student_id = $2`
			if _, err := tx.ExecContext(ctx, deleteQuery, courseID, studentID); err != nil {
				return fmt.Errorf("delete enrollment: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE courses SET updated_at = $1 WHERE id = $2`, now, courseID); err != nil {
			return fmt.Errorf("touch course: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE students SET updated_at = $1 WHERE id = $2`, now, studentID); err != nil {
			return fmt.Errorf("touch student: %w", err)
		}
		return nil
	})
}

func lockCourse(ctx context.Context, tx *sqlx.Tx, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses c WHERE c.id = $1 FOR UPDATE", courseColumns)
	var course models.Course
	if err := tx.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lock course: %w", err)
	}
	students, err := courseStudents(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	course.Students = students
	return &course, nil
}

func lockStudent(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.id = $1 FOR UPDATE", studentColumns)
	var student models.Student
	if err := tx.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lock student: %w", err)
	}
	courses, err := studentCourses(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	student.EnrolledCourses = courses
	return &student, nil
}
