package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// DashboardRepository runs the aggregate queries behind the admin overview.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Summary collects headline counts. GradeDistribution only carries letters that occur.
func (r *DashboardRepository) Summary(ctx context.Context) (*models.DashboardSummary, error) {
	var summary models.DashboardSummary

	const courseQuery = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE c.is_active) AS active,
        COUNT(*) FILTER (WHERE COALESCE(e.enrolled, 0) >= c.max_students) AS full_courses,
        COALESCE(SUM(c.max_students), 0) AS seats,
        COALESCE(SUM(e.enrolled), 0) AS seats_taken
        FROM courses c
        LEFT JOIN (SELECT course_id, COUNT(*) AS enrolled FROM course_enrollments GROUP BY course_id) e ON e.course_id = c.id`
	if err := r.db.GetContext(ctx, &summary.Courses, courseQuery); err != nil {
		return nil, fmt.Errorf("course totals: %w", err)
	}

	const studentQuery = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE is_active) AS active FROM students`
	if err := r.db.GetContext(ctx, &summary.Students, studentQuery); err != nil {
		return nil, fmt.Errorf("student totals: %w", err)
	}

	const teacherQuery = `SELECT COUNT(*) FROM users WHERE role = $1 AND active = TRUE`
	if err := r.db.GetContext(ctx, &summary.Teachers, teacherQuery, models.RoleTeacher); err != nil {
		return nil, fmt.Errorf("teacher count: %w", err)
	}

	if err := r.db.GetContext(ctx, &summary.Enrollments, `SELECT COUNT(*) FROM course_enrollments`); err != nil {
		return nil, fmt.Errorf("enrollment count: %w", err)
	}

	const distributionQuery = `SELECT letter_grade, COUNT(*) AS count FROM grade_records
        WHERE letter_grade IS NOT NULL GROUP BY letter_grade`
	if err := r.db.SelectContext(ctx, &summary.GradeDistribution, distributionQuery); err != nil {
		return nil, fmt.Errorf("grade distribution: %w", err)
	}
	return &summary, nil
}
