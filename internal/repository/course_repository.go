package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-admin-api/internal/models"
)

const courseColumns = `c.id, c.code, c.name, c.description, c.credits, c.teacher_id, c.semester, c.academic_year, c.max_students, c.is_active,
        c.schedule_day, c.schedule_start, c.schedule_end, c.schedule_room, c.created_at, c.updated_at`

// CourseRepository manages persistence for courses and their member sets.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses matching the provided filters together with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := "FROM courses c"
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("c.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("c.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("c.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM course_enrollments ce WHERE ce.course_id = c.id AND ce.student_id = $%d)", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("c.is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d OR LOWER(c.code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"code":       "c.code",
		"name":       "c.name",
		"created_at": "c.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", courseColumns, base, column, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	if err := r.attachStudents(ctx, courses); err != nil {
		return nil, 0, err
	}
	return courses, total, nil
}

// FindByID fetches a course and its member set.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses c WHERE c.id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	students, err := courseStudents(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	course.Students = students
	return &course, nil
}

// ExistsByCode checks uniqueness of course code.
func (r *CourseRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM courses WHERE LOWER(code) = LOWER($1)"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// Create persists a new course. Membership starts empty.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	course.Students = []string{}

	const query = `INSERT INTO courses (id, code, name, description, credits, teacher_id, semester, academic_year, max_students, is_active,
        schedule_day, schedule_start, schedule_end, schedule_room, created_at, updated_at)
        VALUES (:id, :code, :name, :description, :credits, :teacher_id, :semester, :academic_year, :max_students, :is_active,
        :schedule_day, :schedule_start, :schedule_end, :schedule_room, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies course attributes. Membership is only changed through enrollment.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET code = :code, name = :name, description = :description, credits = :credits, teacher_id = :teacher_id,
        semester = :semester, academic_year = :academic_year, max_students = :max_students, is_active = :is_active,
        schedule_day = :schedule_day, schedule_start = :schedule_start, schedule_end = :schedule_end, schedule_room = :schedule_room,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course. Enrollment rows cascade.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete course rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *CourseRepository) attachStudents(ctx context.Context, courses []models.Course) error {
	if len(courses) == 0 {
		return nil
	}
	ids := make([]string, len(courses))
	index := make(map[string]int, len(courses))
	for i := range courses {
		ids[i] = courses[i].ID
		index[courses[i].ID] = i
		courses[i].Students = []string{}
	}

	var rows []struct {
		CourseID  string `db:"course_id"`
		StudentID string `db:"student_id"`
	}
	const query = `SELECT course_id, student_id FROM course_enrollments WHERE course_id = ANY($1) ORDER BY enrolled_at, student_id`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list course members: %w", err)
	}
	for _, row := range rows {
		i := index[row.CourseID]
		courses[i].Students = append(courses[i].Students, row.StudentID)
	}
	return nil
}

func courseStudents(ctx context.Context, q sqlx.QueryerContext, courseID string) ([]string, error) {
	ids := []string{}
	const query = `SELECT student_id FROM course_enrollments WHERE course_id = $1 ORDER BY enrolled_at, student_id`
	if err := sqlx.SelectContext(ctx, q, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("list course members: %w", err)
	}
	return ids, nil
}

func studentCourses(ctx context.Context, q sqlx.QueryerContext, studentID string) ([]string, error) {
	ids := []string{}
	const query = `SELECT course_id FROM course_enrollments WHERE student_id = $1 ORDER BY enrolled_at, course_id`
	if err := sqlx.SelectContext(ctx, q, &ids, query, studentID); err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	return ids, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
