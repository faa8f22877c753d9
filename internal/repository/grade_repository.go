package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/pkg/database"
)

const gradeRecordColumns = `id, student_id, course_id, semester, academic_year, final_score, letter_grade, is_published, graded_by, created_at, updated_at`

// GradeRepository persists grade records and their ordered components.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grade records matching the filter with their components.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM grade_records WHERE 1=1", gradeRecordColumns)
	var args []interface{}
	if filter.StudentID != "" {
		query += fmt.Sprintf(" AND student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		query += fmt.Sprintf(" AND course_id = $%d", len(args)+1)
		args = append(args, filter.CourseID)
	}
	if filter.Semester != "" {
		query += fmt.Sprintf(" AND semester = $%d", len(args)+1)
		args = append(args, filter.Semester)
	}
	if filter.AcademicYear != "" {
		query += fmt.Sprintf(" AND academic_year = $%d", len(args)+1)
		args = append(args, filter.AcademicYear)
	}
	if filter.Published != nil {
		query += fmt.Sprintf(" AND is_published = $%d", len(args)+1)
		args = append(args, *filter.Published)
	}
	query += " ORDER BY updated_at DESC"

	var records []models.GradeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list grade records: %w", err)
	}
	if err := r.attachComponents(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// FindByID loads a grade record with its components in display order.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.GradeRecord, error) {
	var record models.GradeRecord
	if err := r.db.GetContext(ctx, &record, fmt.Sprintf("SELECT %s FROM grade_records WHERE id = $1", gradeRecordColumns), id); err != nil {
		return nil, err
	}
	components, err := recordComponents(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	record.Components = components
	return &record, nil
}

// ExistsForTerm checks whether the student already has a record for the course and term.
func (r *GradeRepository) ExistsForTerm(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error) {
	const query = `SELECT 1 FROM grade_records WHERE student_id = $1 AND course_id = $2 AND semester = $3 AND academic_year = $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, semester, academicYear); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check grade record: %w", err)
	}
	return true, nil
}

// Create inserts the record and its components in one transaction.
func (r *GradeRepository) Create(ctx context.Context, record *models.GradeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.Recompute()

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO grade_records (id, student_id, course_id, semester, academic_year, final_score, letter_grade, is_published, graded_by, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :semester, :academic_year, :final_score, :letter_grade, :is_published, :graded_by, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return fmt.Errorf("create grade record: %w", err)
		}
		return insertComponents(ctx, tx, record)
	})
}

// MutateRecord locks the record, applies mutate to a copy and rewrites the record and
// its components when mutate succeeds. The derived grade is recomputed before writing.
func (r *GradeRepository) MutateRecord(ctx context.Context, id string, mutate models.GradeRecordMutation) (*models.GradeRecord, error) {
	var saved *models.GradeRecord
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var record models.GradeRecord
		query := fmt.Sprintf("SELECT %s FROM grade_records WHERE id = $1 FOR UPDATE", gradeRecordColumns)
		if err := tx.GetContext(ctx, &record, query, id); err != nil {
			return err
		}
		components, err := recordComponents(ctx, tx, id)
		if err != nil {
			return err
		}
		record.Components = components

		if err := mutate(&record); err != nil {
			return err
		}
		record.UpdatedAt = time.Now().UTC()
		record.Recompute()

		const update = `UPDATE grade_records SET final_score = :final_score, letter_grade = :letter_grade, is_published = :is_published,
        graded_by = :graded_by, updated_at = :updated_at WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, update, &record); err != nil {
			return fmt.Errorf("update grade record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM grade_components WHERE grade_record_id = $1`, id); err != nil {
			return fmt.Errorf("clear grade components: %w", err)
		}
		if err := insertComponents(ctx, tx, &record); err != nil {
			return err
		}
		saved = &record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete removes a grade record and its components.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grade_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete grade record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete grade record rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Gradebook lists every enrolled student of a course with the grade for the given term, if any.
func (r *GradeRepository) Gradebook(ctx context.Context, courseID string, semester models.Semester, academicYear string) ([]models.GradebookRow, error) {
	const query = `SELECT s.id AS student_id, s.student_number, TRIM(s.first_name || ' ' || s.last_name) AS student_name,
        $2::text AS semester, $3::text AS academic_year,
        g.final_score, g.letter_grade, COALESCE(g.is_published, false) AS is_published
        FROM course_enrollments ce
        JOIN students s ON s.id = ce.student_id
        LEFT JOIN grade_records g ON g.student_id = ce.student_id AND g.course_id = ce.course_id AND g.semester = $2 AND g.academic_year = $3
        WHERE ce.course_id = $1
        ORDER BY s.last_name, s.first_name, s.student_number`
	var rows []models.GradebookRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID, semester, academicYear); err != nil {
		return nil, fmt.Errorf("list gradebook: %w", err)
	}
	return rows, nil
}

func (r *GradeRepository) attachComponents(ctx context.Context, records []models.GradeRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	index := make(map[string]int, len(records))
	for i := range records {
		ids[i] = records[i].ID
		index[records[i].ID] = i
		records[i].Components = []models.GradeComponent{}
	}
	var components []models.GradeComponent
	query := `SELECT id, grade_record_id, position, name, score, weight, comments, submitted_at
        FROM grade_components WHERE grade_record_id = ANY($1) ORDER BY grade_record_id, position`
	if err := r.db.SelectContext(ctx, &components, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list grade components: %w", err)
	}
	for _, c := range components {
		i := index[c.GradeRecordID]
		records[i].Components = append(records[i].Components, c)
	}
	return nil
}

func recordComponents(ctx context.Context, q sqlx.QueryerContext, recordID string) ([]models.GradeComponent, error) {
	components := []models.GradeComponent{}
	const query = `SELECT id, grade_record_id, position, name, score, weight, comments, submitted_at
        FROM grade_components WHERE grade_record_id = $1 ORDER BY position`
	if err := sqlx.SelectContext(ctx, q, &components, query, recordID); err != nil {
		return nil, fmt.Errorf("list grade components: %w", err)
	}
	return components, nil
}

func insertComponents(ctx context.Context, tx *sqlx.Tx, record *models.GradeRecord) error {
	const query = `INSERT INTO grade_components (id, grade_record_id, position, name, score, weight, comments, submitted_at)
        VALUES (:id, :grade_record_id, :position, :name, :score, :weight, :comments, :submitted_at)`
	for i := range record.Components {
		c := &record.Components[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.SubmittedAt.IsZero() {
			c.SubmittedAt = record.UpdatedAt
		}
		if _, err := tx.NamedExecContext(ctx, query, c); err != nil {
			return fmt.Errorf("insert grade component: %w", err)
		}
	}
	return nil
}
