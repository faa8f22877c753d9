package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/grading"
	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type gradeRecordRepository interface {
	List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error)
	FindByID(ctx context.Context, id string) (*models.GradeRecord, error)
	ExistsForTerm(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error)
	Create(ctx context.Context, record *models.GradeRecord) error
	MutateRecord(ctx context.Context, id string, mutate models.GradeRecordMutation) (*models.GradeRecord, error)
	Delete(ctx context.Context, id string) error
	Gradebook(ctx context.Context, courseID string, semester models.Semester, academicYear string) ([]models.GradebookRow, error)
}

type gradeCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type gradeStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ComponentRequest is one scored component in a grade payload.
type ComponentRequest struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Comments *string `json:"comments"`
}

func (r ComponentRequest) scored() grading.ScoredComponent {
	return grading.ScoredComponent{Name: strings.TrimSpace(r.Name), Score: r.Score, Weight: r.Weight}
}

// ComputeGradeRequest asks for a grade preview without persisting anything.
type ComputeGradeRequest struct {
	Components []ComponentRequest `json:"components" validate:"dive"`
}

// GradePreview is the derived grade for a component list.
type GradePreview struct {
	FinalScore     *float64 `json:"final_score"`
	LetterGrade    *string  `json:"letter_grade"`
	Percent        *int     `json:"percent"`
	ComponentCount int      `json:"component_count"`
}

// CreateGradeRecordRequest opens a grade record for an enrolled student.
type CreateGradeRecordRequest struct {
	StudentID    string             `json:"student_id" validate:"required"`
	CourseID     string             `json:"course_id" validate:"required"`
	Semester     models.Semester    `json:"semester" validate:"required,oneof=Fall Spring Summer"`
	AcademicYear string             `json:"academic_year" validate:"required"`
	Components   []ComponentRequest `json:"components" validate:"dive"`
}

// GradeService manages grade records. The final score and letter are always derived
// from the component list inside the same write that changes it.
type GradeService struct {
	repo      gradeRecordRepository
	courses   gradeCourseReader
	students  gradeStudentReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs a GradeService.
func NewGradeService(repo gradeRecordRepository, courses gradeCourseReader, students gradeStudentReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, courses: courses, students: students, metrics: metrics, validator: validate, logger: logger}
}

// Compute previews the grade of a component list.
func (s *GradeService) Compute(req ComputeGradeRequest) (*GradePreview, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	scored := make([]grading.ScoredComponent, 0, len(req.Components))
	for _, c := range req.Components {
		scored = append(scored, c.scored())
	}
	record, err := grading.NewRecord(scored)
	if err != nil {
		return nil, err
	}
	result := record.Grade()
	s.metrics.RecordGradeComputation(result.LetterGrade)

	preview := &GradePreview{FinalScore: result.FinalScore, LetterGrade: result.LetterGrade, ComponentCount: record.Len()}
	if result.Defined() {
		percent := grading.RoundPercent(*result.FinalScore)
		preview.Percent = &percent
	}
	return preview, nil
}

// List returns grade records matching the filter.
func (s *GradeService) List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Store(err, "failed to list grade records")
	}
	if records == nil {
		records = []models.GradeRecord{}
	}
	return records, nil
}

// Get loads a grade record with its components.
func (s *GradeService) Get(ctx context.Context, id string) (*models.GradeRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, gradeRecordNotFound(id)
		}
		return nil, appErrors.Store(err, "failed to load grade record")
	}
	return record, nil
}

// Create opens a grade record. The student must be enrolled in the course and may hold
// only one record per course and term.
func (s *GradeService) Create(ctx context.Context, req CreateGradeRecordRequest, gradedBy string) (*models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	scored := make([]grading.ScoredComponent, 0, len(req.Components))
	for _, c := range req.Components {
		scored = append(scored, c.scored())
	}
	if _, err := grading.NewRecord(scored); err != nil {
		return nil, err
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, fmt.Sprintf("course %s not found", req.CourseID))
		}
		return nil, appErrors.Store(err, "failed to load course")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, fmt.Sprintf("student %s not found", req.StudentID))
		}
		return nil, appErrors.Store(err, "failed to load student")
	}
	if !course.HasStudent(req.StudentID) {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("student %s is not enrolled in course %s", req.StudentID, req.CourseID))
	}

	exists, err := s.repo.ExistsForTerm(ctx, req.StudentID, req.CourseID, req.Semester, req.AcademicYear)
	if err != nil {
		return nil, appErrors.Store(err, "failed to check grade record")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "grade record already exists for this student, course and term")
	}

	record := &models.GradeRecord{
		StudentID:    req.StudentID,
		CourseID:     req.CourseID,
		Semester:     req.Semester,
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		Components:   componentsFrom(req.Components),
	}
	if gradedBy != "" {
		record.GradedBy = &gradedBy
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Store(err, "failed to create grade record")
	}
	s.metrics.RecordGradeComputation(record.LetterGrade)
	s.logger.Info("grade record created", zap.String("grade_id", record.ID), zap.String("student_id", record.StudentID),
		zap.String("course_id", record.CourseID))
	return record, nil
}

// AddComponent appends a component and recomputes the grade.
func (s *GradeService) AddComponent(ctx context.Context, id string, req ComponentRequest, gradedBy string) (*models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid component payload")
	}
	return s.mutate(ctx, id, gradedBy, func(record *models.GradeRecord) error {
		sheet, err := grading.NewRecord(record.ScoredComponents())
		if err != nil {
			return err
		}
		if _, err := sheet.Add(req.scored()); err != nil {
			return err
		}
		record.Components = append(record.Components, componentFrom(req))
		return nil
	})
}

// UpdateComponent replaces the component at index.
func (s *GradeService) UpdateComponent(ctx context.Context, id string, index int, req ComponentRequest, gradedBy string) (*models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid component payload")
	}
	return s.mutate(ctx, id, gradedBy, func(record *models.GradeRecord) error {
		sheet, err := grading.NewRecord(record.ScoredComponents())
		if err != nil {
			return err
		}
		if _, err := sheet.Update(index, req.scored()); err != nil {
			return err
		}
		current := record.Components[index]
		next := componentFrom(req)
		next.ID = current.ID
		record.Components[index] = next
		return nil
	})
}

// RemoveComponent deletes the component at index.
func (s *GradeService) RemoveComponent(ctx context.Context, id string, index int, gradedBy string) (*models.GradeRecord, error) {
	return s.mutate(ctx, id, gradedBy, func(record *models.GradeRecord) error {
		sheet, err := grading.NewRecord(record.ScoredComponents())
		if err != nil {
			return err
		}
		if _, err := sheet.Remove(index); err != nil {
			return err
		}
		record.Components = append(record.Components[:index], record.Components[index+1:]...)
		return nil
	})
}

// Publish toggles student visibility of the record.
func (s *GradeService) Publish(ctx context.Context, id string, published bool) (*models.GradeRecord, error) {
	return s.mutate(ctx, id, "", func(record *models.GradeRecord) error {
		record.IsPublished = published
		return nil
	})
}

// Delete removes a grade record.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if isNoRows(err) {
			return gradeRecordNotFound(id)
		}
		return appErrors.Store(err, "failed to delete grade record")
	}
	s.logger.Info("grade record deleted", zap.String("grade_id", id))
	return nil
}

// Gradebook lists the enrolled students of a course with their grade for the term.
func (s *GradeService) Gradebook(ctx context.Context, courseID string, semester models.Semester, academicYear string) (*models.Gradebook, error) {
	switch semester {
	case models.SemesterFall, models.SemesterSpring, models.SemesterSummer:
	default:
		return nil, appErrors.Validation("semester", "semester must be one of Fall, Spring, Summer")
	}
	academicYear = strings.TrimSpace(academicYear)
	if academicYear == "" {
		return nil, appErrors.Validation("academic_year", "academic_year is required")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, fmt.Sprintf("course %s not found", courseID))
		}
		return nil, appErrors.Store(err, "failed to load course")
	}
	rows, err := s.repo.Gradebook(ctx, courseID, semester, academicYear)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load gradebook")
	}
	if rows == nil {
		rows = []models.GradebookRow{}
	}
	return &models.Gradebook{
		CourseID:     course.ID,
		CourseCode:   course.Code,
		CourseName:   course.Name,
		Semester:     semester,
		AcademicYear: academicYear,
		Rows:         rows,
	}, nil
}

func (s *GradeService) mutate(ctx context.Context, id, gradedBy string, change models.GradeRecordMutation) (*models.GradeRecord, error) {
	record, err := s.repo.MutateRecord(ctx, id, func(record *models.GradeRecord) error {
		if err := change(record); err != nil {
			return err
		}
		if gradedBy != "" {
			record.GradedBy = &gradedBy
		}
		return nil
	})
	if err != nil {
		if isNoRows(err) {
			return nil, gradeRecordNotFound(id)
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		s.logger.Error("grade record write failed", zap.String("grade_id", id), zap.Error(err))
		return nil, appErrors.Store(err, "failed to update grade record")
	}
	s.metrics.RecordGradeComputation(record.LetterGrade)
	return record, nil
}

func componentFrom(req ComponentRequest) models.GradeComponent {
	return models.GradeComponent{
		Name:        strings.TrimSpace(req.Name),
		Score:       req.Score,
		Weight:      req.Weight,
		Comments:    req.Comments,
		SubmittedAt: time.Now().UTC(),
	}
}

func componentsFrom(reqs []ComponentRequest) []models.GradeComponent {
	out := make([]models.GradeComponent, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, componentFrom(r))
	}
	return out
}

func gradeRecordNotFound(id string) error {
	return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("grade record %s not found", id))
}
