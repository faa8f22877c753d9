package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/pkg/cache"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

// ScheduleRequest describes the weekly slot of a course.
type ScheduleRequest struct {
	Day       string `json:"day" validate:"omitempty,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	StartTime string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"omitempty,datetime=15:04"`
	Room      string `json:"room" validate:"max=50"`
}

// CreateCourseRequest captures fields for creating courses.
type CreateCourseRequest struct {
	Code         string          `json:"code" validate:"required,max=20"`
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=2000"`
	Credits      int             `json:"credits" validate:"required,min=1,max=6"`
	TeacherID    *string         `json:"teacher_id"`
	Semester     models.Semester `json:"semester" validate:"required,oneof=Fall Spring Summer"`
	AcademicYear string          `json:"academic_year" validate:"required"`
	MaxStudents  int             `json:"max_students" validate:"required,min=1"`
	IsActive     *bool           `json:"is_active"`
	Schedule     ScheduleRequest `json:"schedule"`
}

// UpdateCourseRequest modifies course fields. Membership is not editable here.
type UpdateCourseRequest struct {
	Code         string          `json:"code" validate:"required,max=20"`
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=2000"`
	Credits      int             `json:"credits" validate:"required,min=1,max=6"`
	TeacherID    *string         `json:"teacher_id"`
	Semester     models.Semester `json:"semester" validate:"required,oneof=Fall Spring Summer"`
	AcademicYear string          `json:"academic_year" validate:"required"`
	MaxStudents  int             `json:"max_students" validate:"required,min=1"`
	IsActive     bool            `json:"is_active"`
	Schedule     ScheduleRequest `json:"schedule"`
}

// CourseService handles course catalogue workflows.
type CourseService struct {
	repo      courseRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService creates a new course service.
func NewCourseService(repo courseRepository, cacheSvc *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cacheSvc, validator: validate, logger: logger}
}

// List returns paginated courses with derived enrollment fields.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Store(err, "failed to list courses")
	}

	details := make([]models.CourseDetail, 0, len(courses))
	for i := range courses {
		details = append(details, *models.NewCourseDetail(&courses[i]))
	}

	return details, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a course detail, served from cache when enabled.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	key := cache.CourseKey(id)
	var cached models.CourseDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "course not found")
		}
		return nil, appErrors.Store(err, "failed to load course")
	}

	detail := models.NewCourseDetail(course)
	_ = s.cache.Set(ctx, key, detail, 0)
	return detail, nil
}

// Create adds a new course ensuring code uniqueness.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureUniqueCode(ctx, req.Code, ""); err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	course := &models.Course{
		Code:           req.Code,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Credits:        req.Credits,
		TeacherID:      req.TeacherID,
		Semester:       req.Semester,
		AcademicYear:   req.AcademicYear,
		MaxStudents:    req.MaxStudents,
		IsActive:       active,
		CourseSchedule: scheduleFrom(req.Schedule),
	}

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Store(err, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return models.NewCourseDetail(course), nil
}

// Update modifies an existing course. Capacity cannot drop below the current enrollment.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "course not found")
		}
		return nil, appErrors.Store(err, "failed to load course")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureUniqueCode(ctx, req.Code, id); err != nil {
		return nil, err
	}
	if req.MaxStudents < course.EnrollmentCount() {
		return nil, appErrors.Validation("max_students", "max_students cannot be lower than the current enrollment count")
	}

	course.Code = req.Code
	course.Name = strings.TrimSpace(req.Name)
	course.Description = req.Description
	course.Credits = req.Credits
	course.TeacherID = req.TeacherID
	course.Semester = req.Semester
	course.AcademicYear = req.AcademicYear
	course.MaxStudents = req.MaxStudents
	course.IsActive = req.IsActive
	course.CourseSchedule = scheduleFrom(req.Schedule)

	if err := s.repo.Update(ctx, course); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "course not found")
		}
		return nil, appErrors.Store(err, "failed to update course")
	}
	s.evictCourse(ctx, id)
	return models.NewCourseDetail(course), nil
}

// Delete removes a course and its memberships.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if isNoRows(err) {
			return appErrors.Clone(appErrors.ErrCourseNotFound, "course not found")
		}
		return appErrors.Store(err, "failed to delete course")
	}
	s.evictCourse(ctx, id)
	s.logger.Info("course deleted", zap.String("course_id", id))
	return nil
}

func (s *CourseService) ensureUniqueCode(ctx context.Context, code, excludeID string) error {
	exists, err := s.repo.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return appErrors.Store(err, "failed to check course code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	}
	return nil
}

func scheduleFrom(req ScheduleRequest) models.CourseSchedule {
	return models.CourseSchedule{Day: req.Day, StartTime: req.StartTime, EndTime: req.EndTime, Room: strings.TrimSpace(req.Room)}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func (s *CourseService) evictCourse(ctx context.Context, id string) {
	if err := s.cache.Evict(ctx, cache.CourseKey(id)); err != nil {
		s.logger.Warn("course detail may be stale", zap.String("course_id", id), zap.Error(err))
	}
}
