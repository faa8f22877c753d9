package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/pkg/cache"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByNumberOrEmail(ctx context.Context, number, email, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

// CreateStudentRequest captures payload to create a student.
type CreateStudentRequest struct {
	StudentNumber string    `json:"student_number" validate:"required,max=30"`
	FirstName     string    `json:"first_name" validate:"required,max=100"`
	LastName      string    `json:"last_name" validate:"required,max=100"`
	Email         string    `json:"email" validate:"required,email"`
	Gender        string    `json:"gender" validate:"omitempty,oneof=M F O"`
	DateOfBirth   time.Time `json:"date_of_birth" validate:"required"`
	IsActive      *bool     `json:"is_active"`
}

// UpdateStudentRequest captures payload for student update.
type UpdateStudentRequest struct {
	StudentNumber string    `json:"student_number" validate:"required,max=30"`
	FirstName     string    `json:"first_name" validate:"required,max=100"`
	LastName      string    `json:"last_name" validate:"required,max=100"`
	Email         string    `json:"email" validate:"required,email"`
	Gender        string    `json:"gender" validate:"omitempty,oneof=M F O"`
	DateOfBirth   time.Time `json:"date_of_birth" validate:"required"`
	IsActive      bool      `json:"is_active"`
}

// StudentService orchestrates student business logic.
type StudentService struct {
	repo      studentRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, cacheSvc *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, cache: cacheSvc, validator: validate, logger: logger}
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Store(err, "failed to list students")
	}
	return students, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a student with enrolled course ids.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found")
		}
		return nil, appErrors.Store(err, "failed to load student")
	}
	return student, nil
}

// Create registers a new student after validation.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	number := strings.TrimSpace(req.StudentNumber)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureUnique(ctx, number, email, ""); err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	student := &models.Student{
		StudentNumber: number,
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		Email:         email,
		Gender:        req.Gender,
		DateOfBirth:   req.DateOfBirth,
		IsActive:      active,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Store(err, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID))
	return student, nil
}

// Update modifies student attributes. Course membership is untouched.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	number := strings.TrimSpace(req.StudentNumber)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureUnique(ctx, number, email, id); err != nil {
		return nil, err
	}

	student.StudentNumber = number
	student.FirstName = strings.TrimSpace(req.FirstName)
	student.LastName = strings.TrimSpace(req.LastName)
	student.Email = email
	student.Gender = req.Gender
	student.DateOfBirth = req.DateOfBirth
	student.IsActive = req.IsActive

	if err := s.repo.Update(ctx, student); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found")
		}
		return nil, appErrors.Store(err, "failed to update student")
	}
	return student, nil
}

// Delete removes a student together with its memberships.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	student, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if isNoRows(err) {
			return appErrors.Clone(appErrors.ErrStudentNotFound, "student not found")
		}
		return appErrors.Store(err, "failed to delete student")
	}

	keys := make([]string, 0, len(student.EnrolledCourses))
	for _, courseID := range student.EnrolledCourses {
		keys = append(keys, cache.CourseKey(courseID))
	}
	if err := s.cache.Evict(ctx, keys...); err != nil {
		s.logger.Warn("course details may be stale after student delete", zap.String("student_id", id), zap.Error(err))
	}
	s.logger.Info("student deleted", zap.String("student_id", id), zap.Int("courses_left", len(keys)))
	return nil
}

func (s *StudentService) ensureUnique(ctx context.Context, number, email, excludeID string) error {
	exists, err := s.repo.ExistsByNumberOrEmail(ctx, number, email, excludeID)
	if err != nil {
		return appErrors.Store(err, "failed to check student identity")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "student number or email already exists")
	}
	return nil
}
