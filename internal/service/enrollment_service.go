package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/pkg/cache"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type enrollmentStore interface {
	MutateEnrollment(ctx context.Context, courseID, studentID string, mutate models.EnrollmentMutation) error
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// EnrollmentEligibility reports whether a course currently accepts students.
type EnrollmentEligibility struct {
	CourseID        string `json:"course_id"`
	CanEnroll       bool   `json:"can_enroll"`
	IsActive        bool   `json:"is_active"`
	EnrollmentCount int    `json:"enrollment_count"`
	MaxStudents     int    `json:"max_students"`
}

// EnrollmentService is the single authority for changing course membership. Every
// change goes through the store's locked mutation so the capacity check and the write
// happen atomically per course and both sides of the relation change together.
type EnrollmentService struct {
	store   enrollmentStore
	courses enrollmentCourseReader
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(store enrollmentStore, courses enrollmentCourseReader, cacheSvc *CacheService, metrics *MetricsService, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{store: store, courses: courses, cache: cacheSvc, metrics: metrics, logger: logger}
}

// Enroll adds the student to the course. Preconditions are checked in order: course
// exists, student exists, pair not enrolled, capacity available, course active.
func (s *EnrollmentService) Enroll(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	return s.apply(ctx, enrollOperation, courseID, studentID, func(course *models.Course, student *models.Student) error {
		if err := requirePair(course, student, courseID, studentID); err != nil {
			return err
		}
		if course.HasStudent(student.ID) || student.IsEnrolledIn(course.ID) {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, fmt.Sprintf("student %s is already enrolled in course %s", studentID, courseID))
		}
		if course.IsFull() {
			return appErrors.Clone(appErrors.ErrCourseFull, fmt.Sprintf("course %s is full (%d/%d)", courseID, course.EnrollmentCount(), course.MaxStudents))
		}
		if !course.IsActive {
			return appErrors.Clone(appErrors.ErrCourseInactive, fmt.Sprintf("course %s is inactive", courseID))
		}
		models.Link(course, student)
		return nil
	})
}

// Unenroll removes the student from the course.
func (s *EnrollmentService) Unenroll(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	return s.apply(ctx, unenrollOperation, courseID, studentID, func(course *models.Course, student *models.Student) error {
		if err := requirePair(course, student, courseID, studentID); err != nil {
			return err
		}
		if !course.HasStudent(student.ID) && !student.IsEnrolledIn(course.ID) {
			return appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("student %s is not enrolled in course %s", studentID, courseID))
		}
		models.Unlink(course, student)
		return nil
	})
}

// CanEnroll reports the current eligibility of a course. The answer may be stale by
// the time an Enroll call runs; Enroll re-checks under lock.
func (s *EnrollmentService) CanEnroll(ctx context.Context, courseID string) (*EnrollmentEligibility, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, fmt.Sprintf("course %s not found", courseID))
		}
		return nil, appErrors.Store(err, "failed to load course")
	}
	return &EnrollmentEligibility{
		CourseID:        course.ID,
		CanEnroll:       course.CanEnroll(),
		IsActive:        course.IsActive,
		EnrollmentCount: course.EnrollmentCount(),
		MaxStudents:     course.MaxStudents,
	}, nil
}

func (s *EnrollmentService) apply(ctx context.Context, operation, courseID, studentID string, check models.EnrollmentMutation) (*models.Enrollment, error) {
	courseID = strings.TrimSpace(courseID)
	studentID = strings.TrimSpace(studentID)
	if courseID == "" {
		return nil, appErrors.Validation("course_id", "course_id is required")
	}
	if studentID == "" {
		return nil, appErrors.Validation("student_id", "student_id is required")
	}

	var result *models.Enrollment
	err := s.store.MutateEnrollment(ctx, courseID, studentID, func(course *models.Course, student *models.Student) error {
		if err := check(course, student); err != nil {
			return err
		}
		result = &models.Enrollment{
			CourseID:        course.ID,
			StudentID:       student.ID,
			State:           models.StateOf(course, student.ID),
			EnrollmentCount: course.EnrollmentCount(),
			MaxStudents:     course.MaxStudents,
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if !errors.As(err, &appErr) {
			err = appErrors.Store(err, fmt.Sprintf("failed to %s student", operation))
		}
		s.metrics.RecordEnrollment(operation, err)
		if appErrors.KindOf(err) == appErrors.KindStore {
			s.logger.Error("enrollment store failure", zap.String("operation", operation), zap.String("course_id", courseID),
				zap.String("student_id", studentID), zap.Error(err))
		} else {
			s.logger.Debug("enrollment rejected", zap.String("operation", operation), zap.String("course_id", courseID),
				zap.String("student_id", studentID), zap.String("code", appErrors.FromError(err).Code))
		}
		return nil, err
	}

	s.metrics.RecordEnrollment(operation, nil)
	if err := s.cache.Evict(ctx, cache.CourseKey(courseID)); err != nil {
		s.logger.Warn("course detail may be stale after enrollment change", zap.String("operation", operation),
			zap.String("course_id", courseID), zap.String("student_id", studentID), zap.Error(err))
	}
	s.logger.Info("enrollment changed", zap.String("operation", operation), zap.String("course_id", courseID),
		zap.String("student_id", studentID), zap.Int("enrollment_count", result.EnrollmentCount))
	return result, nil
}

func requirePair(course *models.Course, student *models.Student, courseID, studentID string) error {
	if course == nil {
		return appErrors.Clone(appErrors.ErrCourseNotFound, fmt.Sprintf("course %s not found", courseID))
	}
	if student == nil {
		return appErrors.Clone(appErrors.ErrStudentNotFound, fmt.Sprintf("student %s not found", studentID))
	}
	return nil
}
