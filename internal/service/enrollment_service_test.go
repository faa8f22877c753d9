package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	"github.com/noah-isme/course-admin-api/pkg/cache"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

func newEnrollmentFixture(t *testing.T) (*EnrollmentService, *repository.MemoryStore, *MetricsService) {
	t.Helper()
	store := repository.NewMemoryStore()
	metrics := NewMetricsService()
	svc := NewEnrollmentService(store.Enrollments(), store.Courses(), nil, metrics, zap.NewNop())
	return svc, store, metrics
}

func TestEnrollLinksBothSides(t *testing.T) {
	svc, store, metrics := newEnrollmentFixture(t)
	course := seedCourse(t, store, "CS101", 2, true)
	student := seedStudent(t, store, "S-1")

	enrollment, err := svc.Enroll(context.Background(), course.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStateEnrolled, enrollment.State)
	assert.Equal(t, 1, enrollment.EnrollmentCount)
	assert.Equal(t, 2, enrollment.MaxStudents)

	storedCourse, err := store.Courses().FindByID(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{student.ID}, storedCourse.Students)

	storedStudent, err := store.Students().FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{course.ID}, storedStudent.EnrolledCourses)

	assert.Equal(t, uint64(1), metrics.Snapshot().Enrollments)
}

func TestEnrollPreconditionOrder(t *testing.T) {
	svc, store, _ := newEnrollmentFixture(t)
	ctx := context.Background()
	active := seedCourse(t, store, "CS101", 1, true)
	inactiveFull := seedCourse(t, store, "CS102", 1, false)
	inactiveOpen := seedCourse(t, store, "CS103", 5, false)
	first := seedStudent(t, store, "S-1")
	second := seedStudent(t, store, "S-2")

	_, err := svc.Enroll(ctx, "missing", "also-missing")
	requireCode(t, err, appErrors.ErrCourseNotFound)

	_, err = svc.Enroll(ctx, active.ID, "missing")
	requireCode(t, err, appErrors.ErrStudentNotFound)

	_, err = svc.Enroll(ctx, active.ID, first.ID)
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, active.ID, first.ID)
	requireCode(t, err, appErrors.ErrAlreadyEnrolled)

	_, err = svc.Enroll(ctx, active.ID, second.ID)
	requireCode(t, err, appErrors.ErrCourseFull)

	// Seed a full inactive course directly so capacity is checked before activity.
	require.NoError(t, store.Enrollments().MutateEnrollment(ctx, inactiveFull.ID, first.ID, func(c *models.Course, s *models.Student) error {
		models.Link(c, s)
		return nil
	}))
	_, err = svc.Enroll(ctx, inactiveFull.ID, second.ID)
	requireCode(t, err, appErrors.ErrCourseFull)

	_, err = svc.Enroll(ctx, inactiveOpen.ID, second.ID)
	requireCode(t, err, appErrors.ErrCourseInactive)
}

func TestEnrollRejectionLeavesStateUntouched(t *testing.T) {
	svc, store, metrics := newEnrollmentFixture(t)
	ctx := context.Background()
	course := seedCourse(t, store, "CS101", 3, false)
	student := seedStudent(t, store, "S-1")

	_, err := svc.Enroll(ctx, course.ID, student.ID)
	requireCode(t, err, appErrors.ErrCourseInactive)

	storedCourse, err := store.Courses().FindByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Empty(t, storedCourse.Students)
	storedStudent, err := store.Students().FindByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, storedStudent.EnrolledCourses)

	assert.Equal(t, uint64(1), metrics.Snapshot().EnrollmentsRejected)
}

func TestUnenroll(t *testing.T) {
	svc, store, _ := newEnrollmentFixture(t)
	ctx := context.Background()
	course := seedCourse(t, store, "CS101", 1, true)
	student := seedStudent(t, store, "S-1")
	other := seedStudent(t, store, "S-2")

	_, err := svc.Unenroll(ctx, course.ID, student.ID)
	requireCode(t, err, appErrors.ErrNotEnrolled)

	_, err = svc.Enroll(ctx, course.ID, student.ID)
	require.NoError(t, err)

	enrollment, err := svc.Unenroll(ctx, course.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStateNotEnrolled, enrollment.State)
	assert.Equal(t, 0, enrollment.EnrollmentCount)

	storedStudent, err := store.Students().FindByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, storedStudent.EnrolledCourses)

	// The freed seat is available again.
	_, err = svc.Enroll(ctx, course.ID, other.ID)
	require.NoError(t, err)

	_, err = svc.Unenroll(ctx, "missing", student.ID)
	requireCode(t, err, appErrors.ErrCourseNotFound)
}

func TestEnrollRequiresIdentifiers(t *testing.T) {
	svc, _, _ := newEnrollmentFixture(t)

	_, err := svc.Enroll(context.Background(), " ", "s1")
	requireCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, "course_id", appErrors.FromError(err).Field)

	_, err = svc.Unenroll(context.Background(), "c1", "")
	requireCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, "student_id", appErrors.FromError(err).Field)
}

func TestConcurrentEnrollForLastSeat(t *testing.T) {
	svc, store, _ := newEnrollmentFixture(t)
	course := seedCourse(t, store, "CS101", 1, true)
	students := []*models.Student{seedStudent(t, store, "S-1"), seedStudent(t, store, "S-2")}

	var wg sync.WaitGroup
	errs := make([]error, len(students))
	start := make(chan struct{})
	for i, st := range students {
		wg.Add(1)
		go func(i int, studentID string) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Enroll(context.Background(), course.ID, studentID)
		}(i, st.ID)
	}
	close(start)
	wg.Wait()

	var successes, full int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case appErrors.FromError(err).Code == appErrors.ErrCourseFull.Code:
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, full)

	stored, err := store.Courses().FindByID(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Students, 1)
}

func TestConcurrentEnrollNeverExceedsCapacity(t *testing.T) {
	svc, store, metrics := newEnrollmentFixture(t)
	course := seedCourse(t, store, "CS200", 5, true)

	const applicants = 20
	ids := make([]string, applicants)
	for i := range ids {
		ids[i] = seedStudent(t, store, fmt.Sprintf("S-%02d", i)).ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(studentID string) {
			defer wg.Done()
			_, _ = svc.Enroll(context.Background(), course.ID, studentID)
		}(id)
	}
	wg.Wait()

	stored, err := store.Courses().FindByID(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Students, 5)

	enrolled := 0
	for _, id := range ids {
		st, err := store.Students().FindByID(context.Background(), id)
		require.NoError(t, err)
		if st.IsEnrolledIn(course.ID) {
			enrolled++
			assert.True(t, stored.HasStudent(id))
		}
	}
	assert.Equal(t, 5, enrolled)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(5), snap.Enrollments)
	assert.Equal(t, uint64(applicants-5), snap.EnrollmentsRejected)
}

type failingEnrollmentStore struct{ err error }

func (f failingEnrollmentStore) MutateEnrollment(context.Context, string, string, models.EnrollmentMutation) error {
	return f.err
}

func TestEnrollStoreFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewEnrollmentService(failingEnrollmentStore{err: errors.New("connection reset")}, store.Courses(), nil, nil, nil)

	_, err := svc.Enroll(context.Background(), "c1", "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.KindStore, appErrors.KindOf(err))
	assert.EqualError(t, errors.Unwrap(err), "connection reset")
}

func TestEnrollEvictsCourseCache(t *testing.T) {
	store := repository.NewMemoryStore()
	cacheRepo := newFakeCacheRepo()
	cacheSvc := NewCacheService(cacheRepo, nil, 0, nil, true)
	svc := NewEnrollmentService(store.Enrollments(), store.Courses(), cacheSvc, nil, nil)
	course := seedCourse(t, store, "CS101", 2, true)
	student := seedStudent(t, store, "S-1")

	_, err := svc.Enroll(context.Background(), course.ID, student.ID)
	require.NoError(t, err)
	assert.Contains(t, cacheRepo.deleted, cache.CourseKey(course.ID))
}

func TestEnrollLogsFailedEviction(t *testing.T) {
	store := repository.NewMemoryStore()
	cacheRepo := newFakeCacheRepo()
	cacheRepo.delErr = errors.New("redis unavailable")
	cacheSvc := NewCacheService(cacheRepo, nil, 0, nil, true)
	core, logs := observer.New(zapcore.WarnLevel)
	svc := NewEnrollmentService(store.Enrollments(), store.Courses(), cacheSvc, nil, zap.New(core))
	course := seedCourse(t, store, "CS101", 2, true)
	student := seedStudent(t, store, "S-1")

	enrollment, err := svc.Enroll(context.Background(), course.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, enrollment.EnrollmentCount)

	entries := logs.FilterMessage("course detail may be stale after enrollment change").All()
	require.Len(t, entries, 1)
	assert.Equal(t, course.ID, entries[0].ContextMap()["course_id"])
	assert.Equal(t, "enroll", entries[0].ContextMap()["operation"])
}

func TestCanEnroll(t *testing.T) {
	svc, store, _ := newEnrollmentFixture(t)
	ctx := context.Background()
	course := seedCourse(t, store, "CS101", 1, true)
	student := seedStudent(t, store, "S-1")

	eligibility, err := svc.CanEnroll(ctx, course.ID)
	require.NoError(t, err)
	assert.True(t, eligibility.CanEnroll)

	_, err = svc.Enroll(ctx, course.ID, student.ID)
	require.NoError(t, err)

	eligibility, err = svc.CanEnroll(ctx, course.ID)
	require.NoError(t, err)
	assert.False(t, eligibility.CanEnroll)
	assert.Equal(t, 1, eligibility.EnrollmentCount)

	_, err = svc.CanEnroll(ctx, "missing")
	requireCode(t, err, appErrors.ErrCourseNotFound)
}
