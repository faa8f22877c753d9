package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type gradeFixture struct {
	svc     *GradeService
	store   *repository.MemoryStore
	course  *models.Course
	student *models.Student
}

func newGradeFixture(t *testing.T) gradeFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	course := seedCourse(t, store, "CS101", 5, true)
	student := seedStudent(t, store, "S-1")
	enrollments := NewEnrollmentService(store.Enrollments(), store.Courses(), nil, nil, nil)
	_, err := enrollments.Enroll(context.Background(), course.ID, student.ID)
	require.NoError(t, err)

	svc := NewGradeService(store.Grades(), store.Courses(), store.Students(), NewMetricsService(), nil, nil)
	return gradeFixture{svc: svc, store: store, course: course, student: student}
}

func (f gradeFixture) request(components ...ComponentRequest) CreateGradeRecordRequest {
	return CreateGradeRecordRequest{
		StudentID:    f.student.ID,
		CourseID:     f.course.ID,
		Semester:     models.SemesterFall,
		AcademicYear: "2024/2025",
		Components:   components,
	}
}

func TestGradeServiceCompute(t *testing.T) {
	svc := NewGradeService(nil, nil, nil, nil, nil, nil)

	preview, err := svc.Compute(ComputeGradeRequest{Components: []ComponentRequest{
		{Name: "Midterm", Score: 90, Weight: 1},
		{Name: "Final", Score: 80, Weight: 1},
	}})
	require.NoError(t, err)
	require.NotNil(t, preview.FinalScore)
	assert.InDelta(t, 85.0, *preview.FinalScore, 1e-9)
	assert.Equal(t, "B", *preview.LetterGrade)
	assert.Equal(t, 85, *preview.Percent)
	assert.Equal(t, 2, preview.ComponentCount)

	preview, err = svc.Compute(ComputeGradeRequest{})
	require.NoError(t, err)
	assert.Nil(t, preview.FinalScore)
	assert.Nil(t, preview.LetterGrade)
	assert.Nil(t, preview.Percent)

	preview, err = svc.Compute(ComputeGradeRequest{Components: []ComponentRequest{{Name: "Quiz", Score: 70, Weight: 0}}})
	require.NoError(t, err)
	assert.Nil(t, preview.FinalScore)

	_, err = svc.Compute(ComputeGradeRequest{Components: []ComponentRequest{{Name: "Quiz", Score: 101, Weight: 1}}})
	requireCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, "components[0].score", appErrors.FromError(err).Field)

	_, err = svc.Compute(ComputeGradeRequest{Components: []ComponentRequest{{Name: "Quiz", Score: 50, Weight: -1}}})
	requireCode(t, err, appErrors.ErrValidation)
}

func TestGradeServiceUnroundedLetter(t *testing.T) {
	svc := NewGradeService(nil, nil, nil, nil, nil, nil)

	preview, err := svc.Compute(ComputeGradeRequest{Components: []ComponentRequest{{Name: "Exam", Score: 89.6, Weight: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "B+", *preview.LetterGrade)
	assert.Equal(t, 90, *preview.Percent)
}

func TestGradeServiceCreate(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, f.request(
		ComponentRequest{Name: "Homework", Score: 100, Weight: 1},
		ComponentRequest{Name: "Exam", Score: 70, Weight: 3},
	), "teacher-1")
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	assert.InDelta(t, 77.5, *record.FinalScore, 1e-9)
	assert.Equal(t, "C+", *record.LetterGrade)
	require.NotNil(t, record.GradedBy)
	assert.Equal(t, "teacher-1", *record.GradedBy)
	assert.False(t, record.IsPublished)

	_, err = f.svc.Create(ctx, f.request(), "teacher-1")
	requireCode(t, err, appErrors.ErrConflict)

	stored, err := f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, stored.Components, 2)
	assert.Equal(t, "Homework", stored.Components[0].Name)
	assert.Equal(t, 1, stored.Components[1].Position)
}

func TestGradeServiceCreateRequiresEnrollment(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()
	outsider := seedStudent(t, f.store, "S-9")

	req := f.request()
	req.StudentID = outsider.ID
	_, err := f.svc.Create(ctx, req, "")
	requireCode(t, err, appErrors.ErrNotEnrolled)

	req = f.request()
	req.CourseID = "missing"
	_, err = f.svc.Create(ctx, req, "")
	requireCode(t, err, appErrors.ErrCourseNotFound)

	req = f.request()
	req.StudentID = "missing"
	_, err = f.svc.Create(ctx, req, "")
	requireCode(t, err, appErrors.ErrStudentNotFound)

	req = f.request()
	req.Semester = "Winter"
	_, err = f.svc.Create(ctx, req, "")
	requireCode(t, err, appErrors.ErrValidation)
}

func TestGradeServiceComponentLifecycle(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, f.request(), "")
	require.NoError(t, err)
	assert.Nil(t, record.FinalScore)

	record, err = f.svc.AddComponent(ctx, record.ID, ComponentRequest{Name: "Quiz", Score: 95, Weight: 1}, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, "A", *record.LetterGrade)

	record, err = f.svc.AddComponent(ctx, record.ID, ComponentRequest{Name: "Exam", Score: 55, Weight: 1}, "teacher-1")
	require.NoError(t, err)
	assert.InDelta(t, 75.0, *record.FinalScore, 1e-9)
	assert.Equal(t, "C", *record.LetterGrade)
	firstID := record.Components[0].ID

	record, err = f.svc.UpdateComponent(ctx, record.ID, 1, ComponentRequest{Name: "Exam", Score: 85, Weight: 1}, "teacher-2")
	require.NoError(t, err)
	assert.InDelta(t, 90.0, *record.FinalScore, 1e-9)
	assert.Equal(t, "A-", *record.LetterGrade)
	assert.Equal(t, "teacher-2", *record.GradedBy)

	_, err = f.svc.UpdateComponent(ctx, record.ID, 5, ComponentRequest{Name: "Ghost", Score: 10, Weight: 1}, "")
	requireCode(t, err, appErrors.ErrNotFound)

	_, err = f.svc.UpdateComponent(ctx, record.ID, 0, ComponentRequest{Name: "Quiz", Score: -1, Weight: 1}, "")
	requireCode(t, err, appErrors.ErrValidation)

	record, err = f.svc.RemoveComponent(ctx, record.ID, 1, "")
	require.NoError(t, err)
	require.Len(t, record.Components, 1)
	assert.Equal(t, firstID, record.Components[0].ID)
	assert.Equal(t, "A", *record.LetterGrade)

	record, err = f.svc.RemoveComponent(ctx, record.ID, 0, "")
	require.NoError(t, err)
	assert.Nil(t, record.FinalScore)
	assert.Nil(t, record.LetterGrade)

	_, err = f.svc.RemoveComponent(ctx, record.ID, 0, "")
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestGradeServicePublishAndDelete(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, f.request(ComponentRequest{Name: "Exam", Score: 88, Weight: 1}), "")
	require.NoError(t, err)

	record, err = f.svc.Publish(ctx, record.ID, true)
	require.NoError(t, err)
	assert.True(t, record.IsPublished)

	published := true
	records, err := f.svc.List(ctx, models.GradeRecordFilter{CourseID: f.course.ID, Published: &published})
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, f.svc.Delete(ctx, record.ID))
	requireCode(t, f.svc.Delete(ctx, record.ID), appErrors.ErrNotFound)

	_, err = f.svc.Publish(ctx, record.ID, false)
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestGradeServiceGradebook(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()
	second := seedStudent(t, f.store, "S-2")
	enrollments := NewEnrollmentService(f.store.Enrollments(), f.store.Courses(), nil, nil, nil)
	_, err := enrollments.Enroll(ctx, f.course.ID, second.ID)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.request(ComponentRequest{Name: "Exam", Score: 91, Weight: 1}), "")
	require.NoError(t, err)

	book, err := f.svc.Gradebook(ctx, f.course.ID, models.SemesterFall, "2024/2025")
	require.NoError(t, err)
	assert.Equal(t, "CS101", book.CourseCode)
	require.Len(t, book.Rows, 2)

	graded := 0
	for _, row := range book.Rows {
		if row.LetterGrade != nil {
			graded++
			assert.Equal(t, "A-", *row.LetterGrade)
		}
	}
	assert.Equal(t, 1, graded)

	_, err = f.svc.Gradebook(ctx, f.course.ID, "Winter", "2024/2025")
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.svc.Gradebook(ctx, "missing", models.SemesterFall, "2024/2025")
	requireCode(t, err, appErrors.ErrCourseNotFound)
}
