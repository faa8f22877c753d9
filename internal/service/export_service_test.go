package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/export"
)

type stubGradebookSource struct {
	book *models.Gradebook
	err  error
}

func (s stubGradebookSource) Gradebook(context.Context, string, models.Semester, string) (*models.Gradebook, error) {
	return s.book, s.err
}

func sampleGradebook() *models.Gradebook {
	score := 89.6
	letter := "B+"
	return &models.Gradebook{
		CourseID:     "c1",
		CourseCode:   "CS101",
		CourseName:   "Algorithms",
		Semester:     models.SemesterFall,
		AcademicYear: "2024/2025",
		Rows: []models.GradebookRow{
			{StudentID: "s1", StudentNumber: "S-1", StudentName: "Ada Lovelace", FinalScore: &score, LetterGrade: &letter, IsPublished: true},
			{StudentID: "s2", StudentNumber: "S-2", StudentName: "Alan Turing"},
		},
	}
}

func TestExportGradebookCSV(t *testing.T) {
	svc := NewExportService(stubGradebookSource{book: sampleGradebook()}, nil)
	svc.now = func() time.Time { return time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC) }

	result, err := svc.ExportGradebook(context.Background(), "c1", models.SemesterFall, "2024/2025", "")
	require.NoError(t, err)
	assert.Equal(t, export.FormatCSV, result.Format)
	assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)
	assert.Equal(t, "gradebook_CS101_fall_2024-2025_20240901_080000.csv", result.Filename)
	assert.Equal(t, 2, result.Rows)

	records, err := csv.NewReader(bytes.NewReader(result.Payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, gradebookHeaders, records[0])
	assert.Equal(t, []string{"S-1", "Ada Lovelace", "89.60", "90", "B+", "yes"}, records[1])
	assert.Equal(t, []string{"S-2", "Alan Turing", "", "", "", "no"}, records[2])
}

func TestExportGradebookPDF(t *testing.T) {
	svc := NewExportService(stubGradebookSource{book: sampleGradebook()}, nil)

	result, err := svc.ExportGradebook(context.Background(), "c1", models.SemesterFall, "2024/2025", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Payload, []byte("%PDF")))
}

func TestExportGradebookErrors(t *testing.T) {
	svc := NewExportService(stubGradebookSource{book: sampleGradebook()}, nil)
	_, err := svc.ExportGradebook(context.Background(), "c1", models.SemesterFall, "2024/2025", "xlsx")
	requireCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, "format", appErrors.FromError(err).Field)

	svc = NewExportService(stubGradebookSource{err: appErrors.Clone(appErrors.ErrCourseNotFound, "course not found")}, nil)
	_, err = svc.ExportGradebook(context.Background(), "missing", models.SemesterFall, "2024/2025", "csv")
	requireCode(t, err, appErrors.ErrCourseNotFound)
}
