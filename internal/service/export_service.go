package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/grading"
	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/export"
)

type gradebookSource interface {
	Gradebook(ctx context.Context, courseID string, semester models.Semester, academicYear string) (*models.Gradebook, error)
}

// ExportResult is a rendered export ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Format      export.Format
	Payload     []byte
	Rows        int
}

var gradebookHeaders = []string{"Student Number", "Student Name", "Final Score", "Percent", "Letter Grade", "Published"}

// ExportService renders gradebooks into downloadable files.
type ExportService struct {
	grades gradebookSource
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(grades gradebookSource, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{grades: grades, logger: logger, now: time.Now}
}

// ExportGradebook renders the gradebook of a course term as CSV or PDF.
func (s *ExportService) ExportGradebook(ctx context.Context, courseID string, semester models.Semester, academicYear, format string) (*ExportResult, error) {
	f, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(format)))
	if err != nil {
		return nil, appErrors.Validation("format", err.Error())
	}
	book, err := s.grades.Gradebook(ctx, courseID, semester, academicYear)
	if err != nil {
		return nil, err
	}

	dataset := gradebookDataset(book)
	payload, err := export.RendererFor(f).Render(dataset)
	if err != nil {
		s.logger.Error("render gradebook", zap.String("course_id", courseID), zap.String("format", string(f)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gradebook")
	}

	return &ExportResult{
		Filename:    s.buildFilename(book, f),
		ContentType: f.ContentType(),
		Format:      f,
		Payload:     payload,
		Rows:        len(dataset.Rows),
	}, nil
}

func gradebookDataset(book *models.Gradebook) export.Dataset {
	rows := make([]map[string]string, 0, len(book.Rows))
	for _, r := range book.Rows {
		row := map[string]string{
			"Student Number": r.StudentNumber,
			"Student Name":   r.StudentName,
			"Final Score":    "",
			"Percent":        "",
			"Letter Grade":   "",
			"Published":      "no",
		}
		if r.FinalScore != nil {
			row["Final Score"] = fmt.Sprintf("%.2f", *r.FinalScore)
			row["Percent"] = fmt.Sprintf("%d", grading.RoundPercent(*r.FinalScore))
		}
		if r.LetterGrade != nil {
			row["Letter Grade"] = *r.LetterGrade
		}
		if r.IsPublished {
			row["Published"] = "yes"
		}
		rows = append(rows, row)
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s %s - %s %s", book.CourseCode, book.CourseName, book.Semester, book.AcademicYear),
		Headers: gradebookHeaders,
		Rows:    rows,
	}
}

func (s *ExportService) buildFilename(book *models.Gradebook, f export.Format) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("gradebook_%s_%s_%s_%s.%s", sanitizeFilename(book.CourseCode), strings.ToLower(string(book.Semester)),
		sanitizeFilename(book.AcademicYear), timestamp, f)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
