package service

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/export"
	"github.com/noah-isme/course-admin-api/pkg/jobs"
	"github.com/noah-isme/course-admin-api/pkg/storage"
)

// ExportJobType labels gradebook jobs on the queue.
const ExportJobType = "gradebook_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params models.ExportJobUpdate) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
	Expire(ctx context.Context, id string) error
}

type exportCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type gradebookExporter interface {
	ExportGradebook(ctx context.Context, courseID string, semester models.Semester, academicYear, format string) (*ExportResult, error)
}

type exportFileStore interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// CreateExportJobRequest asks for a background gradebook export.
type CreateExportJobRequest struct {
	Semester     models.Semester `json:"semester" validate:"required,oneof=Fall Spring Summer"`
	AcademicYear string          `json:"academic_year" validate:"required,max=20"`
	Format       string          `json:"format" validate:"omitempty,oneof=csv pdf"`
}

// ExportJobConfig governs periodic cleanup. A zero interval disables it.
type ExportJobConfig struct {
	CleanupInterval time.Duration
}

// ExportDownload is a resolved, ready to stream export file.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportJobService manages the lifecycle of background gradebook exports.
type ExportJobService struct {
	repo      exportJobStore
	courses   exportCourseReader
	queue     jobDispatcher
	files     exportFileStore
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportJobConfig
}

// NewExportJobService constructs the export job service.
func NewExportJobService(repo exportJobStore, courses exportCourseReader, queue jobDispatcher, files exportFileStore, signer *storage.SignedURLSigner,
	metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ExportJobConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExportJobService{
		repo:      repo,
		courses:   courses,
		queue:     queue,
		files:     files,
		signer:    signer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateJob validates the request, persists a queued job and dispatches it.
func (s *ExportJobService) CreateJob(ctx context.Context, courseID string, req CreateExportJobRequest, actorID string) (*models.ExportJob, error) {
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if req.Format == "" {
		req.Format = string(export.FormatCSV)
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if isNoRows(err) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Store(err, "failed to load course")
	}

	job := &models.ExportJob{
		CourseID:     courseID,
		Semester:     req.Semester,
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		Format:       req.Format,
		Status:       models.ExportJobQueued,
		CreatedBy:    actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Store(err, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
		s.logger.Warn("enqueue export job", zap.String("job_id", job.ID), zap.Error(err))
		failed := models.ExportJobFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, models.ExportJobUpdate{Status: &failed, Progress: &progress, ErrorMessage: &msg, FinishedAt: &now})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// GetStatus returns job metadata. Teachers only see their own jobs.
func (s *ExportJobService) GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Store(err, "failed to load export job")
	}
	if role != models.RoleAdmin && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	return job, nil
}

// ResolveDownload validates a signed token and opens the stored file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	tok, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, tok.JobID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Store(err, "failed to load export job")
	}
	if job.Status != models.ExportJobFinished || job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, "/"+token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not available")
	}
	file, err := s.files.Open(tok.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	return &ExportDownload{
		File:        file,
		Filename:    path.Base(tok.Path),
		ContentType: export.Format(job.Format).ContentType(),
		ExpiresAt:   tok.ExpiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a restart.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 100)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType, Attempt: job.Attempts}); err != nil {
			s.logger.Warn("failed to requeue pending export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("recovered queued export jobs", zap.Int("count", len(pending)))
	}
}

// StartCleanup purges expired export files until ctx is cancelled.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes files whose download links have lapsed and clears their links.
func (s *ExportJobService) CleanupExpired(ctx context.Context) {
	const batch = 100
	cutoff := time.Now().Add(-s.signer.TTL())
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
		if err != nil {
			s.logger.Warn("cleanup list failed", zap.Error(err))
			return
		}
		for _, job := range expired {
			if tok, err := s.signer.Parse(tokenFromURL(*job.ResultURL), true); err == nil {
				if err := s.files.Delete(tok.Path); err != nil {
					s.logger.Warn("cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
				}
			}
			if err := s.repo.Expire(ctx, job.ID); err != nil {
				s.logger.Warn("cleanup expire failed", zap.String("job_id", job.ID), zap.Error(err))
				return
			}
		}
		if len(expired) < batch {
			break
		}
	}
	if removed, err := s.files.CleanupOlderThan(s.signer.TTL()); err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("removed stale export files", zap.Int("count", len(removed)))
	}
}

func tokenFromURL(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// ExportWorker renders queued jobs and stores the result.
type ExportWorker struct {
	repo       exportJobStore
	exporter   gradebookExporter
	files      exportFileStore
	signer     *storage.SignedURLSigner
	metrics    *MetricsService
	logger     *zap.Logger
	base       string
	maxRetries int
}

// NewExportWorker constructs a worker. downloadBase prefixes generated result URLs.
func NewExportWorker(repo exportJobStore, exporter gradebookExporter, files exportFileStore, signer *storage.SignedURLSigner,
	metrics *MetricsService, downloadBase string, maxRetries int, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ExportWorker{
		repo:       repo,
		exporter:   exporter,
		files:      files,
		signer:     signer,
		metrics:    metrics,
		logger:     logger,
		base:       strings.TrimRight(downloadBase, "/"),
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job. Returning an error asks the queue to retry.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		if isNoRows(err) {
			w.logger.Warn("export job vanished", zap.String("job_id", job.ID))
			return nil
		}
		return err
	}
	if record.Status == models.ExportJobFinished || record.Status == models.ExportJobFailed {
		return nil
	}

	processing := models.ExportJobProcessing
	progress := 10
	attempts := job.Attempt + 1
	if err := w.repo.Update(ctx, job.ID, models.ExportJobUpdate{Status: &processing, Progress: &progress, Attempts: &attempts}); err != nil {
		return err
	}

	url, err := w.render(ctx, record)
	if err != nil {
		return w.fail(ctx, record, job.Attempt, err)
	}

	finished := models.ExportJobFinished
	progress = 100
	now := time.Now().UTC()
	noError := ""
	if err := w.repo.Update(ctx, job.ID, models.ExportJobUpdate{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.metrics.RecordExportJob(record.Format, string(finished))
	return nil
}

func (w *ExportWorker) render(ctx context.Context, record *models.ExportJob) (string, error) {
	result, err := w.exporter.ExportGradebook(ctx, record.CourseID, record.Semester, record.AcademicYear, record.Format)
	if err != nil {
		return "", err
	}
	rel, err := w.files.Save(path.Join("gradebooks", record.ID, result.Filename), result.Payload)
	if err != nil {
		return "", err
	}
	token, _, err := w.signer.Generate(record.ID, rel)
	if err != nil {
		return "", err
	}
	return w.base + "/" + token, nil
}

// fail marks the job failed when the error is permanent or retries are spent; otherwise
// it requeues the job and hands the error back to the queue.
func (w *ExportWorker) fail(ctx context.Context, record *models.ExportJob, attempt int, cause error) error {
	msg := cause.Error()
	permanent := isPermanent(cause)
	if permanent || attempt >= w.maxRetries {
		failed := models.ExportJobFailed
		progress := 100
		now := time.Now().UTC()
		if err := w.repo.Update(ctx, record.ID, models.ExportJobUpdate{Status: &failed, Progress: &progress, ErrorMessage: &msg, FinishedAt: &now}); err != nil {
			w.logger.Warn("failed to mark export job failed", zap.String("job_id", record.ID), zap.Error(err))
		}
		w.metrics.RecordExportJob(record.Format, string(failed))
		if permanent {
			return nil
		}
		return cause
	}

	queued := models.ExportJobQueued
	reset := 0
	if err := w.repo.Update(ctx, record.ID, models.ExportJobUpdate{Status: &queued, Progress: &reset, ErrorMessage: &msg}); err != nil {
		w.logger.Warn("failed to requeue export job", zap.String("job_id", record.ID), zap.Error(err))
	}
	return cause
}

func isPermanent(err error) bool {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErrors.KindOf(err) {
	case appErrors.KindValidation, appErrors.KindNotFound:
		return true
	}
	return false
}
