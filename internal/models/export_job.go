package models

import "time"

// ExportJobStatus captures background export lifecycle states.
type ExportJobStatus string

const (
	ExportJobQueued     ExportJobStatus = "QUEUED"
	ExportJobProcessing ExportJobStatus = "PROCESSING"
	ExportJobFinished   ExportJobStatus = "FINISHED"
	ExportJobFailed     ExportJobStatus = "FAILED"
)

// ExportJob is a persisted request to render a course gradebook in the background.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	CourseID     string          `db:"course_id" json:"course_id"`
	Semester     Semester        `db:"semester" json:"semester"`
	AcademicYear string          `db:"academic_year" json:"academic_year"`
	Format       string          `db:"format" json:"format"`
	Status       ExportJobStatus `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	Attempts     int             `db:"attempts" json:"attempts"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ExportJobUpdate lists the mutable job fields; nil leaves a field untouched.
type ExportJobUpdate struct {
	Status       *ExportJobStatus
	Progress     *int
	Attempts     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}
