package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// CourseStore persists courses.
type CourseStore interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

// StudentStore persists students.
type StudentStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByNumberOrEmail(ctx context.Context, number, email, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

// EnrollmentStore applies locked membership changes.
type EnrollmentStore interface {
	MutateEnrollment(ctx context.Context, courseID, studentID string, mutate models.EnrollmentMutation) error
}

// GradeStore persists grade records.
type GradeStore interface {
	List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error)
	FindByID(ctx context.Context, id string) (*models.GradeRecord, error)
	ExistsForTerm(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error)
	Create(ctx context.Context, record *models.GradeRecord) error
	MutateRecord(ctx context.Context, id string, mutate models.GradeRecordMutation) (*models.GradeRecord, error)
	Delete(ctx context.Context, id string) error
	Gradebook(ctx context.Context, courseID string, semester models.Semester, academicYear string) ([]models.GradebookRow, error)
}

// UserStore persists accounts.
type UserStore interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// ExportJobStore persists background gradebook exports.
type ExportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params models.ExportJobUpdate) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
	Expire(ctx context.Context, id string) error
}

// DashboardStore aggregates headline counts.
type DashboardStore interface {
	Summary(ctx context.Context) (*models.DashboardSummary, error)
}

// Stores bundles one backend's repositories.
type Stores struct {
	Courses     CourseStore
	Students    StudentStore
	Enrollments EnrollmentStore
	Grades      GradeStore
	Users       UserStore
	ExportJobs  ExportJobStore
	Dashboard   DashboardStore
	Ping        func(ctx context.Context) error
}

// NewPostgresStores builds the Postgres-backed repositories.
func NewPostgresStores(db *sqlx.DB) Stores {
	return Stores{
		Courses:     NewCourseRepository(db),
		Students:    NewStudentRepository(db),
		Enrollments: NewEnrollmentRepository(db),
		Grades:      NewGradeRepository(db),
		Users:       NewUserRepository(db),
		ExportJobs:  NewExportJobRepository(db),
		Dashboard:   NewDashboardRepository(db),
		Ping:        db.PingContext,
	}
}

// Stores returns the in-memory repositories.
func (s *MemoryStore) Stores() Stores {
	return Stores{
		Courses:     s.Courses(),
		Students:    s.Students(),
		Enrollments: s.Enrollments(),
		Grades:      s.Grades(),
		Users:       s.Users(),
		ExportJobs:  s.ExportJobs(),
		Dashboard:   s.Dashboard(),
		Ping:        func(context.Context) error { return nil },
	}
}

var (
	_ CourseStore     = (*CourseRepository)(nil)
	_ CourseStore     = (*MemoryCourseRepository)(nil)
	_ StudentStore    = (*StudentRepository)(nil)
	_ StudentStore    = (*MemoryStudentRepository)(nil)
	_ EnrollmentStore = (*EnrollmentRepository)(nil)
	_ EnrollmentStore = (*MemoryEnrollmentRepository)(nil)
	_ GradeStore      = (*GradeRepository)(nil)
	_ GradeStore      = (*MemoryGradeRepository)(nil)
	_ UserStore       = (*UserRepository)(nil)
	_ UserStore       = (*MemoryUserRepository)(nil)
	_ ExportJobStore  = (*ExportJobRepository)(nil)
	_ ExportJobStore  = (*MemoryExportJobRepository)(nil)
	_ DashboardStore  = (*DashboardRepository)(nil)
	_ DashboardStore  = (*MemoryDashboardRepository)(nil)
)
