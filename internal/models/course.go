package models

import "time"

// Semester identifies the academic period a course runs in.
type Semester string

// Supported semesters.
const (
	SemesterFall   Semester = "Fall"
	SemesterSpring Semester = "Spring"
	SemesterSummer Semester = "Summer"
)

// CourseSchedule describes the weekly meeting slot of a course.
type CourseSchedule struct {
	Day       string `db:"schedule_day" json:"day"`
	StartTime string `db:"schedule_start" json:"start_time"`
	EndTime   string `db:"schedule_end" json:"end_time"`
	Room      string `db:"schedule_room" json:"room"`
}

// Course is a capacity-bounded offering students enroll in.
type Course struct {
	ID             string   `db:"id" json:"id"`
	Code           string   `db:"code" json:"code"`
	Name           string   `db:"name" json:"name"`
	Description    string   `db:"description" json:"description"`
	Credits        int      `db:"credits" json:"credits"`
	TeacherID      *string  `db:"teacher_id" json:"teacher_id,omitempty"`
	Semester       Semester `db:"semester" json:"semester"`
	AcademicYear   string   `db:"academic_year" json:"academic_year"`
	MaxStudents    int      `db:"max_students" json:"max_students"`
	IsActive       bool     `db:"is_active" json:"is_active"`
	CourseSchedule `json:"schedule"`
	Students       []string  `db:"-" json:"students"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentCount returns the number of enrolled students.
func (c *Course) EnrollmentCount() int {
	return len(c.Students)
}

// IsFull reports whether the course reached its capacity.
func (c *Course) IsFull() bool {
	return len(c.Students) >= c.MaxStudents
}

// CanEnroll reports whether another student may join the course.
func (c *Course) CanEnroll() bool {
	return c.IsActive && len(c.Students) < c.MaxStudents
}

// HasStudent reports whether studentID is in the member set.
func (c *Course) HasStudent(studentID string) bool {
	return containsID(c.Students, studentID)
}

// Clone returns a deep copy so callers can mutate membership without aliasing.
func (c *Course) Clone() *Course {
	if c == nil {
		return nil
	}
	out := *c
	out.Students = append([]string(nil), c.Students...)
	if c.TeacherID != nil {
		id := *c.TeacherID
		out.TeacherID = &id
	}
	return &out
}

// CourseDetail adds derived enrollment information for responses.
type CourseDetail struct {
	Course
	EnrollmentCount int  `json:"enrollment_count"`
	IsFull          bool `json:"is_full"`
	CanEnroll       bool `json:"can_enroll"`
}

// NewCourseDetail derives the enrollment fields from c.
func NewCourseDetail(c *Course) *CourseDetail {
	return &CourseDetail{Course: *c, EnrollmentCount: c.EnrollmentCount(), IsFull: c.IsFull(), CanEnroll: c.CanEnroll()}
}

// CourseFilter describes list criteria for courses.
type CourseFilter struct {
	Search       string
	Semester     Semester
	AcademicYear string
	TeacherID    string
	StudentID    string
	Active       *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
