package models

import "time"

// Student represents a learner who can enroll in courses.
type Student struct {
	ID              string    `db:"id" json:"id"`
	StudentNumber   string    `db:"student_number" json:"student_number"`
	FirstName       string    `db:"first_name" json:"first_name"`
	LastName        string    `db:"last_name" json:"last_name"`
	Email           string    `db:"email" json:"email"`
	Gender          string    `db:"gender" json:"gender"`
	DateOfBirth     time.Time `db:"date_of_birth" json:"date_of_birth"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	EnrolledCourses []string  `db:"-" json:"enrolled_courses"`
	EnrollmentDate  time.Time `db:"enrollment_date" json:"enrollment_date"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (s *Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// IsEnrolledIn reports whether courseID is in the student's course set.
func (s *Student) IsEnrolledIn(courseID string) bool {
	return containsID(s.EnrolledCourses, courseID)
}

// Clone returns a deep copy of the student.
func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}
	out := *s
	out.EnrolledCourses = append([]string(nil), s.EnrolledCourses...)
	return &out
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	CourseID  string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
