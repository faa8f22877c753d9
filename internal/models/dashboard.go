package models

import "time"

// CourseTotals summarises course capacity.
type CourseTotals struct {
	Total      int `db:"total" json:"total"`
	Active     int `db:"active" json:"active"`
	Full       int `db:"full_courses" json:"full"`
	Seats      int `db:"seats" json:"seats"`
	SeatsTaken int `db:"seats_taken" json:"seats_taken"`
}

// StudentTotals summarises the student roster.
type StudentTotals struct {
	Total  int `db:"total" json:"total"`
	Active int `db:"active" json:"active"`
}

// LetterCount is one bucket of the grade distribution.
type LetterCount struct {
	Letter string `db:"letter_grade" json:"letter"`
	Count  int    `db:"count" json:"count"`
}

// DashboardSummary is the admin overview payload.
type DashboardSummary struct {
	Courses           CourseTotals  `json:"courses"`
	Students          StudentTotals `json:"students"`
	Teachers          int           `json:"teachers"`
	Enrollments       int           `json:"enrollments"`
	GradeDistribution []LetterCount `json:"grade_distribution"`
	GeneratedAt       time.Time     `json:"generated_at"`
}
