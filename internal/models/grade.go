package models

import (
	"time"

	"github.com/noah-isme/course-admin-api/internal/grading"
)

// GradeComponent is a persisted scored component of a grade record.
type GradeComponent struct {
	ID            string    `db:"id" json:"id"`
	GradeRecordID string    `db:"grade_record_id" json:"grade_record_id"`
	Position      int       `db:"position" json:"position"`
	Name          string    `db:"name" json:"name"`
	Score         float64   `db:"score" json:"score"`
	Weight        float64   `db:"weight" json:"weight"`
	Comments      *string   `db:"comments" json:"comments,omitempty"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submitted_at"`
}

// Scored converts the row into the calculator input.
func (c GradeComponent) Scored() grading.ScoredComponent {
	return grading.ScoredComponent{Name: c.Name, Score: c.Score, Weight: c.Weight}
}

// GradeRecord aggregates components for one student, course and term.
// FinalScore and LetterGrade are a projection of Components written together with them.
type GradeRecord struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	CourseID     string           `db:"course_id" json:"course_id"`
	Semester     Semester         `db:"semester" json:"semester"`
	AcademicYear string           `db:"academic_year" json:"academic_year"`
	FinalScore   *float64         `db:"final_score" json:"final_score"`
	LetterGrade  *string          `db:"letter_grade" json:"letter_grade"`
	IsPublished  bool             `db:"is_published" json:"is_published"`
	GradedBy     *string          `db:"graded_by" json:"graded_by,omitempty"`
	Components   []GradeComponent `db:"-" json:"components"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// ScoredComponents returns the calculator view of the components in order.
func (g *GradeRecord) ScoredComponents() []grading.ScoredComponent {
	out := make([]grading.ScoredComponent, 0, len(g.Components))
	for _, c := range g.Components {
		out = append(out, c.Scored())
	}
	return out
}

// Recompute refreshes positions and the derived grade from Components.
func (g *GradeRecord) Recompute() grading.Result {
	for i := range g.Components {
		g.Components[i].Position = i
		g.Components[i].GradeRecordID = g.ID
	}
	result := grading.ComputeFinalGrade(g.ScoredComponents())
	g.FinalScore = result.FinalScore
	g.LetterGrade = result.LetterGrade
	return result
}

// GradeRecordMutation edits a locked copy of a grade record. Returning an error aborts the write.
type GradeRecordMutation func(record *GradeRecord) error

// GradeRecordFilter narrows grade record listings.
type GradeRecordFilter struct {
	StudentID    string
	CourseID     string
	Semester     Semester
	AcademicYear string
	Published    *bool
}

// GradebookRow is one line of a course gradebook.
type GradebookRow struct {
	StudentID     string   `db:"student_id" json:"student_id"`
	StudentNumber string   `db:"student_number" json:"student_number"`
	StudentName   string   `db:"student_name" json:"student_name"`
	Semester      Semester `db:"semester" json:"semester"`
	AcademicYear  string   `db:"academic_year" json:"academic_year"`
	FinalScore    *float64 `db:"final_score" json:"final_score"`
	LetterGrade   *string  `db:"letter_grade" json:"letter_grade"`
	IsPublished   bool     `db:"is_published" json:"is_published"`
}

// Gradebook is the per-term grade sheet of one course.
type Gradebook struct {
	CourseID     string         `json:"course_id"`
	CourseCode   string         `json:"course_code"`
	CourseName   string         `json:"course_name"`
	Semester     Semester       `json:"semester"`
	AcademicYear string         `json:"academic_year"`
	Rows         []GradebookRow `json:"rows"`
}
