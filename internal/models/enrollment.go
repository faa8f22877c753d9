package models

// EnrollmentState is the membership state of a (student, course) pair.
type EnrollmentState string

// Possible enrollment states.
const (
	EnrollmentStateNotEnrolled EnrollmentState = "NOT_ENROLLED"
	EnrollmentStateEnrolled    EnrollmentState = "ENROLLED"
)

// StateOf derives the pair state from the course side of the relation.
func StateOf(course *Course, studentID string) EnrollmentState {
	if course != nil && course.HasStudent(studentID) {
		return EnrollmentStateEnrolled
	}
	return EnrollmentStateNotEnrolled
}

// EnrollmentMutation is applied by a store to locked copies of a course and a student.
// A nil course or student means the record does not exist. Returning an error aborts
// the transaction and leaves both records untouched.
type EnrollmentMutation func(course *Course, student *Student) error

// Link adds the pair to both sides of the relation.
func Link(course *Course, student *Student) {
	if !containsID(course.Students, student.ID) {
		course.Students = append(course.Students, student.ID)
	}
	if !containsID(student.EnrolledCourses, course.ID) {
		student.EnrolledCourses = append(student.EnrolledCourses, course.ID)
	}
}

// Unlink removes the pair from both sides of the relation.
func Unlink(course *Course, student *Student) {
	course.Students = removeID(course.Students, student.ID)
	student.EnrolledCourses = removeID(student.EnrolledCourses, course.ID)
}

// Enrollment is the response payload for enroll and unenroll.
type Enrollment struct {
	CourseID        string          `json:"course_id"`
	StudentID       string          `json:"student_id"`
	State           EnrollmentState `json:"state"`
	EnrollmentCount int             `json:"enrollment_count"`
	MaxStudents     int             `json:"max_students"`
}
