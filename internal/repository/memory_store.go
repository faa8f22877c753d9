package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// MemoryStore keeps every aggregate in process memory. It backs STORE_DRIVER=memory
// and the concurrency tests. Records are copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	locks    *keyedMutex
	courses  map[string]*models.Course
	students map[string]*models.Student
	grades   map[string]*models.GradeRecord
	users    map[string]*models.User
	exports  map[string]*models.ExportJob
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    newKeyedMutex(),
		courses:  make(map[string]*models.Course),
		students: make(map[string]*models.Student),
		grades:   make(map[string]*models.GradeRecord),
		users:    make(map[string]*models.User),
		exports:  make(map[string]*models.ExportJob),
	}
}

// Courses returns the course view of the store.
func (s *MemoryStore) Courses() *MemoryCourseRepository { return &MemoryCourseRepository{s: s} }

// Students returns the student view of the store.
func (s *MemoryStore) Students() *MemoryStudentRepository { return &MemoryStudentRepository{s: s} }

// Enrollments returns the enrollment view of the store.
func (s *MemoryStore) Enrollments() *MemoryEnrollmentRepository {
	return &MemoryEnrollmentRepository{s: s}
}

// Grades returns the grade record view of the store.
func (s *MemoryStore) Grades() *MemoryGradeRepository { return &MemoryGradeRepository{s: s} }

// Users returns the account view of the store.
func (s *MemoryStore) Users() *MemoryUserRepository { return &MemoryUserRepository{s: s} }

// ExportJobs returns the export job view of the store.
func (s *MemoryStore) ExportJobs() *MemoryExportJobRepository {
	return &MemoryExportJobRepository{s: s}
}

// Dashboard returns the aggregate view of the store.
func (s *MemoryStore) Dashboard() *MemoryDashboardRepository { return &MemoryDashboardRepository{s: s} }

func courseLockKey(id string) string  { return "course:" + id }
func studentLockKey(id string) string { return "student:" + id }
func gradeLockKey(id string) string   { return "grade:" + id }

// lockKeys maps ids to lock keys in sorted order so multi-key locking is deadlock free.
func lockKeys(key func(string) string, ids []string) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, key(id))
	}
	sort.Strings(keys)
	return keys
}

// MemoryCourseRepository serves course CRUD from a MemoryStore.
type MemoryCourseRepository struct{ s *MemoryStore }

// List filters, sorts and paginates courses.
func (r *MemoryCourseRepository) List(_ context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var matched []models.Course
	for _, c := range r.s.courses {
		if filter.Semester != "" && c.Semester != filter.Semester {
			continue
		}
		if filter.AcademicYear != "" && c.AcademicYear != filter.AcademicYear {
			continue
		}
		if filter.TeacherID != "" && (c.TeacherID == nil || *c.TeacherID != filter.TeacherID) {
			continue
		}
		if filter.StudentID != "" && !c.HasStudent(filter.StudentID) {
			continue
		}
		if filter.Active != nil && c.IsActive != *filter.Active {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) && !strings.Contains(strings.ToLower(c.Code), search) {
			continue
		}
		matched = append(matched, *c.Clone())
	}

	desc := strings.EqualFold(filter.SortOrder, "DESC")
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch filter.SortBy {
		case "name":
			less = a.Name < b.Name
		case "created_at":
			less = a.CreatedAt.Before(b.CreatedAt)
		default:
			less = a.Code < b.Code
		}
		if desc {
			return !less
		}
		return less
	})

	total := len(matched)
	return paginate(matched, filter.Page, filter.PageSize), total, nil
}

// FindByID returns a copy of the course or sql.ErrNoRows.
func (r *MemoryCourseRepository) FindByID(_ context.Context, id string) (*models.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c.Clone(), nil
}

// ExistsByCode checks uniqueness of course code.
func (r *MemoryCourseRepository) ExistsByCode(_ context.Context, code string, excludeID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, c := range r.s.courses {
		if id != excludeID && strings.EqualFold(c.Code, code) {
			return true, nil
		}
	}
	return false, nil
}

// Create stores a new course with an empty member set.
func (r *MemoryCourseRepository) Create(_ context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	course.Students = []string{}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.courses[course.ID] = course.Clone()
	return nil
}

// Update replaces course attributes and keeps the current member set.
func (r *MemoryCourseRepository) Update(_ context.Context, course *models.Course) error {
	unlock := r.s.locks.Lock(courseLockKey(course.ID))
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.courses[course.ID]
	if !ok {
		return sql.ErrNoRows
	}
	course.UpdatedAt = time.Now().UTC()
	next := course.Clone()
	next.Students = append([]string(nil), current.Students...)
	r.s.courses[course.ID] = next
	course.Students = append([]string(nil), current.Students...)
	return nil
}

// Delete removes a course and drops it from every member's course set. Member
// students are locked too so an enrollment into another course cannot write back
// a stale course set.
func (r *MemoryCourseRepository) Delete(_ context.Context, id string) error {
	unlock := r.s.locks.Lock(courseLockKey(id))
	defer unlock()

	// Members cannot change while the course lock is held.
	r.s.mu.RLock()
	course, ok := r.s.courses[id]
	var members []string
	if ok {
		members = append(members, course.Students...)
	}
	r.s.mu.RUnlock()
	if !ok {
		return sql.ErrNoRows
	}
	unlockMembers := r.s.locks.LockAll(lockKeys(studentLockKey, members)...)
	defer unlockMembers()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	course, ok = r.s.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	for _, studentID := range course.Students {
		if st, ok := r.s.students[studentID]; ok {
			st.EnrolledCourses = removeString(st.EnrolledCourses, id)
		}
	}
	delete(r.s.courses, id)
	return nil
}

// MemoryStudentRepository serves student CRUD from a MemoryStore.
type MemoryStudentRepository struct{ s *MemoryStore }

// List filters, sorts and paginates students.
func (r *MemoryStudentRepository) List(_ context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var matched []models.Student
	for _, st := range r.s.students {
		if filter.CourseID != "" && !st.IsEnrolledIn(filter.CourseID) {
			continue
		}
		if filter.Active != nil && st.IsActive != *filter.Active {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(st.FullName()), search) &&
			!strings.Contains(strings.ToLower(st.StudentNumber), search) &&
			!strings.Contains(strings.ToLower(st.Email), search) {
			continue
		}
		matched = append(matched, *st.Clone())
	}

	asc := strings.EqualFold(filter.SortOrder, "ASC")
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch filter.SortBy {
		case "student_number":
			less = a.StudentNumber < b.StudentNumber
		case "last_name":
			less = a.LastName < b.LastName
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if asc {
			return less
		}
		return !less
	})

	total := len(matched)
	return paginate(matched, filter.Page, filter.PageSize), total, nil
}

// FindByID returns a copy of the student or sql.ErrNoRows.
func (r *MemoryStudentRepository) FindByID(_ context.Context, id string) (*models.Student, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return st.Clone(), nil
}

// ExistsByNumberOrEmail checks if another student already uses the number or email.
func (r *MemoryStudentRepository) ExistsByNumberOrEmail(_ context.Context, number, email, excludeID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, st := range r.s.students {
		if id == excludeID {
			continue
		}
		if st.StudentNumber == number || strings.EqualFold(st.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// Create stores a new student with an empty course set.
func (r *MemoryStudentRepository) Create(_ context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	if student.EnrollmentDate.IsZero() {
		student.EnrollmentDate = now
	}
	student.UpdatedAt = now
	student.EnrolledCourses = []string{}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.students[student.ID] = student.Clone()
	return nil
}

// Update replaces student attributes and keeps the current course set.
func (r *MemoryStudentRepository) Update(_ context.Context, student *models.Student) error {
	unlock := r.s.locks.Lock(studentLockKey(student.ID))
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.students[student.ID]
	if !ok {
		return sql.ErrNoRows
	}
	student.UpdatedAt = time.Now().UTC()
	next := student.Clone()
	next.EnrolledCourses = append([]string(nil), current.EnrolledCourses...)
	r.s.students[student.ID] = next
	student.EnrolledCourses = append([]string(nil), current.EnrolledCourses...)
	return nil
}

// Delete removes a student and drops it from every course member set. The student's
// courses are locked before the student, the same order MutateEnrollment uses.
func (r *MemoryStudentRepository) Delete(_ context.Context, id string) error {
	for {
		r.s.mu.RLock()
		st, ok := r.s.students[id]
		var courses []string
		if ok {
			courses = append(courses, st.EnrolledCourses...)
		}
		r.s.mu.RUnlock()
		if !ok {
			return sql.ErrNoRows
		}

		done, err := r.deleteLocked(id, courses)
		if done {
			return err
		}
	}
}

// deleteLocked reports done=false when the student joined a course outside courses
// before its lock was taken, so the caller retries with the new set.
func (r *MemoryStudentRepository) deleteLocked(id string, courses []string) (bool, error) {
	keys := append(lockKeys(courseLockKey, courses), studentLockKey(id))
	unlock := r.s.locks.LockAll(keys...)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.students[id]
	if !ok {
		return true, sql.ErrNoRows
	}
	locked := make(map[string]struct{}, len(courses))
	for _, courseID := range courses {
		locked[courseID] = struct{}{}
	}
	for _, courseID := range st.EnrolledCourses {
		if _, ok := locked[courseID]; !ok {
			return false, nil
		}
	}
	for _, courseID := range st.EnrolledCourses {
		if c, ok := r.s.courses[courseID]; ok {
			c.Students = removeString(c.Students, id)
		}
	}
	delete(r.s.students, id)
	return true, nil
}

// MemoryEnrollmentRepository applies enrollment mutations under per-record locks.
type MemoryEnrollmentRepository struct{ s *MemoryStore }

// MutateEnrollment locks the course and then the student, hands copies to mutate and
// stores both copies when mutate returns nil.
func (r *MemoryEnrollmentRepository) MutateEnrollment(_ context.Context, courseID, studentID string, mutate models.EnrollmentMutation) error {
	unlockCourse := r.s.locks.Lock(courseLockKey(courseID))
	defer unlockCourse()
	unlockStudent := r.s.locks.Lock(studentLockKey(studentID))
	defer unlockStudent()

	r.s.mu.RLock()
	course := r.s.courses[courseID].Clone()
	student := r.s.students[studentID].Clone()
	r.s.mu.RUnlock()

	if err := mutate(course, student); err != nil {
		return err
	}
	if course == nil || student == nil {
		return nil
	}
	if course.HasStudent(studentID) != student.IsEnrolledIn(courseID) {
		return ErrInconsistentMutation
	}

	now := time.Now().UTC()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if current, ok := r.s.courses[courseID]; ok {
		if course.HasStudent(studentID) != current.HasStudent(studentID) {
			course.UpdatedAt = now
			student.UpdatedAt = now
		}
		r.s.courses[courseID] = course
	}
	if _, ok := r.s.students[studentID]; ok {
		r.s.students[studentID] = student
	}
	return nil
}

// MemoryGradeRepository serves grade records from a MemoryStore.
type MemoryGradeRepository struct{ s *MemoryStore }

// List returns grade records matching the filter, most recently updated first.
func (r *MemoryGradeRepository) List(_ context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.GradeRecord
	for _, g := range r.s.grades {
		if filter.StudentID != "" && g.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && g.CourseID != filter.CourseID {
			continue
		}
		if filter.Semester != "" && g.Semester != filter.Semester {
			continue
		}
		if filter.AcademicYear != "" && g.AcademicYear != filter.AcademicYear {
			continue
		}
		if filter.Published != nil && g.IsPublished != *filter.Published {
			continue
		}
		out = append(out, cloneGradeRecord(g))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// FindByID returns a copy of the record or sql.ErrNoRows.
func (r *MemoryGradeRepository) FindByID(_ context.Context, id string) (*models.GradeRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.grades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := cloneGradeRecord(g)
	return &out, nil
}

// ExistsForTerm checks whether the student already has a record for the course and term.
func (r *MemoryGradeRepository) ExistsForTerm(_ context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.findForTerm(studentID, courseID, semester, academicYear) != nil, nil
}

// Create stores a new record with its derived grade.
func (r *MemoryGradeRepository) Create(_ context.Context, record *models.GradeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.Recompute()
	stampComponents(record)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := cloneGradeRecord(record)
	r.s.grades[record.ID] = &stored
	return nil
}

// MutateRecord applies mutate to a locked copy of the record and stores it when mutate succeeds.
func (r *MemoryGradeRepository) MutateRecord(_ context.Context, id string, mutate models.GradeRecordMutation) (*models.GradeRecord, error) {
	unlock := r.s.locks.Lock(gradeLockKey(id))
	defer unlock()

	r.s.mu.RLock()
	current, ok := r.s.grades[id]
	var record models.GradeRecord
	if ok {
		record = cloneGradeRecord(current)
	}
	r.s.mu.RUnlock()
	if !ok {
		return nil, sql.ErrNoRows
	}

	if err := mutate(&record); err != nil {
		return nil, err
	}
	record.UpdatedAt = time.Now().UTC()
	record.Recompute()
	stampComponents(&record)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.grades[id]; !ok {
		return nil, sql.ErrNoRows
	}
	stored := cloneGradeRecord(&record)
	r.s.grades[id] = &stored
	return &record, nil
}

// Delete removes a record.
func (r *MemoryGradeRepository) Delete(_ context.Context, id string) error {
	unlock := r.s.locks.Lock(gradeLockKey(id))
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.grades[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.s.grades, id)
	return nil
}

// Gradebook lists every enrolled student of a course with the grade for the given term, if any.
func (r *MemoryGradeRepository) Gradebook(_ context.Context, courseID string, semester models.Semester, academicYear string) ([]models.GradebookRow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	course, ok := r.s.courses[courseID]
	if !ok {
		return []models.GradebookRow{}, nil
	}
	rows := make([]models.GradebookRow, 0, len(course.Students))
	for _, studentID := range course.Students {
		st, ok := r.s.students[studentID]
		if !ok {
			continue
		}
		row := models.GradebookRow{
			StudentID:     st.ID,
			StudentNumber: st.StudentNumber,
			StudentName:   st.FullName(),
			Semester:      semester,
			AcademicYear:  academicYear,
		}
		if g := r.findForTerm(studentID, courseID, semester, academicYear); g != nil {
			row.FinalScore = g.FinalScore
			row.LetterGrade = g.LetterGrade
			row.IsPublished = g.IsPublished
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StudentName < rows[j].StudentName })
	return rows, nil
}

func (r *MemoryGradeRepository) findForTerm(studentID, courseID string, semester models.Semester, academicYear string) *models.GradeRecord {
	for _, g := range r.s.grades {
		if g.StudentID == studentID && g.CourseID == courseID && g.Semester == semester && g.AcademicYear == academicYear {
			return g
		}
	}
	return nil
}

// MemoryUserRepository serves accounts from a MemoryStore.
type MemoryUserRepository struct{ s *MemoryStore }

// FindByEmail returns a user by email address.
func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

// FindByID returns a user by identifier.
func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *u
	return &out, nil
}

// UpdateLastLogin updates the last login timestamp for a user.
func (r *MemoryUserRepository) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.LastLogin = &ts
	u.UpdatedAt = ts
	return nil
}

// Create stores a new user.
func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *user
	r.s.users[user.ID] = &stored
	return nil
}

// List returns accounts matching the filter along with the total count.
func (r *MemoryUserRepository) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var matched []models.User
	for _, u := range r.s.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Email), search) && !strings.Contains(strings.ToLower(u.FullName), search) {
			continue
		}
		matched = append(matched, *u)
	}

	asc := strings.EqualFold(filter.SortOrder, "ASC")
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch filter.SortBy {
		case "email":
			less = a.Email < b.Email
		case "full_name":
			less = a.FullName < b.FullName
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if asc {
			return less
		}
		return !less
	})

	return paginate(matched, filter.Page, filter.PageSize), len(matched), nil
}

// Update replaces the stored account.
func (r *MemoryUserRepository) Update(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	user.UpdatedAt = time.Now().UTC()
	stored := *user
	r.s.users[user.ID] = &stored
	return nil
}

// MemoryExportJobRepository serves export jobs from a MemoryStore.
type MemoryExportJobRepository struct{ s *MemoryStore }

// Create stores a new job.
func (r *MemoryExportJobRepository) Create(_ context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportJobQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *job
	r.s.exports[job.ID] = &stored
	return nil
}

// GetByID returns a copy of the job or sql.ErrNoRows.
func (r *MemoryExportJobRepository) GetByID(_ context.Context, id string) (*models.ExportJob, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	job, ok := r.s.exports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *job
	return &out, nil
}

// Update applies the non-nil fields.
func (r *MemoryExportJobRepository) Update(_ context.Context, id string, params models.ExportJobUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.exports[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.Attempts != nil {
		job.Attempts = *params.Attempts
	}
	if params.ResultURL != nil {
		url := *params.ResultURL
		job.ResultURL = &url
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.FinishedAt != nil {
		at := *params.FinishedAt
		job.FinishedAt = &at
	}
	return nil
}

// ListQueued returns queued jobs, oldest first.
func (r *MemoryExportJobRepository) ListQueued(_ context.Context, limit int) ([]models.ExportJob, error) {
	return r.list(limit, func(j *models.ExportJob) bool { return j.Status == models.ExportJobQueued }, func(j models.ExportJob) time.Time { return j.CreatedAt }), nil
}

// ListFinishedBefore returns finished jobs with a live result older than cutoff.
func (r *MemoryExportJobRepository) ListFinishedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return r.list(limit, func(j *models.ExportJob) bool {
		return j.Status == models.ExportJobFinished && j.ResultURL != nil && j.FinishedAt != nil && j.FinishedAt.Before(cutoff)
	}, func(j models.ExportJob) time.Time { return *j.FinishedAt }), nil
}

// Expire clears the result link of a job.
func (r *MemoryExportJobRepository) Expire(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if job, ok := r.s.exports[id]; ok {
		job.ResultURL = nil
	}
	return nil
}

func (r *MemoryExportJobRepository) list(limit int, keep func(*models.ExportJob) bool, key func(models.ExportJob) time.Time) []models.ExportJob {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.ExportJob
	for _, j := range r.s.exports {
		if keep(j) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return key(out[i]).Before(key(out[k])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneGradeRecord(g *models.GradeRecord) models.GradeRecord {
	out := *g
	out.Components = append([]models.GradeComponent(nil), g.Components...)
	if out.Components == nil {
		out.Components = []models.GradeComponent{}
	}
	return out
}

func stampComponents(record *models.GradeRecord) {
	for i := range record.Components {
		if record.Components[i].ID == "" {
			record.Components[i].ID = uuid.NewString()
		}
		if record.Components[i].SubmittedAt.IsZero() {
			record.Components[i].SubmittedAt = record.UpdatedAt
		}
	}
}

func paginate[T any](items []T, page, size int) []T {
	page, size = normalizePage(page, size)
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func removeString(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// keyedMutex hands out one mutex per key and frees it once nobody holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LockAll acquires the keys in the given order and releases them in reverse.
// Duplicate keys are locked once.
func (k *keyedMutex) LockAll(keys ...string) func() {
	seen := make(map[string]struct{}, len(keys))
	unlocks := make([]func(), 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// MemoryDashboardRepository computes the admin overview from a MemoryStore.
type MemoryDashboardRepository struct{ s *MemoryStore }

// Summary mirrors DashboardRepository.Summary.
func (r *MemoryDashboardRepository) Summary(_ context.Context) (*models.DashboardSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var summary models.DashboardSummary
	for _, c := range r.s.courses {
		summary.Courses.Total++
		if c.IsActive {
			summary.Courses.Active++
		}
		if c.IsFull() {
			summary.Courses.Full++
		}
		summary.Courses.Seats += c.MaxStudents
		summary.Courses.SeatsTaken += c.EnrollmentCount()
	}
	summary.Enrollments = summary.Courses.SeatsTaken

	for _, st := range r.s.students {
		summary.Students.Total++
		if st.IsActive {
			summary.Students.Active++
		}
	}
	for _, u := range r.s.users {
		if u.Role == models.RoleTeacher && u.Active {
			summary.Teachers++
		}
	}

	counts := map[string]int{}
	for _, g := range r.s.grades {
		if g.LetterGrade != nil {
			counts[*g.LetterGrade]++
		}
	}
	for letter, n := range counts {
		summary.GradeDistribution = append(summary.GradeDistribution, models.LetterCount{Letter: letter, Count: n})
	}
	return &summary, nil
}
