package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	"github.com/noah-isme/course-admin-api/internal/service"
	"github.com/noah-isme/course-admin-api/pkg/jobs"
	"github.com/noah-isme/course-admin-api/pkg/storage"
)

type testServer struct {
	router *gin.Engine
	store  *repository.MemoryStore
	token  string
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func newTestServer(t *testing.T, checks map[string]ReadinessCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(nil, metrics, 0, nil, false)

	auth := service.NewAuthService(store.Users(), nil, nil, service.AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "course-admin-api",
	})
	require.NoError(t, auth.EnsureUser(context.Background(), "admin@school.test", "changeme", "Admin", models.RoleAdmin))

	courses := service.NewCourseService(store.Courses(), cacheSvc, nil, nil)
	students := service.NewStudentService(store.Students(), cacheSvc, nil, nil)
	enrollments := service.NewEnrollmentService(store.Enrollments(), store.Courses(), cacheSvc, metrics, nil)
	grades := service.NewGradeService(store.Grades(), store.Courses(), store.Students(), metrics, nil, nil)
	exports := service.NewExportService(grades, nil)

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	worker := service.NewExportWorker(store.ExportJobs(), exports, files, signer, metrics, "/api/v1/exports/download", 0, nil)
	queue := jobs.NewQueue("exports", worker.Handle, jobs.QueueConfig{Workers: 1})
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)
	exportJobs := service.NewExportJobService(store.ExportJobs(), store.Courses(), queue, files, signer, metrics, nil, nil, service.ExportJobConfig{})

	router := NewRouter(RouterConfig{MetricsEnabled: true}, Handlers{
		Auth:       NewAuthHandler(auth),
		Course:     NewCourseHandler(courses, enrollments),
		Student:    NewStudentHandler(students),
		Enrollment: NewEnrollmentHandler(enrollments),
		Grade:      NewGradeHandler(grades, exports),
		User:       NewUserHandler(service.NewUserService(store.Users(), nil, nil)),
		ExportJobs: NewExportJobHandler(exportJobs),
		Dashboard:  NewDashboardHandler(service.NewDashboardService(store.Dashboard(), nil, 0, nil)),
		Metrics:    NewMetricsHandler(metrics, checks),
	}, auth, metrics, nil)

	srv := &testServer{router: router, store: store}
	w := srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "admin@school.test", "password": "changeme"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login models.LoginResponse
	srv.decode(t, w, &login)
	srv.token = login.AccessToken
	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Nil(t, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	return env.Error.Code
}

func TestRouterRequiresToken(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.token = ""

	w := srv.do(t, http.MethodGet, "/api/v1/courses", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	srv.token = "garbage"
	w = srv.do(t, http.MethodGet, "/api/v1/courses", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterEnrollmentFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(t, http.MethodPost, "/api/v1/courses", map[string]interface{}{
		"code": "cs101", "name": "Algorithms", "credits": 3, "semester": "Fall",
		"academic_year": "2024/2025", "max_students": 1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var course models.CourseDetail
	srv.decode(t, w, &course)
	assert.Equal(t, "CS101", course.Code)

	var studentIDs []string
	for _, number := range []string{"S-1", "S-2"} {
		w = srv.do(t, http.MethodPost, "/api/v1/students", map[string]interface{}{
			"student_number": number, "first_name": "Student", "last_name": number,
			"email": strings.ToLower(number) + "@school.test", "date_of_birth": "2006-01-02T00:00:00Z",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var student models.Student
		srv.decode(t, w, &student)
		studentIDs = append(studentIDs, student.ID)
	}

	w = srv.do(t, http.MethodPost, "/api/v1/courses/"+course.ID+"/students", map[string]string{"student_id": studentIDs[0]})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var enrollment models.Enrollment
	srv.decode(t, w, &enrollment)
	assert.Equal(t, models.EnrollmentStateEnrolled, enrollment.State)

	w = srv.do(t, http.MethodPost, "/api/v1/courses/"+course.ID+"/students", map[string]string{"student_id": studentIDs[1]})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "COURSE_FULL", errorCode(t, w))

	w = srv.do(t, http.MethodGet, "/api/v1/courses/"+course.ID+"/can-enroll", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var eligibility service.EnrollmentEligibility
	srv.decode(t, w, &eligibility)
	assert.False(t, eligibility.CanEnroll)

	w = srv.do(t, http.MethodDelete, "/api/v1/courses/"+course.ID+"/students/"+studentIDs[1], nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_ENROLLED", errorCode(t, w))

	w = srv.do(t, http.MethodDelete, "/api/v1/courses/"+course.ID+"/students/"+studentIDs[0], nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/courses/missing/students", map[string]string{"student_id": studentIDs[0]})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "COURSE_NOT_FOUND", errorCode(t, w))

	w = srv.do(t, http.MethodPost, "/api/v1/courses/"+course.ID+"/students", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouterGradeFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	course := &models.Course{Code: "CS101", Name: "Algorithms", Credits: 3, Semester: models.SemesterFall,
		AcademicYear: "2024/2025", MaxStudents: 5, IsActive: true}
	require.NoError(t, srv.store.Courses().Create(ctx, course))
	student := &models.Student{StudentNumber: "S-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@school.test", IsActive: true}
	require.NoError(t, srv.store.Students().Create(ctx, student))
	w := srv.do(t, http.MethodPost, "/api/v1/courses/"+course.ID+"/students", map[string]string{"student_id": student.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = srv.do(t, http.MethodPost, "/api/v1/grades/compute", map[string]interface{}{
		"components": []map[string]interface{}{{"name": "Exam", "score": 92.5, "weight": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview service.GradePreview
	srv.decode(t, w, &preview)
	assert.Equal(t, "A-", *preview.LetterGrade)

	w = srv.do(t, http.MethodPost, "/api/v1/grades", map[string]interface{}{
		"student_id": student.ID, "course_id": course.ID, "semester": "Fall", "academic_year": "2024/2025",
		"components": []map[string]interface{}{{"name": "Homework", "score": 80, "weight": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var record models.GradeRecord
	srv.decode(t, w, &record)
	assert.Equal(t, "B-", *record.LetterGrade)

	w = srv.do(t, http.MethodPost, "/api/v1/grades/"+record.ID+"/components", map[string]interface{}{"name": "Exam", "score": 100, "weight": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	srv.decode(t, w, &record)
	assert.Equal(t, "A-", *record.LetterGrade)

	w = srv.do(t, http.MethodPut, "/api/v1/grades/"+record.ID+"/components/abc", map[string]interface{}{"name": "Exam", "score": 100, "weight": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodDelete, "/api/v1/grades/"+record.ID+"/components/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodPatch, "/api/v1/grades/"+record.ID+"/publish", map[string]bool{"published": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	srv.decode(t, w, &record)
	assert.True(t, record.IsPublished)

	w = srv.do(t, http.MethodGet, "/api/v1/courses/"+course.ID+"/gradebook?semester=Fall&academic_year=2024/2025", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var book models.Gradebook
	srv.decode(t, w, &book)
	require.Len(t, book.Rows, 1)
	assert.True(t, book.Rows[0].IsPublished)

	w = srv.do(t, http.MethodGet, "/api/v1/courses/"+course.ID+"/gradebook/export?semester=Fall&academic_year=2024/2025&format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "gradebook_CS101_fall")
	assert.Contains(t, w.Body.String(), "Ada Lovelace,90.00,90,A-,yes")
}

func TestRouterHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t, map[string]ReadinessCheck{
		"store": func(context.Context) error { return nil },
		"cache": func(context.Context) error { return errors.New("connection refused") },
	})

	w := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = srv.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")

	w = srv.do(t, http.MethodGet, "/api/v1/metrics/summary", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterTeacherAccountScopes(t *testing.T) {
	srv := newTestServer(t, nil)
	adminToken := srv.token

	w := srv.do(t, http.MethodPost, "/api/v1/users", map[string]interface{}{
		"email": "teacher@school.test", "full_name": "Grace Hopper", "role": "TEACHER", "password": "teachpass",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password_hash")

	srv.token = ""
	w = srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "teacher@school.test", "password": "teachpass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login models.LoginResponse
	srv.decode(t, w, &login)
	srv.token = login.AccessToken

	w = srv.do(t, http.MethodGet, "/api/v1/students", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = srv.do(t, http.MethodPost, "/api/v1/courses", map[string]interface{}{"code": "X1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = srv.do(t, http.MethodGet, "/api/v1/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = srv.do(t, http.MethodGet, "/api/v1/dashboard", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	srv.token = adminToken
	w = srv.do(t, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary models.DashboardSummary
	srv.decode(t, w, &summary)
	assert.Equal(t, 1, summary.Teachers)
	assert.Len(t, summary.GradeDistribution, 11)

	w = srv.do(t, http.MethodGet, "/api/v1/users?role=teacher", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []models.User
	srv.decode(t, w, &users)
	require.Len(t, users, 1)
	assert.Equal(t, models.RoleTeacher, users[0].Role)
}

func TestRouterAsyncGradebookExport(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	course := &models.Course{Code: "CS101", Name: "Algorithms", Credits: 3, Semester: models.SemesterFall,
		AcademicYear: "2024/2025", MaxStudents: 5, IsActive: true}
	require.NoError(t, srv.store.Courses().Create(ctx, course))

	w := srv.do(t, http.MethodPost, "/api/v1/courses/"+course.ID+"/gradebook/exports", map[string]string{
		"semester": "Fall", "academic_year": "2024/2025", "format": "pdf",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var job models.ExportJob
	srv.decode(t, w, &job)

	require.Eventually(t, func() bool {
		w = srv.do(t, http.MethodGet, "/api/v1/exports/"+job.ID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		srv.decode(t, w, &job)
		return job.Status == models.ExportJobFinished
	}, 5*time.Second, 10*time.Millisecond)
	require.NotNil(t, job.ResultURL)

	srv.token = ""
	w = srv.do(t, http.MethodGet, *job.ResultURL, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))

	w = srv.do(t, http.MethodGet, "/api/v1/exports/download/forged.token.value.sig", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouterChangePassword(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{"current_password": "nope", "new_password": "rotated-pass"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{"current_password": "changeme"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	w = srv.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{"current_password": "changeme", "new_password": "rotated-pass"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	srv.token = ""
	w = srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "admin@school.test", "password": "changeme"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "admin@school.test", "password": "rotated-pass"})
	assert.Equal(t, http.StatusOK, w.Code)
}
