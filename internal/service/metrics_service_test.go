package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

func TestMetricsEnrollmentOutcomes(t *testing.T) {
	m := NewMetricsService()

	m.RecordEnrollment(enrollOperation, nil)
	m.RecordEnrollment(enrollOperation, appErrors.Clone(appErrors.ErrCourseFull, "full"))
	m.RecordEnrollment(unenrollOperation, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.enrollmentOutcomes.WithLabelValues("enroll", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enrollmentOutcomes.WithLabelValues("enroll", "COURSE_FULL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enrollmentOutcomes.WithLabelValues("unenroll", "INTERNAL_ERROR")))

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.Enrollments)
	assert.Equal(t, uint64(1), snap.EnrollmentsRejected)
}

func TestMetricsGradeComputations(t *testing.T) {
	m := NewMetricsService()
	letter := "A"
	m.RecordGradeComputation(&letter)
	m.RecordGradeComputation(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.gradeComputations.WithLabelValues("A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gradeComputations.WithLabelValues("undefined")))
}

func TestMetricsHandlerAndSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/courses", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/courses", http.StatusOK, 40*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30.0, snap.AverageRequestDurationMs, 0.001)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.001)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordEnrollment(enrollOperation, nil)
	m.RecordGradeComputation(nil)
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
