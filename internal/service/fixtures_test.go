package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

func seedCourse(t *testing.T, store *repository.MemoryStore, code string, maxStudents int, active bool) *models.Course {
	t.Helper()
	course := &models.Course{
		Code:         code,
		Name:         "Course " + code,
		Credits:      3,
		Semester:     models.SemesterFall,
		AcademicYear: "2024/2025",
		MaxStudents:  maxStudents,
		IsActive:     active,
	}
	require.NoError(t, store.Courses().Create(context.Background(), course))
	return course
}

func seedStudent(t *testing.T, store *repository.MemoryStore, number string) *models.Student {
	t.Helper()
	student := &models.Student{
		StudentNumber: number,
		FirstName:     "Student",
		LastName:      number,
		Email:         number + "@school.test",
		DateOfBirth:   time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
	}
	require.NoError(t, store.Students().Create(context.Background(), student))
	return student
}

func requireCode(t *testing.T, err error, expected *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, expected.Code, appErrors.FromError(err).Code, err.Error())
}

// fakeCacheRepo is an in-memory CacheRepository recording evictions.
type fakeCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
	setErr  error
	delErr  error
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{entries: make(map[string][]byte)}
}

func (f *fakeCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = raw
	return nil
}

func (f *fakeCacheRepo) Delete(_ context.Context, keys ...string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.entries, k)
		f.deleted = append(f.deleted, k)
	}
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string][]byte)
	f.deleted = append(f.deleted, pattern)
	return nil
}

func (f *fakeCacheRepo) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[key]
	return ok
}
