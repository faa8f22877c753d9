package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"StudentID":    "student_id",
		"Published":    "published",
		"AcademicYear": "academic_year",
		"HTTPStatus":   "http_status",
	}
	for in, want := range cases {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestBindJSONNamesMissingField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bind := func(body string) (*httptest.ResponseRecorder, bool) {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
		var req enrollRequest
		return rec, bindJSON(c, &req, "invalid enrollment payload")
	}

	rec, ok := bind(`{}`)
	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Field   string `json:"field"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "student_id", env.Error.Field)
	assert.Equal(t, "student_id is required", env.Error.Message)

	rec, ok = bind(`{"student_id":`)
	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, ok = bind(`{"student_id":"s-1"}`)
	assert.True(t, ok)
}
