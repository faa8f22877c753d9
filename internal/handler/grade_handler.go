package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/service"
	"github.com/noah-isme/course-admin-api/pkg/response"
)

type publishRequest struct {
	Published *bool `json:"published" binding:"required"`
}

// GradeHandler exposes grade records and gradebooks.
type GradeHandler struct {
	grades  *service.GradeService
	exports *service.ExportService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService, exports *service.ExportService) *GradeHandler {
	return &GradeHandler{grades: grades, exports: exports}
}

// Compute godoc
// @Summary Preview a final grade
// @Description Computes the weighted final score and letter without storing anything
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.ComputeGradeRequest true "Components"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /grades/compute [post]
func (h *GradeHandler) Compute(c *gin.Context) {
	var req service.ComputeGradeRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	preview, err := h.grades.Compute(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// List godoc
// @Summary List grade records
// @Tags Grades
// @Produce json
// @Param student_id query string false "Student"
// @Param course_id query string false "Course"
// @Param semester query string false "Semester"
// @Param academic_year query string false "Academic year"
// @Param published query bool false "Published state"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	filter := models.GradeRecordFilter{
		StudentID:    c.Query("student_id"),
		CourseID:     c.Query("course_id"),
		Semester:     models.Semester(c.Query("semester")),
		AcademicYear: c.Query("academic_year"),
		Published:    queryBool(c, "published"),
	}
	records, err := h.grades.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Get godoc
// @Summary Get grade record
// @Tags Grades
// @Produce json
// @Param id path string true "Grade record ID"
// @Success 200 {object} response.Envelope
// @Router /grades/{id} [get]
func (h *GradeHandler) Get(c *gin.Context) {
	record, err := h.grades.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Create grade record
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.CreateGradeRecordRequest true "Grade record"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Create(c *gin.Context) {
	var req service.CreateGradeRecordRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	record, err := h.grades.Create(c.Request.Context(), req, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// AddComponent godoc
// @Summary Append a component
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade record ID"
// @Param payload body service.ComponentRequest true "Component"
// @Success 200 {object} response.Envelope
// @Router /grades/{id}/components [post]
func (h *GradeHandler) AddComponent(c *gin.Context) {
	var req service.ComponentRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	record, err := h.grades.AddComponent(c.Request.Context(), c.Param("id"), req, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// UpdateComponent godoc
// @Summary Replace a component
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade record ID"
// @Param index path int true "Component position"
// @Param payload body service.ComponentRequest true "Component"
// @Success 200 {object} response.Envelope
// @Router /grades/{id}/components/{index} [put]
func (h *GradeHandler) UpdateComponent(c *gin.Context) {
	index, err := indexParam(c, "index")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.ComponentRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	record, err := h.grades.UpdateComponent(c.Request.Context(), c.Param("id"), index, req, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// RemoveComponent godoc
// @Summary Remove a component
// @Tags Grades
// @Produce json
// @Param id path string true "Grade record ID"
// @Param index path int true "Component position"
// @Success 200 {object} response.Envelope
// @Router /grades/{id}/components/{index} [delete]
func (h *GradeHandler) RemoveComponent(c *gin.Context) {
	index, err := indexParam(c, "index")
	if err != nil {
		response.Error(c, err)
		return
	}
	record, err := h.grades.RemoveComponent(c.Request.Context(), c.Param("id"), index, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Publish godoc
// @Summary Publish or hide a grade record
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade record ID"
// @Param payload body handler.publishRequest true "Publish flag"
// @Success 200 {object} response.Envelope
// @Router /grades/{id}/publish [patch]
func (h *GradeHandler) Publish(c *gin.Context) {
	var req publishRequest
	if !bindJSON(c, &req, "published is required") {
		return
	}
	record, err := h.grades.Publish(c.Request.Context(), c.Param("id"), *req.Published)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete grade record
// @Tags Grades
// @Param id path string true "Grade record ID"
// @Success 204
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	if err := h.grades.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Gradebook godoc
// @Summary Course gradebook
// @Tags Grades
// @Produce json
// @Param id path string true "Course ID"
// @Param semester query string true "Semester"
// @Param academic_year query string true "Academic year"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/gradebook [get]
func (h *GradeHandler) Gradebook(c *gin.Context) {
	book, err := h.grades.Gradebook(c.Request.Context(), c.Param("id"), models.Semester(c.Query("semester")), c.Query("academic_year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// ExportGradebook godoc
// @Summary Download course gradebook
// @Tags Grades
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param semester query string true "Semester"
// @Param academic_year query string true "Academic year"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /courses/{id}/gradebook/export [get]
func (h *GradeHandler) ExportGradebook(c *gin.Context) {
	result, err := h.exports.ExportGradebook(c.Request.Context(), c.Param("id"), models.Semester(c.Query("semester")),
		c.Query("academic_year"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}
