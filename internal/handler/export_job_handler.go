package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admin-api/internal/service"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/response"
)

// ExportJobHandler exposes background gradebook export endpoints.
type ExportJobHandler struct {
	exports *service.ExportJobService
}

// NewExportJobHandler constructs ExportJobHandler.
func NewExportJobHandler(exports *service.ExportJobService) *ExportJobHandler {
	return &ExportJobHandler{exports: exports}
}

// Create godoc
// @Summary Queue a gradebook export
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CreateExportJobRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Router /courses/{id}/gradebook/exports [post]
func (h *ExportJobHandler) Create(c *gin.Context) {
	var req service.CreateExportJobRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	job, err := h.exports.CreateJob(c.Request.Context(), c.Param("id"), req, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Export job status
// @Tags Grades
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportJobHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.exports.GetStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished export via its signed link
// @Tags Grades
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *ExportJobHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}
	response.AttachmentStream(c, download.Filename, download.ContentType, info.Size(), download.File)
}
