package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/schoolware/course-admin-api/internal/models"
	"github.com/schoolware/course-admin-api/internal/service"
	appErrors "github.com/schoolware/course-admin-api/pkg/errors"
	"github.com/schoolware/course-admin-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, filter models.CourseFilter) (*service.CourseList, error)
	Get(ctx context.Context, id string) (*models.CourseDetail, error)
	Create(ctx context.Context, req service.CreateCourseRequest) (*models.Course, error)
	Update(ctx context.Context, id string, req service.UpdateCourseRequest) (*models.Course, error)
	Delete(ctx context.Context, id string) error
	EnrollStudent(ctx context.Context, courseID string, req service.EnrollStudentRequest) (*models.Enrollment, error)
	UnenrollStudent(ctx context.Context, courseID, studentID string) error
	ExportRoster(ctx context.Context, courseID, format string) ([]byte, string, error)
}

// CourseHandler handles course endpoints.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 10)"
// @Param sort query string false "Sort direction on creation time: asc or desc"
// @Param populate query string false "Comma separated associations to expand: students, teachers"
// @Success 200 {object} response.ListEnvelope
// @Security bearerAuth
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		filter.PageSize = limit
	}
	filter.SortOrder = c.DefaultQuery("sort", "asc")
	filter.Include = service.ParseIncludes(c.Query("populate"))

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, result.Meta, result.Data)
}

// Get godoc
// @Summary Get course by id with students and teachers expanded
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} models.CourseDetail
// @Failure 404 {object} map[string]string
// @Security bearerAuth
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} models.Course
// @Security bearerAuth
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course fields
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.UpdateCourseRequest true "Course payload"
// @Success 200 {object} models.Course
// @Failure 404 {object} map[string]string
// @Security bearerAuth
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security bearerAuth
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Deleted")
}

// Enroll godoc
// @Summary Enroll a student into a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.EnrollStudentRequest true "Enrollment payload"
// @Success 201 {object} models.Enrollment
// @Failure 404 {object} map[string]string
// @Security bearerAuth
// @Router /courses/{id}/students [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	var req service.EnrollStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.service.EnrollStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Unenroll godoc
// @Summary Remove a student from a course roster
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security bearerAuth
// @Router /courses/{id}/students/{studentId} [delete]
func (h *CourseHandler) Unenroll(c *gin.Context) {
	if err := h.service.UnenrollStudent(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Unenrolled")
}

// ExportRoster godoc
// @Summary Download the course roster as CSV or PDF
// @Tags Courses
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Security bearerAuth
// @Router /courses/{id}/roster/export [get]
func (h *CourseHandler) ExportRoster(c *gin.Context) {
	payload, contentType, err := h.service.ExportRoster(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	ext := "csv"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="roster-%s.%s"`, filenameSafe(c.Param("id")), ext))
	c.Data(http.StatusOK, contentType, payload)
}

// filenameSafe keeps only characters that are safe inside a quoted
// Content-Disposition filename. Course ids are UUIDs, so anything else in the
// path parameter is dropped rather than escaped.
func filenameSafe(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, id)
}
