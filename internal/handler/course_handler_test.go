package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolware/course-admin-api/internal/models"
	"github.com/schoolware/course-admin-api/internal/service"
	appErrors "github.com/schoolware/course-admin-api/pkg/errors"
)

type courseServiceMock struct {
	listResp   *service.CourseList
	listErr    error
	getResp    *models.CourseDetail
	getErr     error
	createResp *models.Course
	createErr  error
	updateResp *models.Course
	updateErr  error
	deleteErr  error
	lastFilter models.CourseFilter
	lastCreate service.CreateCourseRequest
	listCalled bool
}

func (m *courseServiceMock) List(ctx context.Context, filter models.CourseFilter) (*service.CourseList, error) {
	m.listCalled = true
	m.lastFilter = filter
	if m.listResp == nil {
		m.listResp = &service.CourseList{Data: []models.CourseDetail{}}
	}
	return m.listResp, m.listErr
}

func (m *courseServiceMock) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	return m.getResp, m.getErr
}

func (m *courseServiceMock) Create(ctx context.Context, req service.CreateCourseRequest) (*models.Course, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *courseServiceMock) Update(ctx context.Context, id string, req service.UpdateCourseRequest) (*models.Course, error) {
	return m.updateResp, m.updateErr
}

func (m *courseServiceMock) Delete(ctx context.Context, id string) error {
	return m.deleteErr
}

func (m *courseServiceMock) EnrollStudent(ctx context.Context, courseID string, req service.EnrollStudentRequest) (*models.Enrollment, error) {
	return &models.Enrollment{CourseID: courseID, StudentID: req.StudentID}, nil
}

func (m *courseServiceMock) UnenrollStudent(ctx context.Context, courseID, studentID string) error {
	return nil
}

func (m *courseServiceMock) ExportRoster(ctx context.Context, courseID, format string) ([]byte, string, error) {
	return []byte("Student ID,Name,Email\n"), "text/csv", nil
}

func newTestContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	return c, w
}

func TestCourseHandlerListParsesQuery(t *testing.T) {
	mockSvc := &courseServiceMock{
		listResp: &service.CourseList{
			Meta: models.ListMeta{TotalItems: 1, Page: 2, TotalPages: 1},
			Data: []models.CourseDetail{{Course: models.Course{ID: "c1", Title: "Algebra"}}},
		},
	}
	handler := NewCourseHandler(mockSvc)

	c, w := newTestContext(t, http.MethodGet, "/courses?page=2&limit=5&sort=desc&populate=students,bogus", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.listCalled)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 5, mockSvc.lastFilter.PageSize)
	assert.Equal(t, "desc", mockSvc.lastFilter.SortOrder)
	assert.True(t, mockSvc.lastFilter.Include.Students)
	assert.False(t, mockSvc.lastFilter.Include.Teachers)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "meta")
	assert.Contains(t, body, "data")
}

func TestCourseHandlerListNonNumericPageDefaults(t *testing.T) {
	mockSvc := &courseServiceMock{}
	handler := NewCourseHandler(mockSvc)

	c, w := newTestContext(t, http.MethodGet, "/courses?page=abc&limit=xyz", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.listCalled)
	// Unparseable values fall through to the service's defaults.
	assert.Equal(t, 0, mockSvc.lastFilter.Page)
	assert.Equal(t, 0, mockSvc.lastFilter.PageSize)
}

func TestCourseHandlerGetNotFound(t *testing.T) {
	mockSvc := &courseServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "")}
	handler := NewCourseHandler(mockSvc)

	c, w := newTestContext(t, http.MethodGet, "/courses/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Not Found", body["message"])
}

func TestCourseHandlerCreate(t *testing.T) {
	mockSvc := &courseServiceMock{
		createResp: &models.Course{ID: "c1", Title: "Algebra", Description: "Intro", TeacherID: "t1"},
	}
	handler := NewCourseHandler(mockSvc)

	payload, _ := json.Marshal(service.CreateCourseRequest{Title: "Algebra", Description: "Intro", TeacherID: "t1"})
	c, w := newTestContext(t, http.MethodPost, "/courses", payload)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Algebra", mockSvc.lastCreate.Title)

	var body models.Course
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Algebra", body.Title)
	assert.Equal(t, "c1", body.ID)
}

func TestCourseHandlerCreateInvalidBody(t *testing.T) {
	handler := NewCourseHandler(&courseServiceMock{})

	c, w := newTestContext(t, http.MethodPost, "/courses", []byte(`{"title":"Algebra"`))
	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "error")
}

func TestCourseHandlerCreateServiceError(t *testing.T) {
	mockSvc := &courseServiceMock{createErr: appErrors.New(appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")}
	handler := NewCourseHandler(mockSvc)

	payload, _ := json.Marshal(service.CreateCourseRequest{Title: "Algebra", Description: "Intro", TeacherID: "t1"})
	c, w := newTestContext(t, http.MethodPost, "/courses", payload)
	handler.Create(c)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "failed to create course", body["error"])
}

func TestCourseHandlerUpdate(t *testing.T) {
	mockSvc := &courseServiceMock{
		updateResp: &models.Course{ID: "c1", Title: "Algebra II"},
	}
	handler := NewCourseHandler(mockSvc)

	c, w := newTestContext(t, http.MethodPut, "/courses/c1", []byte(`{"title":"Algebra II"}`))
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body models.Course
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Algebra II", body.Title)
}

func TestCourseHandlerDelete(t *testing.T) {
	handler := NewCourseHandler(&courseServiceMock{})

	c, w := newTestContext(t, http.MethodDelete, "/courses/c1", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Delete(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Deleted", body["message"])
}

func TestCourseHandlerExportRoster(t *testing.T) {
	handler := NewCourseHandler(&courseServiceMock{})

	c, w := newTestContext(t, http.MethodGet, "/courses/c1/roster/export?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.ExportRoster(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "roster-c1.csv")
}

func TestCourseHandlerExportRosterSanitizesFilename(t *testing.T) {
	handler := NewCourseHandler(&courseServiceMock{})

	c, w := newTestContext(t, http.MethodGet, "/courses/x/roster/export", nil)
	c.Params = gin.Params{{Key: "id", Value: `c1"; rm -rf`}}
	handler.ExportRoster(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="roster-c1rm-rf.csv"`, w.Header().Get("Content-Disposition"))
}
