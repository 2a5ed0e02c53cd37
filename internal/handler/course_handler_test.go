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

	"github.com/studyflow-app/planner-api/internal/dto"
	"github.com/studyflow-app/planner-api/internal/models"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
)

type courseManagerMock struct {
	created dto.CreateCourseRequest
	deleted string
}

func (m *courseManagerMock) List(_ context.Context, _ string, _ dto.CourseListQuery) ([]models.Course, *models.Pagination, error) {
	return []models.Course{{ID: "course-1", Name: "Biology"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *courseManagerMock) Get(_ context.Context, _, courseID string) (*models.Course, error) {
	if courseID != "course-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return &models.Course{ID: "course-1", Name: "Biology"}, nil
}

func (m *courseManagerMock) Create(_ context.Context, _ string, req dto.CreateCourseRequest) (*models.Course, error) {
	m.created = req
	return &models.Course{ID: "course-2", Name: req.Name}, nil
}

func (m *courseManagerMock) Update(_ context.Context, _, courseID string, _ dto.UpdateCourseRequest) (*models.Course, error) {
	return &models.Course{ID: courseID, Name: "Updated"}, nil
}

func (m *courseManagerMock) Delete(_ context.Context, _, courseID string) error {
	m.deleted = courseID
	return nil
}

func TestCourseCreateSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &courseManagerMock{}
	handler := &CourseHandler{service: mockSvc}

	w := httptest.NewRecorder()
	c, _ := authedContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/courses", bytes.NewReader([]byte(`{"name":"Chemistry","priority":2,"hoursPerWeek":3}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Chemistry", mockSvc.created.Name)
}

func TestCourseListReturnsEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &CourseHandler{service: &courseManagerMock{}}

	w := httptest.NewRecorder()
	c, _ := authedContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/courses?page=1&limit=20", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data       []models.Course    `json:"data"`
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
}

func TestCourseGetUnknown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &CourseHandler{service: &courseManagerMock{}}

	w := httptest.NewRecorder()
	c, _ := authedContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/courses/course-9", nil)
	c.Params = gin.Params{{Key: "id", Value: "course-9"}}

	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCourseDeletePassesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &courseManagerMock{}
	handler := &CourseHandler{service: mockSvc}

	w := httptest.NewRecorder()
	c, _ := authedContext(w)
	c.Request, _ = http.NewRequest(http.MethodDelete, "/courses/course-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}

	handler.Delete(c)
	// Status-only responses are flushed by the engine after the handler
	// chain; calling the handler directly needs an explicit flush.
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "course-1", mockSvc.deleted)
}

func TestCourseCreateUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &CourseHandler{service: &courseManagerMock{}}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/courses", bytes.NewReader([]byte(`{"name":"Chemistry","priority":2,"hoursPerWeek":3}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
