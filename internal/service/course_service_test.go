package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyflow-app/planner-api/internal/dto"
	"github.com/studyflow-app/planner-api/internal/models"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
)

type fakeCourseRepo struct {
	mu      sync.Mutex
	courses map[string]*models.Course
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{courses: make(map[string]*models.Course)}
}

func (r *fakeCourseRepo) List(_ context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Course
	for _, course := range r.courses {
		if course.UserID == filter.UserID {
			out = append(out, *course)
		}
	}
	return out, len(out), nil
}

func (r *fakeCourseRepo) ListByUser(_ context.Context, userID string) ([]models.Course, error) {
	list, _, _ := r.List(context.Background(), models.CourseFilter{UserID: userID})
	return list, nil
}

func (r *fakeCourseRepo) FindByID(_ context.Context, id string) (*models.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	course, ok := r.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	return &copied, nil
}

func (r *fakeCourseRepo) Create(_ context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	copied := *course
	r.courses[course.ID] = &copied
	return nil
}

func (r *fakeCourseRepo) Update(_ context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *course
	r.courses[course.ID] = &copied
	return nil
}

func (r *fakeCourseRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.courses, id)
	return nil
}

func TestCourseServiceCreateAndUpdate(t *testing.T) {
	repo := newFakeCourseRepo()
	svc := NewCourseService(repo, nil, zap.NewNop())

	course, err := svc.Create(context.Background(), "user-1", dto.CreateCourseRequest{
		Name:         "  Biology ",
		Priority:     2,
		HoursPerWeek: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Biology", course.Name)
	assert.Equal(t, models.PriorityMedium, course.Priority)

	newPriority := 3
	updated, err := svc.Update(context.Background(), "user-1", course.ID, dto.UpdateCourseRequest{Priority: &newPriority})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, updated.Priority)
	assert.Equal(t, "Biology", updated.Name)
}

func TestCourseServiceCreateRejectsBadPayloads(t *testing.T) {
	svc := NewCourseService(newFakeCourseRepo(), nil, zap.NewNop())

	_, err := svc.Create(context.Background(), "user-1", dto.CreateCourseRequest{Name: "x", Priority: 0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), "user-1", dto.CreateCourseRequest{Name: "   ", Priority: 2})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCourse.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceHidesForeignCourses(t *testing.T) {
	repo := newFakeCourseRepo()
	svc := NewCourseService(repo, nil, zap.NewNop())

	course, err := svc.Create(context.Background(), "user-1", dto.CreateCourseRequest{Name: "Math", Priority: 3, HoursPerWeek: 2})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "user-2", course.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), "user-2", course.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceDemandsForUser(t *testing.T) {
	repo := newFakeCourseRepo()
	svc := NewCourseService(repo, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), "user-1", dto.CreateCourseRequest{Name: "Math", Priority: 3, HoursPerWeek: 2})
	require.NoError(t, err)

	demands, err := svc.DemandsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, demands, 1)
	assert.Equal(t, "Math", demands[0].Name)
	assert.Equal(t, 3, demands[0].Priority)
	assert.Equal(t, 2.0, demands[0].HoursPerWeek)
}
