package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyflow-app/planner-api/internal/dto"
	"github.com/studyflow-app/planner-api/internal/models"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	ListByUser(ctx context.Context, userID string) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

// CourseService manages the caller's course roster.
type CourseService struct {
	courses   courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the service.
func NewCourseService(courses courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, validator: validate, logger: logger}
}

// List returns the user's courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, userID string, query dto.CourseListQuery) ([]models.Course, *models.Pagination, error) {
	filter := models.CourseFilter{
		UserID:    userID,
		Search:    query.Search,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.Sort,
		SortOrder: query.Order,
	}
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one of the caller's courses.
func (s *CourseService) Get(ctx context.Context, userID, courseID string) (*models.Course, error) {
	return s.ownedCourse(ctx, userID, courseID)
}

// Create adds a course to the caller's roster.
func (s *CourseService) Create(ctx context.Context, userID string, req dto.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, appErrors.ErrInvalidCourse
	}

	course := &models.Course{
		UserID:       userID,
		Name:         name,
		Priority:     models.CoursePriority(req.Priority),
		HoursPerWeek: req.HoursPerWeek,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update applies a partial update to one of the caller's courses.
func (s *CourseService) Update(ctx context.Context, userID, courseID string, req dto.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.ownedCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.ErrInvalidCourse
		}
		course.Name = name
	}
	if req.Priority != nil {
		course.Priority = models.CoursePriority(*req.Priority)
	}
	if req.HoursPerWeek != nil {
		course.HoursPerWeek = *req.HoursPerWeek
	}

	if err := s.courses.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes one of the caller's courses.
func (s *CourseService) Delete(ctx context.Context, userID, courseID string) error {
	if _, err := s.ownedCourse(ctx, userID, courseID); err != nil {
		return err
	}
	if err := s.courses.Delete(ctx, courseID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// DemandsForUser converts the stored roster into generation demand entries.
func (s *CourseService) DemandsForUser(ctx context.Context, userID string) ([]dto.CourseDemandRequest, error) {
	courses, err := s.courses.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	demands := make([]dto.CourseDemandRequest, 0, len(courses))
	for _, course := range courses {
		demands = append(demands, dto.CourseDemandRequest{
			Name:         course.Name,
			Priority:     int(course.Priority),
			HoursPerWeek: course.HoursPerWeek,
		})
	}
	return demands, nil
}

func (s *CourseService) ownedCourse(ctx context.Context, userID, courseID string) (*models.Course, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return course, nil
}
