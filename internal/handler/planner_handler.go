package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studyflow-app/planner-api/internal/dto"
	"github.com/studyflow-app/planner-api/internal/models"
	"github.com/studyflow-app/planner-api/internal/service"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
	"github.com/studyflow-app/planner-api/pkg/response"
)

type planGenerator interface {
	Generate(ctx context.Context, userID string, req dto.GeneratePlanRequest) (*dto.GeneratePlanResponse, error)
	Save(ctx context.Context, userID string, req dto.SavePlanRequest) (string, error)
	ListPlans(ctx context.Context, userID string, query dto.PlanQuery) ([]models.StudyPlan, *models.Pagination, error)
	GetPlan(ctx context.Context, userID, planID string) (*models.StudyPlan, error)
	GetSessions(ctx context.Context, userID, planID string) ([]models.StudySession, error)
	Confirm(ctx context.Context, userID, planID string) error
	DeletePlan(ctx context.Context, userID, planID string) error
	EnqueueGeneration(ctx context.Context, userID string, req dto.GeneratePlanRequest) (string, error)
	JobStatus(ctx context.Context, userID, jobID string) (*dto.PlanJobStatus, error)
	SessionsInRange(ctx context.Context, userID string, from, to time.Time) ([]models.StudySession, error)
}

type courseDemandLoader interface {
	DemandsForUser(ctx context.Context, userID string) ([]dto.CourseDemandRequest, error)
}

// PlannerHandler exposes plan generation and persistence endpoints.
type PlannerHandler struct {
	service planGenerator
	roster  courseDemandLoader
}

// NewPlannerHandler constructs the handler.
func NewPlannerHandler(svc *service.PlanGeneratorService, roster *service.CourseService) *PlannerHandler {
	return &PlannerHandler{service: svc, roster: roster}
}

// Generate godoc
// @Summary Generate a study plan proposal
// @Description Builds a schedule from the supplied constraints. Omitted scheduling fields fall back to saved preferences; an empty course list falls back to the stored roster.
// @Tags Planner
// @Accept json
// @Produce json
// @Param payload body dto.GeneratePlanRequest true "Generate plan payload"
// @Success 200 {object} response.Envelope
// @Router /plans/generate [post]
func (h *PlannerHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.bindGenerateRequest(c, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Generate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GenerateAsync godoc
// @Summary Queue a study plan generation job
// @Tags Planner
// @Accept json
// @Produce json
// @Param payload body dto.GeneratePlanRequest true "Generate plan payload"
// @Success 202 {object} response.Envelope
// @Router /plans/generate/async [post]
func (h *PlannerHandler) GenerateAsync(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.bindGenerateRequest(c, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	jobID, err := h.service.EnqueueGeneration(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"jobId": jobID, "status": dto.JobStatusPending}, nil)
}

// JobStatus godoc
// @Summary Poll an asynchronous generation job
// @Tags Planner
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /plans/jobs/{id} [get]
func (h *PlannerHandler) JobStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	status, err := h.service.JobStatus(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Save godoc
// @Summary Save a generated proposal as a study plan
// @Tags Planner
// @Accept json
// @Produce json
// @Param payload body dto.SavePlanRequest true "Save plan payload"
// @Success 201 {object} response.Envelope
// @Router /plans [post]
func (h *PlannerHandler) Save(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SavePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	id, err := h.service.Save(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"planId": id})
}

// List godoc
// @Summary List the caller's study plans
// @Tags Planner
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /plans [get]
func (h *PlannerHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.PlanQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	plans, pagination, err := h.service.ListPlans(c.Request.Context(), claims.UserID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plans, pagination)
}

// Get godoc
// @Summary Get one study plan
// @Tags Planner
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /plans/{id} [get]
func (h *PlannerHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	plan, err := h.service.GetPlan(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Sessions godoc
// @Summary Get the sessions of a study plan
// @Tags Planner
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /plans/{id}/sessions [get]
func (h *PlannerHandler) Sessions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	sessions, err := h.service.GetSessions(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Confirm godoc
// @Summary Promote a draft plan to saved
// @Tags Planner
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /plans/{id}/confirm [post]
func (h *PlannerHandler) Confirm(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Confirm(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"planId": c.Param("id"), "status": models.StudyPlanStatusSaved}, nil)
}

// Delete godoc
// @Summary Delete a draft plan
// @Tags Planner
// @Param id path string true "Plan ID"
// @Success 204
// @Router /plans/{id} [delete]
func (h *PlannerHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeletePlan(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Calendar godoc
// @Summary List the caller's sessions across plans for a date range
// @Description Defaults to the seven days starting today (UTC) when from/to are omitted.
// @Tags Planner
// @Produce json
// @Param from query string false "Range start (YYYY-MM-DD, inclusive)"
// @Param to query string false "Range end (YYYY-MM-DD, exclusive)"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *PlannerHandler) Calendar(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	from, to, err := calendarRange(c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sessions, err := h.service.SessionsInRange(c.Request.Context(), claims.UserID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

func calendarRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if fromRaw != "" {
		parsed, err := time.Parse("2006-01-02", fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "from must use YYYY-MM-DD")
		}
		from = parsed.UTC()
	}
	to := from.AddDate(0, 0, 7)
	if toRaw != "" {
		parsed, err := time.Parse("2006-01-02", toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "to must use YYYY-MM-DD")
		}
		to = parsed.UTC()
	}
	return from, to, nil
}

func (h *PlannerHandler) bindGenerateRequest(c *gin.Context, userID string) (dto.GeneratePlanRequest, error) {
	var req dto.GeneratePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload")
	}
	if len(req.Courses) == 0 && h.roster != nil {
		demands, err := h.roster.DemandsForUser(c.Request.Context(), userID)
		if err != nil {
			return req, err
		}
		if len(demands) == 0 {
			return req, appErrors.Clone(appErrors.ErrValidation, "no courses supplied and the roster is empty")
		}
		req.Courses = demands
	}
	return req, nil
}
