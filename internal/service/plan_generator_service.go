package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/studyflow-app/planner-api/internal/dto"
	"github.com/studyflow-app/planner-api/internal/models"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
	"github.com/studyflow-app/planner-api/pkg/jobs"
)

type planRepository interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, plan *models.StudyPlan) error
	ListByUser(ctx context.Context, userID string, page, size int) ([]models.StudyPlan, int, error)
	FindByID(ctx context.Context, id string) (*models.StudyPlan, error)
	UpdateStatus(ctx context.Context, id string, status models.StudyPlanStatus) error
	Delete(ctx context.Context, id string) error
}

type sessionRepository interface {
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, sessions []models.StudySession) error
	ListByPlan(ctx context.Context, planID string) ([]models.StudySession, error)
	ListByUserRange(ctx context.Context, userID string, from, to time.Time) ([]models.StudySession, error)
	DeleteByPlan(ctx context.Context, planID string) error
}

type preferenceFetcher interface {
	GetByUser(ctx context.Context, userID string) (*models.StudyPreference, error)
}

type planCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type generationObserver interface {
	ObservePlanGeneration(duration time.Duration, sessions int, satisfied bool)
	RecordCacheOperation(hit bool, duration time.Duration)
}

// PlanGeneratorService builds study plan proposals and persists accepted ones.
type PlanGeneratorService struct {
	plans     planRepository
	sessions  sessionRepository
	prefs     preferenceFetcher
	cache     planCache
	observer  generationObserver
	validator *validator.Validate
	logger    *zap.Logger
	store     *proposalStore
	queue     *jobs.Queue
	cfg       PlanGeneratorConfig
}

// PlanGeneratorConfig governs generator behaviour.
type PlanGeneratorConfig struct {
	ProposalTTL  time.Duration
	MaxWeeks     int
	JobTTL       time.Duration
	JobWorkers   int
	JobQueueSize int
	ListCacheTTL time.Duration
}

// NewPlanGeneratorService wires planner dependencies.
func NewPlanGeneratorService(
	plans planRepository,
	sessions sessionRepository,
	prefs preferenceFetcher,
	cache planCache,
	observer generationObserver,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg PlanGeneratorConfig,
) *PlanGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.MaxWeeks <= 0 {
		cfg.MaxWeeks = defaultMaxWeeks
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.ListCacheTTL <= 0 {
		cfg.ListCacheTTL = 5 * time.Minute
	}

	s := &PlanGeneratorService{
		plans:     plans,
		sessions:  sessions,
		prefs:     prefs,
		cache:     cache,
		observer:  observer,
		validator: validate,
		logger:    logger,
		store:     newProposalStore(cfg.ProposalTTL),
		cfg:       cfg,
	}
	s.queue = jobs.NewQueue("plan-generation", s.handleGenerationJob, jobs.QueueConfig{
		Workers:    cfg.JobWorkers,
		BufferSize: cfg.JobQueueSize,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// StartWorkers launches the asynchronous generation workers.
func (s *PlanGeneratorService) StartWorkers(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopWorkers drains the asynchronous generation workers.
func (s *PlanGeneratorService) StopWorkers() {
	s.queue.Stop()
}

// Generate runs the allocation pipeline and caches the resulting proposal.
// Scheduling fields omitted from the request fall back to the caller's saved
// preferences.
func (s *PlanGeneratorService) Generate(ctx context.Context, userID string, req dto.GeneratePlanRequest) (*dto.GeneratePlanResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan generation payload")
	}
	if err := s.applySavedPreferences(ctx, userID, &req); err != nil {
		return nil, err
	}

	reference, err := parseReferenceDate(req.ReferenceDate)
	if err != nil {
		return nil, err
	}
	prefs, demands, err := normalizePlanRequest(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := buildPlan(ctx, prefs, demands, reference, s.cfg.MaxWeeks)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "plan generation interrupted")
	}
	if s.observer != nil {
		s.observer.ObservePlanGeneration(time.Since(started), len(result.sessions), result.satisfied())
	}

	proposal := planProposal{
		ProposalID:    uuid.NewString(),
		UserID:        userID,
		ReferenceDate: reference,
		Satisfied:     result.satisfied(),
		Sessions:      materializeSessions(result.sessions),
		Shortfall:     result.shortfall,
		Stats:         result.stats,
		RequestedAt:   time.Now().UTC(),
	}
	s.store.Save(proposal)

	s.logger.Sugar().Infow("plan generated",
		"user_id", userID,
		"proposal_id", proposal.ProposalID,
		"sessions", len(proposal.Sessions),
		"satisfied", proposal.Satisfied,
	)

	return &dto.GeneratePlanResponse{
		ProposalID: proposal.ProposalID,
		Satisfied:  proposal.Satisfied,
		Sessions:   proposal.Sessions,
		Shortfall:  proposal.Shortfall,
		Stats:      proposal.Stats,
	}, nil
}

// Save persists a cached proposal as a draft study plan with its sessions.
func (s *PlanGeneratorService) Save(ctx context.Context, userID string, req dto.SavePlanRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save plan payload")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok || proposal.UserID != userID {
		return "", appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if !proposal.Satisfied && !req.AcceptPartial {
		return "", appErrors.Clone(appErrors.ErrConflict, "proposal leaves demand unmet; set acceptPartial to save anyway")
	}

	tx, err := s.plans.BeginTx(ctx)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	metaPayload := map[string]any{
		"stats":     proposal.Stats,
		"shortfall": proposal.Shortfall,
		"generated": proposal.RequestedAt,
		"algorithm": "greedy_priority_v1",
	}
	metaBytes, marshalErr := json.Marshal(metaPayload)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode plan metadata")
		return "", err
	}

	record := &models.StudyPlan{
		UserID:        userID,
		Status:        models.StudyPlanStatusDraft,
		ReferenceDate: proposal.ReferenceDate,
		Satisfied:     proposal.Satisfied,
		Meta:          types.JSONText(metaBytes),
	}
	if err = s.plans.CreateWithTx(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create study plan")
		return "", err
	}

	batch := make([]models.StudySession, 0, len(proposal.Sessions))
	for _, session := range proposal.Sessions {
		batch = append(batch, models.StudySession{
			PlanID:          record.ID,
			UserID:          userID,
			CourseName:      session.Title,
			StartTime:       session.StartTime,
			EndTime:         session.EndTime,
			DurationMinutes: int(session.EndTime.Sub(session.StartTime) / time.Minute),
			Kind:            session.Type,
		})
	}
	if err = s.sessions.BulkCreateWithTx(ctx, tx, batch); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist study sessions")
		return "", err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit plan transaction")
		return "", err
	}

	s.store.Delete(req.ProposalID)
	s.invalidatePlanCache(ctx, userID)
	return record.ID, nil
}

// ListPlans returns plan summaries for a user, served from cache when warm.
func (s *PlanGeneratorService) ListPlans(ctx context.Context, userID string, query dto.PlanQuery) ([]models.StudyPlan, *models.Pagination, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	key := fmt.Sprintf("plans:%s:%d:%d", userID, page, size)
	var cached cachedPlanList
	if s.cache != nil {
		started := time.Now()
		err := s.cache.Get(ctx, key, &cached)
		if s.observer != nil {
			s.observer.RecordCacheOperation(err == nil, time.Since(started))
		}
		if err == nil {
			return cached.Items, &models.Pagination{Page: page, PageSize: size, TotalCount: cached.Total}, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Warnw("plan list cache read failed", "error", err)
		}
	}

	plans, total, err := s.plans.ListByUser(ctx, userID, page, size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list study plans")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedPlanList{Items: plans, Total: total}, s.cfg.ListCacheTTL); err != nil {
			s.logger.Sugar().Warnw("plan list cache write failed", "error", err)
		}
	}

	return plans, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetSessions returns the stored sessions of one of the caller's plans.
func (s *PlanGeneratorService) GetSessions(ctx context.Context, userID, planID string) ([]models.StudySession, error) {
	plan, err := s.ownedPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan sessions")
	}
	return sessions, nil
}

// GetPlan returns one of the caller's plans.
func (s *PlanGeneratorService) GetPlan(ctx context.Context, userID, planID string) (*models.StudyPlan, error) {
	return s.ownedPlan(ctx, userID, planID)
}

// SessionsInRange returns the caller's sessions starting in [from, to),
// across all plans. Used by the calendar view.
func (s *PlanGeneratorService) SessionsInRange(ctx context.Context, userID string, from, to time.Time) ([]models.StudySession, error) {
	if !to.After(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end must be after range start")
	}
	sessions, err := s.sessions.ListByUserRange(ctx, userID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions in range")
	}
	return sessions, nil
}

// Confirm promotes a draft plan to the saved status.
func (s *PlanGeneratorService) Confirm(ctx context.Context, userID, planID string) error {
	plan, err := s.ownedPlan(ctx, userID, planID)
	if err != nil {
		return err
	}
	if plan.Status != models.StudyPlanStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft plans can be confirmed")
	}
	if err := s.plans.UpdateStatus(ctx, plan.ID, models.StudyPlanStatusSaved); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update plan status")
	}
	s.invalidatePlanCache(ctx, userID)
	return nil
}

// DeletePlan removes a draft plan and its sessions.
func (s *PlanGeneratorService) DeletePlan(ctx context.Context, userID, planID string) error {
	plan, err := s.ownedPlan(ctx, userID, planID)
	if err != nil {
		return err
	}
	if plan.Status != models.StudyPlanStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft plans can be deleted")
	}
	if err := s.sessions.DeleteByPlan(ctx, plan.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete plan sessions")
	}
	if err := s.plans.Delete(ctx, plan.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete study plan")
	}
	s.invalidatePlanCache(ctx, userID)
	return nil
}

// EnqueueGeneration submits an asynchronous generation request and returns
// its job id.
func (s *PlanGeneratorService) EnqueueGeneration(ctx context.Context, userID string, req dto.GeneratePlanRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan generation payload")
	}
	if s.cache == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "job store unavailable")
	}

	jobID := uuid.NewString()
	status := dto.PlanJobStatus{
		JobID:       jobID,
		UserID:      userID,
		Status:      dto.JobStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.setJobStatus(ctx, status); err != nil {
		return "", err
	}

	err := s.queue.Enqueue(jobs.Job{
		ID:      jobID,
		Type:    "generate-plan",
		Payload: planJobPayload{JobID: jobID, UserID: userID, Request: req},
	})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}
	return jobID, nil
}

// JobStatus reports progress of an asynchronous generation request.
func (s *PlanGeneratorService) JobStatus(ctx context.Context, userID, jobID string) (*dto.PlanJobStatus, error) {
	if s.cache == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "job store unavailable")
	}
	var status dto.PlanJobStatus
	if err := s.cache.Get(ctx, jobKey(jobID), &status); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read job status")
	}
	if status.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found or expired")
	}
	return &status, nil
}

func (s *PlanGeneratorService) handleGenerationJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(planJobPayload)
	if !ok {
		s.logger.Sugar().Errorw("unexpected job payload", "job_id", job.ID, "type", job.Type)
		return nil
	}

	status := dto.PlanJobStatus{JobID: payload.JobID, UserID: payload.UserID, RequestedAt: time.Now().UTC()}
	result, err := s.Generate(ctx, payload.UserID, payload.Request)
	if err != nil {
		// Generation failures are terminal; the caller reads the error
		// from job status instead of the queue retrying.
		status.Status = dto.JobStatusFailed
		status.Error = err.Error()
	} else {
		status.Status = dto.JobStatusDone
		status.Result = result
	}
	if storeErr := s.setJobStatus(ctx, status); storeErr != nil {
		s.logger.Sugar().Errorw("failed to record job status", "job_id", payload.JobID, "error", storeErr)
	}
	return nil
}

func (s *PlanGeneratorService) setJobStatus(ctx context.Context, status dto.PlanJobStatus) error {
	if err := s.cache.Set(ctx, jobKey(status.JobID), status, s.cfg.JobTTL); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store job status")
	}
	return nil
}

func (s *PlanGeneratorService) ownedPlan(ctx context.Context, userID, planID string) (*models.StudyPlan, error) {
	if planID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "plan id is required")
	}
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "study plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study plan")
	}
	if plan.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "study plan not found")
	}
	return plan, nil
}

// applySavedPreferences fills scheduling fields the caller omitted from the
// user's stored defaults.
func (s *PlanGeneratorService) applySavedPreferences(ctx context.Context, userID string, req *dto.GeneratePlanRequest) error {
	if len(req.StudyDays) > 0 && req.StudyHours != nil && req.SessionLength > 0 {
		return nil
	}
	if s.prefs == nil {
		return nil
	}

	pref, err := s.prefs.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study preferences")
	}

	if len(req.StudyDays) == 0 && pref.StudyDays != "" {
		req.StudyDays = splitDays(pref.StudyDays)
	}
	if req.StudyHours == nil {
		req.StudyHours = &dto.StudyWindow{Start: pref.StartHour, End: pref.EndHour}
	}
	if req.SessionLength == 0 {
		req.SessionLength = pref.SessionLengthMinutes
	}
	if req.Breaks == 0 {
		req.Breaks = pref.BreakMinutes
	}
	return nil
}

func (s *PlanGeneratorService) invalidatePlanCache(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "plans:"+userID+":*"); err != nil {
		s.logger.Sugar().Warnw("plan cache invalidation failed", "user_id", userID, "error", err)
	}
}

func splitDays(raw string) []string {
	parts := strings.Split(raw, ",")
	days := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			days = append(days, trimmed)
		}
	}
	return days
}

func jobKey(jobID string) string {
	return "plan-jobs:" + jobID
}

type planJobPayload struct {
	JobID   string
	UserID  string
	Request dto.GeneratePlanRequest
}

type cachedPlanList struct {
	Items []models.StudyPlan `json:"items"`
	Total int                `json:"total"`
}

// --- Proposal cache ---

type planProposal struct {
	ProposalID    string
	UserID        string
	ReferenceDate time.Time
	Satisfied     bool
	Sessions      []dto.SessionResponse
	Shortfall     []dto.CourseShortfall
	Stats         dto.PlanStats
	RequestedAt   time.Time
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]planProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]planProposal),
	}
}

func (s *proposalStore) Save(proposal planProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalStore) Get(id string) (planProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return planProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return planProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
