package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyflow-app/planner-api/internal/dto"
	"github.com/studyflow-app/planner-api/internal/models"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
)

type fakePlanRepo struct {
	db        *sqlx.DB
	mu        sync.Mutex
	plans     map[string]*models.StudyPlan
	listCalls int
}

func newFakePlanRepo(db *sqlx.DB) *fakePlanRepo {
	return &fakePlanRepo{db: db, plans: make(map[string]*models.StudyPlan)}
}

func (r *fakePlanRepo) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

func (r *fakePlanRepo) CreateWithTx(_ context.Context, _ *sqlx.Tx, plan *models.StudyPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	copied := *plan
	r.plans[plan.ID] = &copied
	return nil
}

func (r *fakePlanRepo) ListByUser(_ context.Context, userID string, _, _ int) ([]models.StudyPlan, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []models.StudyPlan
	for _, plan := range r.plans {
		if plan.UserID == userID {
			out = append(out, *plan)
		}
	}
	return out, len(out), nil
}

func (r *fakePlanRepo) FindByID(_ context.Context, id string) (*models.StudyPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *plan
	return &copied, nil
}

func (r *fakePlanRepo) UpdateStatus(_ context.Context, id string, status models.StudyPlanStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return sql.ErrNoRows
	}
	plan.Status = status
	return nil
}

func (r *fakePlanRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plans, id)
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string][]models.StudySession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string][]models.StudySession)}
}

func (r *fakeSessionRepo) BulkCreateWithTx(_ context.Context, _ *sqlx.Tx, batch []models.StudySession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
		r.sessions[batch[i].PlanID] = append(r.sessions[batch[i].PlanID], batch[i])
	}
	return nil
}

func (r *fakeSessionRepo) ListByPlan(_ context.Context, planID string) ([]models.StudySession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[planID], nil
}

func (r *fakeSessionRepo) ListByUserRange(_ context.Context, userID string, from, to time.Time) ([]models.StudySession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.StudySession
	for _, batch := range r.sessions {
		for _, session := range batch {
			if session.UserID != userID {
				continue
			}
			if session.StartTime.Before(from) || !session.StartTime.Before(to) {
				continue
			}
			out = append(out, session)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) DeleteByPlan(_ context.Context, planID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, planID)
	return nil
}

type fakePrefRepo struct {
	pref *models.StudyPreference
}

func (r *fakePrefRepo) GetByUser(_ context.Context, _ string) (*models.StudyPreference, error) {
	if r.pref == nil {
		return nil, sql.ErrNoRows
	}
	return r.pref, nil
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	raw, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = raw
	c.mu.Unlock()
	return nil
}

func (c *fakeCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	c.mu.Lock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	c.mu.Unlock()
	return nil
}

type generatorFixture struct {
	svc      *PlanGeneratorService
	plans    *fakePlanRepo
	sessions *fakeSessionRepo
	prefs    *fakePrefRepo
	cache    *fakeCache
	mock     sqlmock.Sqlmock
	cleanup  func()
}

func newGeneratorFixture(t *testing.T, cfg PlanGeneratorConfig) *generatorFixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	plans := newFakePlanRepo(sqlxDB)
	sessions := newFakeSessionRepo()
	prefs := &fakePrefRepo{}
	cache := newFakeCache()

	svc := NewPlanGeneratorService(plans, sessions, prefs, cache, nil, nil, zap.NewNop(), cfg)
	return &generatorFixture{
		svc:      svc,
		plans:    plans,
		sessions: sessions,
		prefs:    prefs,
		cache:    cache,
		mock:     mock,
		cleanup:  func() { db.Close() },
	}
}

func generateRequest() dto.GeneratePlanRequest {
	req := baseRequest()
	req.ReferenceDate = "2026-03-02"
	return req
}

func TestGenerateBuildsProposal(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{})
	defer f.cleanup()

	resp, err := f.svc.Generate(context.Background(), "user-1", generateRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ProposalID)
	assert.True(t, resp.Satisfied)
	require.Len(t, resp.Sessions, 3)
	assert.Equal(t, "gen-1", resp.Sessions[0].ID)
	assert.Equal(t, "Biology", resp.Sessions[0].Title)
	assert.Equal(t, "study", resp.Sessions[0].Type)
	assert.Equal(t, monday.Add(16*time.Hour), resp.Sessions[0].StartTime)
}

func TestGenerateFallsBackToSavedPreferences(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{})
	defer f.cleanup()
	f.prefs.pref = &models.StudyPreference{
		UserID:               "user-1",
		StudyDays:            "Mon",
		StartHour:            16,
		EndHour:              18,
		SessionLengthMinutes: 90,
		BreakMinutes:         15,
	}

	req := dto.GeneratePlanRequest{
		Courses:       []dto.CourseDemandRequest{{Name: "Biology", Priority: 2, HoursPerWeek: 2}},
		ReferenceDate: "2026-03-02",
	}
	resp, err := f.svc.Generate(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.True(t, resp.Satisfied)
	assert.Len(t, resp.Sessions, 3)
}

func TestGenerateWithoutDaysAnywhereFails(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{})
	defer f.cleanup()

	req := dto.GeneratePlanRequest{
		Courses: []dto.CourseDemandRequest{{Name: "Biology", Priority: 2, HoursPerWeek: 2}},
	}
	_, err := f.svc.Generate(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoAvailableDays.Code, appErrors.FromError(err).Code)
}

func TestSavePersistsProposalAsDraft(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{})
	defer f.cleanup()

	resp, err := f.svc.Generate(context.Background(), "user-1", generateRequest())
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	planID, err := f.svc.Save(context.Background(), "user-1", dto.SavePlanRequest{ProposalID: resp.ProposalID})
	require.NoError(t, err)
	require.NotEmpty(t, planID)

	stored := f.plans.plans[planID]
	require.NotNil(t, stored)
	assert.Equal(t, models.StudyPlanStatusDraft, stored.Status)
	assert.True(t, stored.Satisfied)
	assert.Len(t, f.sessions.sessions[planID], 3)

	// Proposal is single-use.
	_, err = f.svc.Save(context.Background(), "user-1", dto.SavePlanRequest{ProposalID: resp.ProposalID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSaveRejectsForeignProposal(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{})
	defer f.cleanup()

	resp, err := f.svc.Generate(context.Background(), "user-1", generateRequest())
	require.NoError(t, err)

	_, err = f.svc.Save(context.Background(), "user-2", dto.SavePlanRequest{ProposalID: resp.ProposalID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSaveUnsatisfiedNeedsAcceptPartial(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{MaxWeeks: 1})
	defer f.cleanup()

	req := generateRequest()
	req.Courses = []dto.CourseDemandRequest{{Name: "Biology", Priority: 2, HoursPerWeek: 10}}
	resp, err := f.svc.Generate(context.Background(), "user-1", req)
	require.NoError(t, err)
	require.False(t, resp.Satisfied)
	require.NotEmpty(t, resp.Shortfall)

	_, err = f.svc.Save(context.Background(), "user-1", dto.SavePlanRequest{ProposalID: resp.ProposalID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	planID, err := f.svc.Save(context.Background(), "user-1", dto.SavePlanRequest{ProposalID: resp.ProposalID, AcceptPartial: true})
	require.NoError(t, err)
	assert.False(t, f.plans.plans[planID].Satisfied)
}

func TestListPlansServesSecondCallFromCache(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{})
	defer f.cleanup()
	f.plans.plans["plan-1"] = &models.StudyPlan{ID: "plan-1", UserID: "user-1", Status: models.StudyPlanStatusSaved}

	plans, pagination, err := f.svc.ListPlans(context.Background(), "user-1", dto.PlanQuery{})
	require.NoError(t, err)
	assert.Len(t, plans, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	plans, _, err = f.svc.ListPlans(context.Background(), "user-1", dto.PlanQuery{})
	require.NoError(t, err)
	assert.Len(t, plans, 1)
	assert.Equal(t, 1, f.plans.listCalls)
}

func TestConfirmAndDeleteLifecycle(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{})
	defer f.cleanup()
	f.plans.plans["plan-1"] = &models.StudyPlan{ID: "plan-1", UserID: "user-1", Status: models.StudyPlanStatusDraft}

	require.NoError(t, f.svc.Confirm(context.Background(), "user-1", "plan-1"))
	assert.Equal(t, models.StudyPlanStatusSaved, f.plans.plans["plan-1"].Status)

	err := f.svc.Confirm(context.Background(), "user-1", "plan-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	err = f.svc.DeletePlan(context.Background(), "user-1", "plan-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	err = f.svc.DeletePlan(context.Background(), "user-2", "plan-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeletePlanRemovesSessions(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{})
	defer f.cleanup()
	f.plans.plans["plan-1"] = &models.StudyPlan{ID: "plan-1", UserID: "user-1", Status: models.StudyPlanStatusDraft}
	f.sessions.sessions["plan-1"] = []models.StudySession{{ID: "sess-1", PlanID: "plan-1", UserID: "user-1"}}

	require.NoError(t, f.svc.DeletePlan(context.Background(), "user-1", "plan-1"))
	assert.Nil(t, f.plans.plans["plan-1"])
	assert.Empty(t, f.sessions.sessions["plan-1"])
}

func TestSessionsInRangeFiltersByWindow(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{})
	defer f.cleanup()
	f.sessions.sessions["plan-1"] = []models.StudySession{
		{ID: "sess-1", PlanID: "plan-1", UserID: "user-1", StartTime: monday.Add(16 * time.Hour)},
		{ID: "sess-2", PlanID: "plan-1", UserID: "user-1", StartTime: monday.AddDate(0, 0, 7).Add(16 * time.Hour)},
		{ID: "sess-3", PlanID: "plan-2", UserID: "user-2", StartTime: monday.Add(17 * time.Hour)},
	}

	sessions, err := f.svc.SessionsInRange(context.Background(), "user-1", monday, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].ID)

	_, err = f.svc.SessionsInRange(context.Background(), "user-1", monday, monday)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAsyncGenerationLifecycle(t *testing.T) {
	f := newGeneratorFixture(t, PlanGeneratorConfig{JobWorkers: 1})
	defer f.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartWorkers(ctx)
	defer f.svc.StopWorkers()

	jobID, err := f.svc.EnqueueGeneration(ctx, "user-1", generateRequest())
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		status, err := f.svc.JobStatus(ctx, "user-1", jobID)
		return err == nil && status.Status == dto.JobStatusDone
	}, 2*time.Second, 10*time.Millisecond)

	status, err := f.svc.JobStatus(ctx, "user-1", jobID)
	require.NoError(t, err)
	require.NotNil(t, status.Result)
	assert.Len(t, status.Result.Sessions, 3)

	// Another user cannot read the job.
	_, err = f.svc.JobStatus(ctx, "user-2", jobID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
