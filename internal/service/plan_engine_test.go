package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyflow-app/planner-api/internal/dto"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
)

// monday is a fixed Monday used to make generated dates deterministic.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func baseRequest() dto.GeneratePlanRequest {
	return dto.GeneratePlanRequest{
		StudyDays:     []string{"Mon"},
		StudyHours:    &dto.StudyWindow{Start: 16, End: 18},
		SessionLength: 90,
		Breaks:        15,
		Courses: []dto.CourseDemandRequest{
			{Name: "Biology", Priority: 2, HoursPerWeek: 2},
		},
	}
}

func TestNormalizePlanRequestDedupesDaysAndSortsByPriority(t *testing.T) {
	req := baseRequest()
	req.StudyDays = []string{"Mon", "Wed", "Mon"}
	req.Courses = []dto.CourseDemandRequest{
		{Name: "History", Priority: 1, HoursPerWeek: 1},
		{Name: "Math", Priority: 3, HoursPerWeek: 2},
		{Name: "Biology", Priority: 3, HoursPerWeek: 1},
	}

	prefs, demands, err := normalizePlanRequest(req)
	require.NoError(t, err)

	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, prefs.days)
	require.Len(t, demands, 3)
	// Equal priorities keep request order.
	assert.Equal(t, "Math", demands[0].name)
	assert.Equal(t, "Biology", demands[1].name)
	assert.Equal(t, "History", demands[2].name)
	assert.Equal(t, 120, demands[0].target)
}

func TestNormalizePlanRequestRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*dto.GeneratePlanRequest)
		want   string
	}{
		{"no days", func(r *dto.GeneratePlanRequest) { r.StudyDays = nil }, appErrors.ErrNoAvailableDays.Code},
		{"unknown day", func(r *dto.GeneratePlanRequest) { r.StudyDays = []string{"Funday"} }, appErrors.ErrValidation.Code},
		{"missing window", func(r *dto.GeneratePlanRequest) { r.StudyHours = nil }, appErrors.ErrInvalidWindow.Code},
		{"inverted window", func(r *dto.GeneratePlanRequest) { r.StudyHours = &dto.StudyWindow{Start: 18, End: 16} }, appErrors.ErrInvalidWindow.Code},
		{"zero session length", func(r *dto.GeneratePlanRequest) { r.SessionLength = 0 }, appErrors.ErrValidation.Code},
		{"negative breaks", func(r *dto.GeneratePlanRequest) { r.Breaks = -5 }, appErrors.ErrValidation.Code},
		{"blank course", func(r *dto.GeneratePlanRequest) { r.Courses[0].Name = "  " }, appErrors.ErrInvalidCourse.Code},
		{"bad priority", func(r *dto.GeneratePlanRequest) { r.Courses[0].Priority = 9 }, appErrors.ErrValidation.Code},
		{"negative hours", func(r *dto.GeneratePlanRequest) { r.Courses[0].HoursPerWeek = -1 }, appErrors.ErrValidation.Code},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := baseRequest()
			tc.mutate(&req)
			_, _, err := normalizePlanRequest(req)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, tc.want, appErr.Code)
		})
	}
}

func TestNextOccurrence(t *testing.T) {
	assert.Equal(t, monday, nextOccurrence(monday, time.Monday))
	assert.Equal(t, monday.AddDate(0, 0, 2), nextOccurrence(monday, time.Wednesday))
	// Sunday wraps to the end of the week starting Monday.
	assert.Equal(t, monday.AddDate(0, 0, 6), nextOccurrence(monday, time.Sunday))
}

func TestBuildPlanSplitsAroundBreaksAndWindowEnd(t *testing.T) {
	req := baseRequest()
	prefs, demands, err := normalizePlanRequest(req)
	require.NoError(t, err)

	result, err := buildPlan(context.Background(), prefs, demands, monday, 0)
	require.NoError(t, err)
	require.True(t, result.satisfied())
	require.Len(t, result.sessions, 3)

	// Monday 16:00-17:30 full session, 15 min break, then a 15 min
	// remainder capped by the 18:00 window end.
	assert.Equal(t, monday.Add(16*time.Hour), result.sessions[0].start)
	assert.Equal(t, 90, result.sessions[0].minutes)
	assert.Equal(t, monday.Add(17*time.Hour+45*time.Minute), result.sessions[1].start)
	assert.Equal(t, 15, result.sessions[1].minutes)

	// Leftover 15 minutes land on the following Monday.
	assert.Equal(t, monday.AddDate(0, 0, 7).Add(16*time.Hour), result.sessions[2].start)
	assert.Equal(t, 15, result.sessions[2].minutes)

	assert.Equal(t, 120, result.stats.TotalMinutes)
	assert.Equal(t, 2, result.stats.DaysUsed)
	assert.Equal(t, 2, result.stats.WeeksSpanned)
}

func TestBuildPlanDrainsHigherPriorityFirst(t *testing.T) {
	req := baseRequest()
	req.StudyDays = []string{"Mon", "Tue"}
	req.StudyHours = &dto.StudyWindow{Start: 9, End: 12}
	req.SessionLength = 60
	req.Breaks = 0
	req.Courses = []dto.CourseDemandRequest{
		{Name: "History", Priority: 1, HoursPerWeek: 2},
		{Name: "Math", Priority: 3, HoursPerWeek: 3},
	}
	prefs, demands, err := normalizePlanRequest(req)
	require.NoError(t, err)

	result, err := buildPlan(context.Background(), prefs, demands, monday, 0)
	require.NoError(t, err)
	require.True(t, result.satisfied())
	require.Len(t, result.sessions, 5)

	// Math fills all of Monday's three slots before History gets any time.
	for i := 0; i < 3; i++ {
		assert.Equal(t, "Math", result.sessions[i].course)
	}
	assert.Equal(t, "History", result.sessions[3].course)
	assert.Equal(t, "History", result.sessions[4].course)
	assert.Equal(t, monday.AddDate(0, 0, 1).Add(9*time.Hour), result.sessions[3].start)
}

func TestBuildPlanSessionsNeverOverlapOrLeaveWindow(t *testing.T) {
	req := baseRequest()
	req.StudyDays = []string{"Mon", "Wed", "Fri"}
	req.StudyHours = &dto.StudyWindow{Start: 8, End: 13}
	req.SessionLength = 45
	req.Breaks = 10
	req.Courses = []dto.CourseDemandRequest{
		{Name: "Math", Priority: 3, HoursPerWeek: 5},
		{Name: "Biology", Priority: 2, HoursPerWeek: 4},
		{Name: "History", Priority: 1, HoursPerWeek: 3.5},
	}
	prefs, demands, err := normalizePlanRequest(req)
	require.NoError(t, err)

	result, err := buildPlan(context.Background(), prefs, demands, monday, 0)
	require.NoError(t, err)
	require.True(t, result.satisfied())

	sessions := make([]plannedSession, len(result.sessions))
	copy(sessions, result.sessions)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].start.Before(sessions[j].start) })

	total := 0
	for i, session := range sessions {
		end := session.start.Add(time.Duration(session.minutes) * time.Minute)
		dayStart := session.start.Truncate(24 * time.Hour)
		assert.False(t, session.start.Before(dayStart.Add(8*time.Hour)), "session starts before window")
		assert.False(t, end.After(dayStart.Add(13*time.Hour)), "session ends after window")
		if i > 0 {
			prevEnd := sessions[i-1].start.Add(time.Duration(sessions[i-1].minutes) * time.Minute)
			assert.False(t, session.start.Before(prevEnd), "sessions overlap")
		}
		total += session.minutes
	}
	assert.Equal(t, 750, total) // 12.5 hours of demand
	assert.Equal(t, total, result.stats.TotalMinutes)
}

func TestBuildPlanReportsShortfallWhenCapacityRunsOut(t *testing.T) {
	req := baseRequest()
	req.StudyHours = &dto.StudyWindow{Start: 16, End: 17}
	req.SessionLength = 60
	req.Breaks = 0
	req.Courses = []dto.CourseDemandRequest{
		{Name: "Biology", Priority: 2, HoursPerWeek: 10},
	}
	prefs, demands, err := normalizePlanRequest(req)
	require.NoError(t, err)

	result, err := buildPlan(context.Background(), prefs, demands, monday, 2)
	require.NoError(t, err)
	assert.False(t, result.satisfied())
	require.Len(t, result.shortfall, 1)
	assert.Equal(t, "Biology", result.shortfall[0].Name)
	assert.Equal(t, 600, result.shortfall[0].TargetMinutes)
	assert.Equal(t, 480, result.shortfall[0].UnmetMinutes)
	assert.Equal(t, 120, result.stats.TotalMinutes)
	assert.Equal(t, 2, result.stats.WeeksSpanned)
}

func TestBuildPlanZeroDemandProducesEmptyPlan(t *testing.T) {
	req := baseRequest()
	req.Courses = []dto.CourseDemandRequest{
		{Name: "Biology", Priority: 2, HoursPerWeek: 0},
	}
	prefs, demands, err := normalizePlanRequest(req)
	require.NoError(t, err)

	result, err := buildPlan(context.Background(), prefs, demands, monday, 0)
	require.NoError(t, err)
	assert.True(t, result.satisfied())
	assert.Empty(t, result.sessions)
	assert.Equal(t, 0, result.stats.WeeksSpanned)
}

func TestBuildPlanHonoursCancellation(t *testing.T) {
	req := baseRequest()
	prefs, demands, err := normalizePlanRequest(req)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = buildPlan(ctx, prefs, demands, monday, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMaterializeSessionsAssignsSequenceIDs(t *testing.T) {
	sessions := materializeSessions([]plannedSession{
		{course: "Biology", start: monday.Add(16 * time.Hour), minutes: 90},
		{course: "Biology", start: monday.Add(17*time.Hour + 45*time.Minute), minutes: 15},
	})
	require.Len(t, sessions, 2)
	assert.Equal(t, "gen-1", sessions[0].ID)
	assert.Equal(t, "gen-2", sessions[1].ID)
	assert.Equal(t, "Biology", sessions[0].Title)
	assert.Equal(t, "study", sessions[0].Type)
	assert.Equal(t, monday.Add(17*time.Hour+30*time.Minute), sessions[0].EndTime)
}

func TestParseReferenceDate(t *testing.T) {
	parsed, err := parseReferenceDate("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, monday, parsed)

	_, err = parseReferenceDate("02/03/2026")
	require.Error(t, err)

	today, err := parseReferenceDate("")
	require.NoError(t, err)
	assert.Equal(t, 0, today.Hour())
	assert.Equal(t, time.UTC, today.Location())
}
