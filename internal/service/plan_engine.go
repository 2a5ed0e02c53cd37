package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/studyflow-app/planner-api/internal/dto"
	"github.com/studyflow-app/planner-api/internal/models"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
)

const (
	sessionKindStudy = "study"

	// defaultMaxWeeks bounds the outer allocation loop to one year so that
	// demand exceeding weekly capacity cannot spin forever.
	defaultMaxWeeks = 52
)

// planPreferences is the normalized constraint set for one generation run.
type planPreferences struct {
	days       []time.Weekday // caller order preserved, duplicates removed
	startHour  int
	endHour    int
	sessionLen int // minutes
	breakLen   int // minutes
}

// courseDemand tracks remaining weekly minutes for one course during a run.
// target is fixed at normalization; remaining only ever decreases.
type courseDemand struct {
	name      string
	priority  models.CoursePriority
	target    int
	remaining int
}

// plannedSession is the engine's intermediate output before materialization.
type plannedSession struct {
	course  string
	start   time.Time
	minutes int
}

type planResult struct {
	sessions  []plannedSession
	shortfall []dto.CourseShortfall
	stats     dto.PlanStats
}

func (r planResult) satisfied() bool {
	return len(r.shortfall) == 0
}

// --- Preference normalization ---

var weekdayByLabel = map[string]time.Weekday{
	"Sun": time.Sunday,
	"Mon": time.Monday,
	"Tue": time.Tuesday,
	"Wed": time.Wednesday,
	"Thu": time.Thursday,
	"Fri": time.Friday,
	"Sat": time.Saturday,
}

// normalizePlanRequest validates raw preferences and builds the demand list.
// Pure: no side effects, no I/O.
func normalizePlanRequest(req dto.GeneratePlanRequest) (planPreferences, []courseDemand, error) {
	days := make([]time.Weekday, 0, len(req.StudyDays))
	seen := make(map[time.Weekday]bool, len(req.StudyDays))
	for _, label := range req.StudyDays {
		day, ok := weekdayByLabel[label]
		if !ok {
			return planPreferences{}, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown study day %q", label))
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	if len(days) == 0 {
		return planPreferences{}, nil, appErrors.ErrNoAvailableDays
	}

	if req.StudyHours == nil {
		return planPreferences{}, nil, appErrors.Clone(appErrors.ErrInvalidWindow, "study hours are required")
	}
	window := *req.StudyHours
	if window.Start < 0 || window.End > 24 || window.Start >= window.End {
		return planPreferences{}, nil, appErrors.ErrInvalidWindow
	}

	if req.SessionLength <= 0 {
		return planPreferences{}, nil, appErrors.Clone(appErrors.ErrValidation, "sessionLength must be a positive number of minutes")
	}
	if req.Breaks < 0 {
		return planPreferences{}, nil, appErrors.Clone(appErrors.ErrValidation, "breaks must not be negative")
	}

	demands := make([]courseDemand, 0, len(req.Courses))
	for _, course := range req.Courses {
		name := strings.TrimSpace(course.Name)
		if name == "" {
			return planPreferences{}, nil, appErrors.ErrInvalidCourse
		}
		priority := models.CoursePriority(course.Priority)
		if !priority.Valid() {
			return planPreferences{}, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("course %s has an unsupported priority", name))
		}
		if course.HoursPerWeek < 0 {
			return planPreferences{}, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("course %s hoursPerWeek must not be negative", name))
		}
		target := int(course.HoursPerWeek * 60)
		demands = append(demands, courseDemand{
			name:      name,
			priority:  priority,
			target:    target,
			remaining: target,
		})
	}

	// Priority order is fixed once per run: descending priority, stable
	// within equal priority so caller order breaks ties.
	sort.SliceStable(demands, func(i, j int) bool {
		return demands[i].priority > demands[j].priority
	})

	prefs := planPreferences{
		days:       days,
		startHour:  window.Start,
		endHour:    window.End,
		sessionLen: req.SessionLength,
		breakLen:   req.Breaks,
	}
	return prefs, demands, nil
}

// --- Day cursor ---

// nextOccurrence returns the first date on or after reference whose weekday
// matches target. A reference that already matches resolves to itself.
func nextOccurrence(reference time.Time, target time.Weekday) time.Time {
	offset := (int(target) - int(reference.Weekday()) + 7) % 7
	return reference.AddDate(0, 0, offset)
}

// --- Allocation engine ---

// buildPlan runs the greedy packing loop: walk the selected weekdays in
// order, fill each day's window with sessions drawn from the highest-priority
// course that still has demand, and advance to later weeks until every course
// reaches zero remaining minutes or maxWeeks is exhausted.
//
// Dates for cycle N are resolved against reference shifted forward by N
// weeks, so revisiting a weekday in a later cycle lands exactly seven days
// after the previous visit.
func buildPlan(ctx context.Context, prefs planPreferences, demands []courseDemand, reference time.Time, maxWeeks int) (planResult, error) {
	if maxWeeks <= 0 {
		maxWeeks = defaultMaxWeeks
	}

	windowStart := prefs.startHour * 60
	windowEnd := prefs.endHour * 60

	var result planResult
	weeks := 0
	dayIndex := 0

	for outstanding(demands) > 0 {
		if err := ctx.Err(); err != nil {
			return planResult{}, err
		}
		if weeks >= maxWeeks {
			break
		}

		weekday := prefs.days[dayIndex%len(prefs.days)]
		date := nextOccurrence(reference.AddDate(0, 0, 7*weeks), weekday)

		cursor := windowStart
		emitted := false
		for cursor < windowEnd {
			course := nextCourse(demands)
			if course == nil {
				break
			}
			duration := minInt(prefs.sessionLen, course.remaining, windowEnd-cursor)
			if duration <= 0 {
				break
			}
			result.sessions = append(result.sessions, plannedSession{
				course:  course.name,
				start:   date.Add(time.Duration(cursor) * time.Minute),
				minutes: duration,
			})
			course.remaining -= duration
			cursor += duration + prefs.breakLen
			result.stats.TotalMinutes += duration
			emitted = true
		}
		if emitted {
			result.stats.DaysUsed++
		}

		dayIndex++
		if dayIndex%len(prefs.days) == 0 {
			weeks++
		}
	}

	for _, demand := range demands {
		if demand.remaining > 0 {
			result.shortfall = append(result.shortfall, dto.CourseShortfall{
				Name:          demand.name,
				UnmetMinutes:  demand.remaining,
				TargetMinutes: demand.target,
			})
		}
	}

	result.stats.SessionsPlaced = len(result.sessions)
	result.stats.WeeksSpanned = weeks
	if dayIndex%len(prefs.days) != 0 {
		result.stats.WeeksSpanned++
	}
	return result, nil
}

// nextCourse returns the first course with outstanding demand, or nil.
// Demands are already in priority order.
func nextCourse(demands []courseDemand) *courseDemand {
	for i := range demands {
		if demands[i].remaining > 0 {
			return &demands[i]
		}
	}
	return nil
}

func outstanding(demands []courseDemand) int {
	total := 0
	for _, demand := range demands {
		total += demand.remaining
	}
	return total
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// --- Session materializer ---

// materializeSessions assigns sequence IDs and computes end times.
func materializeSessions(sessions []plannedSession) []dto.SessionResponse {
	out := make([]dto.SessionResponse, 0, len(sessions))
	for i, session := range sessions {
		out = append(out, dto.SessionResponse{
			ID:        fmt.Sprintf("gen-%d", i+1),
			Title:     session.course,
			StartTime: session.start,
			EndTime:   session.start.Add(time.Duration(session.minutes) * time.Minute),
			Type:      sessionKindStudy,
		})
	}
	return out
}

// parseReferenceDate resolves the generation start to midnight UTC. An empty
// value defaults to today.
func parseReferenceDate(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "referenceDate must use YYYY-MM-DD")
	}
	return parsed.UTC(), nil
}
