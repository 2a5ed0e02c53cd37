package dto

import "time"

// CourseDemandRequest captures weekly demand for one course.
type CourseDemandRequest struct {
	Name         string  `json:"name" validate:"required"`
	Priority     int     `json:"priority" validate:"required,min=1,max=3"`
	HoursPerWeek float64 `json:"hoursPerWeek" validate:"gte=0"`
}

// StudyWindow bounds the daily scheduling window in whole hours.
type StudyWindow struct {
	Start int `json:"start" validate:"min=0,max=23"`
	End   int `json:"end" validate:"min=0,max=24"`
}

// GeneratePlanRequest instructs the planner to build a proposal.
// When the scheduling fields are omitted the caller's saved preferences are
// used instead. ReferenceDate (YYYY-MM-DD) pins the generation start for
// reproducible output; it defaults to today at midnight UTC.
type GeneratePlanRequest struct {
	StudyDays     []string              `json:"studyDays" validate:"omitempty,dive,oneof=Mon Tue Wed Thu Fri Sat Sun"`
	StudyHours    *StudyWindow          `json:"studyHours"`
	SessionLength int                   `json:"sessionLength" validate:"omitempty,min=1"`
	Breaks        int                   `json:"breaks" validate:"min=0"`
	Courses       []CourseDemandRequest `json:"courses" validate:"required,min=1,dive"`
	ReferenceDate string                `json:"referenceDate" validate:"omitempty,datetime=2006-01-02"`
}

// SessionResponse is one generated study block in the output contract.
type SessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Type      string    `json:"type"`
}

// CourseShortfall reports unmet demand for one course when the available
// capacity could not satisfy it.
type CourseShortfall struct {
	Name          string `json:"name"`
	UnmetMinutes  int    `json:"unmetMinutes"`
	TargetMinutes int    `json:"targetMinutes"`
}

// PlanStats summarises a generation run.
type PlanStats struct {
	DaysUsed       int `json:"daysUsed"`
	WeeksSpanned   int `json:"weeksSpanned"`
	TotalMinutes   int `json:"totalMinutes"`
	SessionsPlaced int `json:"sessionsPlaced"`
}

// GeneratePlanResponse returns the built plan proposal.
type GeneratePlanResponse struct {
	ProposalID string            `json:"proposalId"`
	Satisfied  bool              `json:"satisfied"`
	Sessions   []SessionResponse `json:"sessions"`
	Shortfall  []CourseShortfall `json:"shortfall,omitempty"`
	Stats      PlanStats         `json:"stats"`
}

// SavePlanRequest persists a proposal into study plans.
type SavePlanRequest struct {
	ProposalID    string `json:"proposalId" validate:"required"`
	AcceptPartial bool   `json:"acceptPartial"`
}

// PlanQuery filters plan summaries.
type PlanQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"limit"`
}

// Job statuses for asynchronous generation.
const (
	JobStatusPending = "PENDING"
	JobStatusDone    = "DONE"
	JobStatusFailed  = "FAILED"
)

// PlanJobStatus reports progress of an asynchronous generation request.
type PlanJobStatus struct {
	JobID       string                `json:"jobId"`
	UserID      string                `json:"userId"`
	Status      string                `json:"status"`
	Error       string                `json:"error,omitempty"`
	Result      *GeneratePlanResponse `json:"result,omitempty"`
	RequestedAt time.Time             `json:"requestedAt"`
}
