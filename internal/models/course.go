package models

import "time"

// CoursePriority is the closed set of priority weights a course can carry.
type CoursePriority int

const (
	PriorityLow    CoursePriority = 1
	PriorityMedium CoursePriority = 2
	PriorityHigh   CoursePriority = 3
)

// Valid reports whether the priority belongs to the closed set.
func (p CoursePriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

func (p CoursePriority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Course represents one subject a user studies, with its weekly demand.
type Course struct {
	ID           string         `db:"id" json:"id"`
	UserID       string         `db:"user_id" json:"user_id"`
	Name         string         `db:"name" json:"name"`
	Priority     CoursePriority `db:"priority" json:"priority"`
	HoursPerWeek float64        `db:"hours_per_week" json:"hours_per_week"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// CourseFilter describes query params for listing courses.
type CourseFilter struct {
	UserID    string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
