package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// StudyPlanStatus tracks the lifecycle of a persisted plan.
type StudyPlanStatus string

const (
	StudyPlanStatusDraft StudyPlanStatus = "DRAFT"
	StudyPlanStatusSaved StudyPlanStatus = "SAVED"
)

// StudyPlan groups the sessions produced by one generation run.
type StudyPlan struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	Status        StudyPlanStatus `db:"status" json:"status"`
	ReferenceDate time.Time       `db:"reference_date" json:"reference_date"`
	Satisfied     bool            `db:"satisfied" json:"satisfied"`
	Meta          types.JSONText  `db:"meta" json:"meta,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// StudySession is one scheduled, non-overlapping block of study time.
type StudySession struct {
	ID              string    `db:"id" json:"id"`
	PlanID          string    `db:"plan_id" json:"plan_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	CourseName      string    `db:"course_name" json:"course_name"`
	StartTime       time.Time `db:"start_time" json:"start_time"`
	EndTime         time.Time `db:"end_time" json:"end_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Kind            string    `db:"kind" json:"kind"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
