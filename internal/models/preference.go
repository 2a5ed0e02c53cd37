package models

import "time"

// StudyPreference stores a user's saved scheduling constraints.
// StudyDays is a comma-separated list of weekday labels (Mon..Sun) kept in
// the order the user selected them.
type StudyPreference struct {
	ID                   string    `db:"id" json:"id"`
	UserID               string    `db:"user_id" json:"user_id"`
	StudyDays            string    `db:"study_days" json:"study_days"`
	StartHour            int       `db:"start_hour" json:"start_hour"`
	EndHour              int       `db:"end_hour" json:"end_hour"`
	SessionLengthMinutes int       `db:"session_length_minutes" json:"session_length_minutes"`
	BreakMinutes         int       `db:"break_minutes" json:"break_minutes"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
