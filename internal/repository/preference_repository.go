package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyflow-app/planner-api/internal/models"
)

// PreferenceRepository persists per-user study preferences.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository constructs the repository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// GetByUser returns stored preferences for a user.
func (r *PreferenceRepository) GetByUser(ctx context.Context, userID string) (*models.StudyPreference, error) {
	const query = `SELECT id, user_id, study_days, start_hour, end_hour, session_length_minutes, break_minutes, created_at, updated_at FROM study_preferences WHERE user_id = $1`
	var pref models.StudyPreference
	if err := r.db.GetContext(ctx, &pref, query, userID); err != nil {
		return nil, err
	}
	return &pref, nil
}

// Upsert creates or updates a user's preferences.
func (r *PreferenceRepository) Upsert(ctx context.Context, pref *models.StudyPreference) error {
	if pref.ID == "" {
		pref.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = now
	}
	pref.UpdatedAt = now

	const query = `INSERT INTO study_preferences (id, user_id, study_days, start_hour, end_hour, session_length_minutes, break_minutes, created_at, updated_at)
		VALUES (:id, :user_id, :study_days, :start_hour, :end_hour, :session_length_minutes, :break_minutes, :created_at, :updated_at)
		ON CONFLICT (user_id) DO UPDATE
		SET study_days = EXCLUDED.study_days,
		    start_hour = EXCLUDED.start_hour,
		    end_hour = EXCLUDED.end_hour,
		    session_length_minutes = EXCLUDED.session_length_minutes,
		    break_minutes = EXCLUDED.break_minutes,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		return fmt.Errorf("upsert study preference: %w", err)
	}
	return nil
}
