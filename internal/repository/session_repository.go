package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyflow-app/planner-api/internal/models"
)

// SessionRepository provides persistence for study sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// ListByPlan returns a plan's sessions in chronological order.
func (r *SessionRepository) ListByPlan(ctx context.Context, planID string) ([]models.StudySession, error) {
	const query = `SELECT id, plan_id, user_id, course_name, start_time, end_time, duration_minutes, kind, created_at FROM study_sessions WHERE plan_id = $1 ORDER BY start_time ASC`
	var sessions []models.StudySession
	if err := r.db.SelectContext(ctx, &sessions, query, planID); err != nil {
		return nil, fmt.Errorf("list sessions by plan: %w", err)
	}
	return sessions, nil
}

// ListByUserRange returns sessions for a user overlapping [from, to).
func (r *SessionRepository) ListByUserRange(ctx context.Context, userID string, from, to time.Time) ([]models.StudySession, error) {
	const query = `SELECT id, plan_id, user_id, course_name, start_time, end_time, duration_minutes, kind, created_at FROM study_sessions WHERE user_id = $1 AND start_time >= $2 AND start_time < $3 ORDER BY start_time ASC`
	var sessions []models.StudySession
	if err := r.db.SelectContext(ctx, &sessions, query, userID, from, to); err != nil {
		return nil, fmt.Errorf("list sessions by range: %w", err)
	}
	return sessions, nil
}

// BulkCreateWithTx inserts sessions using an existing transaction.
func (r *SessionRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, sessions []models.StudySession) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	return r.bulkInsertSessions(ctx, tx, sessions)
}

func (r *SessionRepository) bulkInsertSessions(ctx context.Context, exec sqlx.ExtContext, sessions []models.StudySession) error {
	now := time.Now().UTC()
	for i := range sessions {
		payload := sessions[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}

		if _, err := sqlx.NamedExecContext(ctx, exec, `INSERT INTO study_sessions (id, plan_id, user_id, course_name, start_time, end_time, duration_minutes, kind, created_at) VALUES (:id, :plan_id, :user_id, :course_name, :start_time, :end_time, :duration_minutes, :kind, :created_at)`, &payload); err != nil {
			return fmt.Errorf("bulk insert session: %w", err)
		}
		sessions[i] = payload
	}
	return nil
}

// DeleteByPlan removes all sessions belonging to a plan.
func (r *SessionRepository) DeleteByPlan(ctx context.Context, planID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM study_sessions WHERE plan_id = $1`, planID); err != nil {
		return fmt.Errorf("delete sessions by plan: %w", err)
	}
	return nil
}
