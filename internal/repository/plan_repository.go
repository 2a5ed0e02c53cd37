package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyflow-app/planner-api/internal/models"
)

// PlanRepository provides persistence for study plans.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository creates a new plan repository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// BeginTx opens a transaction for multi-table writes.
func (r *PlanRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin plan tx: %w", err)
	}
	return tx, nil
}

// CreateWithTx inserts a plan using an existing transaction.
func (r *PlanRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, plan *models.StudyPlan) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	if len(plan.Meta) == 0 {
		plan.Meta = []byte("{}")
	}

	const query = `INSERT INTO study_plans (id, user_id, status, reference_date, satisfied, meta, created_at, updated_at) VALUES (:id, :user_id, :status, :reference_date, :satisfied, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, plan); err != nil {
		return fmt.Errorf("create study plan: %w", err)
	}
	return nil
}

// ListByUser returns plan summaries for a user, newest first.
func (r *PlanRepository) ListByUser(ctx context.Context, userID string, page, size int) ([]models.StudyPlan, int, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, user_id, status, reference_date, satisfied, meta, created_at, updated_at FROM study_plans WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d OFFSET %d", size, offset)
	var plans []models.StudyPlan
	if err := r.db.SelectContext(ctx, &plans, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list study plans: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM study_plans WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count study plans: %w", err)
	}

	return plans, total, nil
}

// FindByID loads a plan by id.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*models.StudyPlan, error) {
	const query = `SELECT id, user_id, status, reference_date, satisfied, meta, created_at, updated_at FROM study_plans WHERE id = $1`
	var plan models.StudyPlan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

// UpdateStatus moves a plan to a new lifecycle status.
func (r *PlanRepository) UpdateStatus(ctx context.Context, id string, status models.StudyPlanStatus) error {
	const query = `UPDATE study_plans SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update study plan status: %w", err)
	}
	return nil
}

// Delete removes a plan. Callers delete the plan's sessions first; the
// foreign key cascade is only a backstop.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM study_plans WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete study plan: %w", err)
	}
	return nil
}
