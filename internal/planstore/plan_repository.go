package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-cycle-planner/internal/planner"
)

var (
	// ErrDuplicateEvent means the event key was already applied to the user's plan.
	ErrDuplicateEvent = errors.New("adaptation event already applied")
	// ErrVersionConflict means the plan changed since it was read.
	ErrVersionConflict = errors.New("plan version conflict")
)

// PlanRepository is a database-backed repository for weekly plans.
type PlanRepository struct {
	db *sql.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Get returns the user's plan for the week, or nil when none exists.
func (r *PlanRepository) Get(ctx context.Context, userID, weekStartDate string) (*planner.WeeklyPlan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT plan_data, version FROM weekly_plans WHERE user_id = ? AND week_start_date = ?`,
		userID, weekStartDate)

	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan for user %s week %s: %w", userID, weekStartDate, err)
	}
	return plan, nil
}

// InsertOrGet stores the plan unless one already exists for its user and week,
// and returns the stored row. inserted is false when another writer won.
func (r *PlanRepository) InsertOrGet(ctx context.Context, plan *planner.WeeklyPlan) (stored *planner.WeeklyPlan, inserted bool, err error) {
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal plan: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO weekly_plans (plan_id, user_id, week_start_date, plan_data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, week_start_date) DO NOTHING`,
		plan.PlanID, plan.UserID, plan.WeekStartDate, string(data), plan.Version,
		formatTime(plan.CreatedAt), formatTime(plan.UpdatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert plan: %w", err)
	}

	stored, err = r.Get(ctx, plan.UserID, plan.WeekStartDate)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("plan for user %s week %s vanished after insert", plan.UserID, plan.WeekStartDate)
	}
	return stored, n == 1, nil
}

// HasEvent reports whether eventKey was already applied for the user.
func (r *PlanRepository) HasEvent(ctx context.Context, userID, eventKey string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM adaptation_events WHERE user_id = ? AND event_key = ?`, userID, eventKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up adaptation event: %w", err)
	}
	return true, nil
}

// Update writes plan if its stored version still equals expectedVersion. When
// eventKey is set it is recorded in the same transaction.
func (r *PlanRepository) Update(ctx context.Context, plan *planner.WeeklyPlan, expectedVersion int, eventKey string, now time.Time) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if eventKey != "" {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO adaptation_events (user_id, event_key, plan_id, recorded_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, event_key) DO NOTHING`,
			plan.UserID, eventKey, plan.PlanID, formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to record adaptation event: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrDuplicateEvent
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE weekly_plans SET plan_data = ?, version = version + 1, updated_at = ?
		WHERE plan_id = ? AND version = ?`,
		string(data), formatTime(plan.UpdatedAt), plan.PlanID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan update: %w", err)
	}
	plan.Version = expectedVersion + 1
	return nil
}

// ListByUser returns the user's most recent plans, newest week first.
func (r *PlanRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*planner.WeeklyPlan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT plan_data, version FROM weekly_plans
		WHERE user_id = ? ORDER BY week_start_date DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans for user %s: %w", userID, err)
	}
	defer rows.Close()

	var plans []*planner.WeeklyPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (*planner.WeeklyPlan, error) {
	var (
		data    string
		version int
	)
	if err := s.Scan(&data, &version); err != nil {
		return nil, err
	}
	plan := &planner.WeeklyPlan{}
	if err := json.Unmarshal([]byte(data), plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}
	plan.Version = version
	return plan, nil
}
