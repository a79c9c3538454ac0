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

const insightTypeDaily = "daily"

// InsightRepository stores daily insights keyed by user and target date.
type InsightRepository struct {
	db *sql.DB
}

func NewInsightRepository(db *sql.DB) *InsightRepository {
	return &InsightRepository{db: db}
}

// Get returns the stored insight, or nil when none exists.
func (r *InsightRepository) Get(ctx context.Context, userID, targetDate string) (*planner.Insight, error) {
	var data, createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT insight_data, created_at FROM insights
		WHERE user_id = ? AND insight_type = ? AND target_date = ?`,
		userID, insightTypeDaily, targetDate).Scan(&data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insight for user %s date %s: %w", userID, targetDate, err)
	}

	insight := &planner.Insight{}
	if err := json.Unmarshal([]byte(data), insight); err != nil {
		return nil, fmt.Errorf("failed to unmarshal insight: %w", err)
	}
	if insight.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse insight timestamp: %w", err)
	}
	return insight, nil
}

// SaveIfStale inserts the insight, or replaces an existing row created before
// staleBefore. A fresh row written by someone else is kept. The stored row is returned.
func (r *InsightRepository) SaveIfStale(ctx context.Context, insight *planner.Insight, staleBefore time.Time) (*planner.Insight, error) {
	data, err := json.Marshal(insight)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal insight: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO insights (insight_id, user_id, insight_type, target_date, insight_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, insight_type, target_date) DO UPDATE SET
			insight_id = excluded.insight_id,
			insight_data = excluded.insight_data,
			created_at = excluded.created_at
		WHERE insights.created_at < ?`,
		insight.InsightID, insight.UserID, insightTypeDaily, insight.TargetDate, string(data),
		formatTime(insight.CreatedAt), formatTime(staleBefore))
	if err != nil {
		return nil, fmt.Errorf("failed to save insight: %w", err)
	}

	stored, err := r.Get(ctx, insight.UserID, insight.TargetDate)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("insight for user %s date %s vanished after save", insight.UserID, insight.TargetDate)
	}
	return stored, nil
}
