package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ai-cycle-planner/internal/shared"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Tracker records per-user, per-feature, per-day engine usage. Recording
// never fails the caller: errors are logged and counted.
type Tracker struct {
	db  *sql.DB
	now func() time.Time

	calls    *prometheus.CounterVec
	cost     *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	failures prometheus.Counter
}

// NewTracker creates a Tracker and registers its collectors with reg.
func NewTracker(db *sql.DB, reg prometheus.Registerer) *Tracker {
	t := &Tracker{
		db:  db,
		now: time.Now,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plan_engine",
			Name:      "llm_calls_total",
			Help:      "Completed engine calls by feature.",
		}, []string{"feature"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plan_engine",
			Name:      "llm_cost_usd_total",
			Help:      "Estimated engine cost in USD by feature.",
		}, []string{"feature"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plan_engine",
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by feature and direction.",
		}, []string{"feature", "direction"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plan_engine",
			Name:      "usage_record_failures_total",
			Help:      "Usage rows that could not be written.",
		}),
	}
	if reg != nil {
		reg.MustRegister(t.calls, t.cost, t.tokens, t.failures)
	}
	return t
}

// Record upserts today's usage row for the user and feature.
func (t *Tracker) Record(ctx context.Context, userID, feature string, meta shared.AgentMeta) {
	t.calls.WithLabelValues(feature).Inc()
	t.cost.WithLabelValues(feature).Add(meta.CostEstimate)
	t.tokens.WithLabelValues(feature, "prompt").Add(float64(meta.Usage.PromptTokens))
	t.tokens.WithLabelValues(feature, "completion").Add(float64(meta.Usage.CompletionTokens))

	date := t.now().UTC().Format(time.DateOnly)
	_, err := t.db.ExecContext(context.WithoutCancel(ctx), `
		INSERT INTO usage (user_id, feature_type, date, count, cost_estimate, prompt_tokens, completion_tokens)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (user_id, feature_type, date) DO UPDATE SET
			count = count + 1,
			cost_estimate = cost_estimate + excluded.cost_estimate,
			prompt_tokens = prompt_tokens + excluded.prompt_tokens,
			completion_tokens = completion_tokens + excluded.completion_tokens`,
		userID, feature, date, meta.CostEstimate, meta.Usage.PromptTokens, meta.Usage.CompletionTokens)
	if err != nil {
		t.failures.Inc()
		log.WithFields(log.Fields{
			"user_id": userID,
			"feature": feature,
		}).Errorf("Failed to record usage: %v", err)
	}
}

// UsageRecord is one (user, feature, date) row.
type UsageRecord struct {
	UserID           string  `json:"user_id"`
	FeatureType      string  `json:"feature_type"`
	Date             string  `json:"date"`
	Count            int     `json:"count"`
	CostEstimate     float64 `json:"cost_estimate"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
}

// UserUsage returns the user's usage rows for the last days days, newest first.
func (t *Tracker) UserUsage(ctx context.Context, userID string, days int) ([]UsageRecord, error) {
	since := t.now().UTC().AddDate(0, 0, -days).Format(time.DateOnly)
	rows, err := t.db.QueryContext(ctx, `
		SELECT user_id, feature_type, date, count, cost_estimate, prompt_tokens, completion_tokens
		FROM usage WHERE user_id = ? AND date >= ?
		ORDER BY date DESC, feature_type`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var r UsageRecord
		if err := rows.Scan(&r.UserID, &r.FeatureType, &r.Date, &r.Count, &r.CostEstimate, &r.PromptTokens, &r.CompletionTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DailyUsage is the all-users total for one day.
type DailyUsage struct {
	Date             string  `json:"date"`
	Calls            int     `json:"calls"`
	CostEstimate     float64 `json:"cost_estimate"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
}

// GetDailyUsage retrieves totals for the last N days.
func (t *Tracker) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	since := t.now().UTC().AddDate(0, 0, -days).Format(time.DateOnly)
	rows, err := t.db.QueryContext(ctx, `
		SELECT date, SUM(count), SUM(cost_estimate), SUM(prompt_tokens), SUM(completion_tokens)
		FROM usage WHERE date >= ?
		GROUP BY date ORDER BY date DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var out []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.Calls, &u.CostEstimate, &u.PromptTokens, &u.CompletionTokens); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Cleanup removes rows older than the specified number of days.
func (t *Tracker) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := t.now().UTC().AddDate(0, 0, -olderThanDays).Format(time.DateOnly)
	res, err := t.db.ExecContext(ctx, `DELETE FROM usage WHERE date < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up usage: %w", err)
	}
	return res.RowsAffected()
}
