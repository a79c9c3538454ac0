// Package planstore persists weekly plans and daily insights and serves cache
// hits without invoking the engine.
package planstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ai-cycle-planner/internal/aggregator"
	"ai-cycle-planner/internal/cycle"
	"ai-cycle-planner/internal/planner"
	"ai-cycle-planner/internal/shared"

	log "github.com/sirupsen/logrus"
)

// Usage feature names.
const (
	FeatureWeeklyPlan   = "weekly_plan"
	FeatureDailyInsight = "daily_insight"
	FeatureAdaptation   = "plan_adaptation"
)

const maxAdaptationAttempts = 3

// SnapshotSource builds generation input for a user.
type SnapshotSource interface {
	Aggregate(ctx context.Context, userID string) *aggregator.Snapshot
}

// Generator is the subset of the engine the store delegates to on a miss.
type Generator interface {
	GenerateWeeklyPlan(ctx context.Context, snap *aggregator.Snapshot, weekStart time.Time) (*planner.WeeklyPlan, shared.AgentMeta, error)
	GenerateDailyInsight(ctx context.Context, snap *aggregator.Snapshot, date time.Time) (*planner.Insight, shared.AgentMeta, error)
}

// UsageRecorder receives one record per completed engine call.
type UsageRecorder interface {
	Record(ctx context.Context, userID, feature string, meta shared.AgentMeta)
}

// Store enforces one plan per user per week and time-windowed insight caching.
type Store struct {
	plans      *PlanRepository
	insights   *InsightRepository
	snapshots  SnapshotSource
	engine     Generator
	usage      UsageRecorder
	insightTTL time.Duration
	now        func() time.Time
}

// NewStore creates a Store over db. usage may be nil.
func NewStore(db *sql.DB, snapshots SnapshotSource, engine Generator, usage UsageRecorder, insightTTL time.Duration) *Store {
	if insightTTL <= 0 {
		insightTTL = 24 * time.Hour
	}
	return &Store{
		plans:      NewPlanRepository(db),
		insights:   NewInsightRepository(db),
		snapshots:  snapshots,
		engine:     engine,
		usage:      usage,
		insightTTL: insightTTL,
		now:        time.Now,
	}
}

// Plans exposes the underlying plan repository.
func (s *Store) Plans() *PlanRepository {
	return s.plans
}

// GetOrCreatePlan returns the plan for the week containing weekStart,
// generating and storing it on a miss. Cache hits cost nothing.
func (s *Store) GetOrCreatePlan(ctx context.Context, userID string, weekStart time.Time) (plan *planner.WeeklyPlan, cached bool, cost float64, err error) {
	const op = "planstore.GetOrCreatePlan"
	week := planner.WeekStartDate(weekStart)

	existing, err := s.plans.Get(ctx, userID, week)
	if err != nil {
		return nil, false, 0, shared.E(shared.KindInternal, op, err)
	}
	if existing != nil {
		return existing, true, 0, nil
	}

	snap := s.snapshots.Aggregate(ctx, userID)
	generated, meta, err := s.engine.GenerateWeeklyPlan(ctx, snap, planner.WeekStart(weekStart))
	s.record(ctx, userID, FeatureWeeklyPlan, meta)
	if err != nil {
		return nil, false, meta.CostEstimate, err
	}

	stored, inserted, err := s.plans.InsertOrGet(ctx, generated)
	if err != nil {
		return nil, false, meta.CostEstimate, shared.E(shared.KindInternal, op, err)
	}
	if !inserted {
		log.WithFields(log.Fields{
			"user_id": userID,
			"week":    week,
		}).Info("Concurrent plan generation lost the race, returning stored plan")
	}
	return stored, false, meta.CostEstimate, nil
}

// CurrentPlan returns the plan for the current week or a NotFound error.
func (s *Store) CurrentPlan(ctx context.Context, userID string) (*planner.WeeklyPlan, error) {
	const op = "planstore.CurrentPlan"
	plan, err := s.plans.Get(ctx, userID, planner.WeekStartDate(s.now()))
	if err != nil {
		return nil, shared.E(shared.KindInternal, op, err)
	}
	if plan == nil {
		return nil, shared.E(shared.KindNotFound, op, fmt.Errorf("no plan for the current week"))
	}
	return plan, nil
}

// GetOrCreateInsight returns the insight for date, generating it when missing
// or older than the insight TTL.
func (s *Store) GetOrCreateInsight(ctx context.Context, userID string, date time.Time) (insight *planner.Insight, cached bool, cost float64, err error) {
	const op = "planstore.GetOrCreateInsight"
	target := cycle.Date(date).Format(time.DateOnly)

	existing, err := s.insights.Get(ctx, userID, target)
	if err != nil {
		return nil, false, 0, shared.E(shared.KindInternal, op, err)
	}
	if existing != nil && s.now().Sub(existing.CreatedAt) < s.insightTTL {
		return existing, true, 0, nil
	}

	snap := s.snapshots.Aggregate(ctx, userID)
	generated, meta, err := s.engine.GenerateDailyInsight(ctx, snap, date)
	s.record(ctx, userID, FeatureDailyInsight, meta)
	if err != nil {
		return nil, false, meta.CostEstimate, err
	}

	now := s.now()
	generated.CreatedAt = now.UTC()
	stored, err := s.insights.SaveIfStale(ctx, generated, now.Add(-s.insightTTL))
	if err != nil {
		return nil, false, meta.CostEstimate, shared.E(shared.KindInternal, op, err)
	}
	return stored, false, meta.CostEstimate, nil
}

// ApplyAdaptation merges the adaptation into the user's plan for the given
// week and appends entry to its history. The write is retried on version
// conflicts, re-merging into the latest plan each time.
func (s *Store) ApplyAdaptation(ctx context.Context, userID, weekStartDate string, a planner.Adaptation, entry planner.AdaptationHistoryEntry) (*planner.WeeklyPlan, error) {
	const op = "planstore.ApplyAdaptation"

	for attempt := 1; attempt <= maxAdaptationAttempts; attempt++ {
		current, err := s.plans.Get(ctx, userID, weekStartDate)
		if err != nil {
			return nil, shared.E(shared.KindInternal, op, err)
		}
		if current == nil {
			return nil, shared.E(shared.KindNotFound, op, fmt.Errorf("no plan for week %s", weekStartDate))
		}

		now := s.now().UTC()
		next := current.Clone()
		next.ApplyAdaptation(a, entry, now)

		err = s.plans.Update(ctx, next, current.Version, entry.EventKey, now)
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, ErrDuplicateEvent):
			return nil, err
		case errors.Is(err, ErrVersionConflict):
			log.WithFields(log.Fields{
				"user_id": userID,
				"plan_id": current.PlanID,
				"attempt": attempt,
			}).Warn("Plan changed during adaptation, re-merging")
			continue
		default:
			return nil, shared.E(shared.KindInternal, op, err)
		}
	}
	return nil, shared.E(shared.KindInternal, op, ErrVersionConflict)
}

// EventApplied reports whether eventKey was already applied for the user.
func (s *Store) EventApplied(ctx context.Context, userID, eventKey string) (bool, error) {
	if eventKey == "" {
		return false, nil
	}
	return s.plans.HasEvent(ctx, userID, eventKey)
}

func (s *Store) record(ctx context.Context, userID, feature string, meta shared.AgentMeta) {
	if s.usage == nil || meta.CostEstimate == 0 {
		return
	}
	s.usage.Record(ctx, userID, feature, meta)
}
