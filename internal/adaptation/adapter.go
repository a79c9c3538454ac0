package adaptation

import (
	"context"
	"errors"
	"time"

	"ai-cycle-planner/internal/aggregator"
	"ai-cycle-planner/internal/cycle"
	"ai-cycle-planner/internal/planner"
	"ai-cycle-planner/internal/planstore"
	"ai-cycle-planner/internal/shared"

	log "github.com/sirupsen/logrus"
)

// PlanStore is the part of the plan store the adapter writes through.
type PlanStore interface {
	CurrentPlan(ctx context.Context, userID string) (*planner.WeeklyPlan, error)
	EventApplied(ctx context.Context, userID, eventKey string) (bool, error)
	ApplyAdaptation(ctx context.Context, userID, weekStartDate string, a planner.Adaptation, entry planner.AdaptationHistoryEntry) (*planner.WeeklyPlan, error)
}

// Engine produces plan patches.
type Engine interface {
	AdaptPlan(ctx context.Context, plan *planner.WeeklyPlan, snap *aggregator.Snapshot, reason, instructions string) (planner.Adaptation, shared.AgentMeta, error)
}

// Result describes what handling an event or request did.
type Result struct {
	Decision  Decision            `json:"decision"`
	Adapted   bool                `json:"adapted"`
	Duplicate bool                `json:"duplicate,omitempty"`
	Plan      *planner.WeeklyPlan `json:"plan,omitempty"`
	Cost      float64             `json:"cost"`
}

// Adapter applies adaptations to the current weekly plan.
type Adapter struct {
	store     PlanStore
	snapshots planstore.SnapshotSource
	engine    Engine
	usage     planstore.UsageRecorder
	evaluator *Evaluator
	now       func() time.Time
}

// NewAdapter creates an Adapter. usage may be nil.
func NewAdapter(store PlanStore, snapshots planstore.SnapshotSource, engine Engine, usage planstore.UsageRecorder, evaluator *Evaluator) *Adapter {
	if evaluator == nil {
		evaluator = NewEvaluator(nil)
	}
	return &Adapter{
		store:     store,
		snapshots: snapshots,
		engine:    engine,
		usage:     usage,
		evaluator: evaluator,
		now:       time.Now,
	}
}

// HandleEvent evaluates ev against the user's current plan and applies an
// adaptation when a rule matches. eventKey makes the handling idempotent; a
// key seen before yields a duplicate result and no engine call.
func (a *Adapter) HandleEvent(ctx context.Context, ev Event, eventKey string) (Result, error) {
	const op = "adaptation.HandleEvent"
	if ev.UserID == "" {
		return Result{}, shared.Validationf(op, "event has no user_id")
	}

	plan, err := a.store.CurrentPlan(ctx, ev.UserID)
	if shared.Is(err, shared.KindNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	decision := a.evaluator.Evaluate(ev, plan)
	if !decision.ShouldAdapt {
		return Result{Decision: decision}, nil
	}

	if eventKey != "" {
		seen, err := a.store.EventApplied(ctx, ev.UserID, eventKey)
		if err != nil {
			return Result{}, shared.E(shared.KindInternal, op, err)
		}
		if seen {
			return Result{Decision: decision, Duplicate: true}, nil
		}
	}

	return a.adapt(ctx, plan, decision, eventKey)
}

// Adapt applies a user-requested adaptation to the current plan.
func (a *Adapter) Adapt(ctx context.Context, userID, reason string) (Result, error) {
	const op = "adaptation.Adapt"
	if reason == "" {
		return Result{}, shared.Validationf(op, "reason is required")
	}

	plan, err := a.store.CurrentPlan(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	return a.adapt(ctx, plan, Decision{
		ShouldAdapt: true,
		Trigger:     "user_request",
		Reason:      reason,
		Priority:    planner.PriorityHigh,
	}, "")
}

func (a *Adapter) adapt(ctx context.Context, plan *planner.WeeklyPlan, d Decision, eventKey string) (Result, error) {
	snap := a.snapshots.Aggregate(ctx, plan.UserID)

	adaptation, meta, err := a.engine.AdaptPlan(ctx, plan, snap, d.Reason, d.Instructions)
	if a.usage != nil && meta.CostEstimate > 0 {
		a.usage.Record(ctx, plan.UserID, planstore.FeatureAdaptation, meta)
	}
	result := Result{Decision: d, Cost: meta.CostEstimate}
	if err != nil {
		return result, err
	}

	if d.Realign {
		weekStart, perr := time.Parse(time.DateOnly, plan.WeekStartDate)
		if perr == nil {
			adaptation.Patch.Forecast = cycle.Forecast(snap.Cycle.Settings, weekStart, len(planner.Weekdays))
		}
	}

	if adaptation.Patch.Empty() && len(adaptation.ChangesMade) == 0 {
		log.WithFields(log.Fields{
			"user_id": plan.UserID,
			"trigger": d.Trigger,
		}).Info("Adaptation produced no changes")
		return result, nil
	}

	entry := planner.AdaptationHistoryEntry{
		Timestamp: a.now().UTC(),
		Trigger:   d.Trigger,
		Reason:    d.Reason,
		EventKey:  eventKey,
	}
	updated, err := a.store.ApplyAdaptation(ctx, plan.UserID, plan.WeekStartDate, adaptation, entry)
	if errors.Is(err, planstore.ErrDuplicateEvent) {
		result.Duplicate = true
		return result, nil
	}
	if err != nil {
		return result, err
	}

	log.WithFields(log.Fields{
		"user_id": plan.UserID,
		"plan_id": plan.PlanID,
		"trigger": d.Trigger,
		"version": updated.Version,
	}).Info("Plan adapted")

	result.Adapted = true
	result.Plan = updated
	return result, nil
}
