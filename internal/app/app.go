// Package app is the authenticated action surface shared by the HTTP API,
// the Telegram bot and the scheduler.
package app

import (
	"context"
	"errors"
	"time"

	"ai-cycle-planner/internal/adaptation"
	"ai-cycle-planner/internal/auth"
	"ai-cycle-planner/internal/metrics"
	"ai-cycle-planner/internal/planner"
	"ai-cycle-planner/internal/shared"

	log "github.com/sirupsen/logrus"
)

// Authenticator turns a bearer token into a principal.
type Authenticator interface {
	Verify(token string) (auth.Principal, error)
}

// Entitler rejects users without access to generation.
type Entitler interface {
	Check(ctx context.Context, userID string) error
}

// PlanStore serves cached or freshly generated plans and insights.
type PlanStore interface {
	GetOrCreatePlan(ctx context.Context, userID string, weekStart time.Time) (*planner.WeeklyPlan, bool, float64, error)
	GetOrCreateInsight(ctx context.Context, userID string, date time.Time) (*planner.Insight, bool, float64, error)
	CurrentPlan(ctx context.Context, userID string) (*planner.WeeklyPlan, error)
}

// Adapter applies adaptations to the current plan.
type Adapter interface {
	Adapt(ctx context.Context, userID, reason string) (adaptation.Result, error)
	HandleEvent(ctx context.Context, ev adaptation.Event, eventKey string) (adaptation.Result, error)
}

// UsageReader reports recorded usage.
type UsageReader interface {
	UserUsage(ctx context.Context, userID string, days int) ([]metrics.UsageRecord, error)
}

// PlanResult is the outcome of GenerateWeeklyPlan.
type PlanResult struct {
	Plan   *planner.WeeklyPlan `json:"plan"`
	Cached bool                `json:"cached"`
	Cost   float64             `json:"cost"`
}

// InsightResult is the outcome of GenerateDailyInsight.
type InsightResult struct {
	Insight *planner.Insight `json:"insight"`
	Cached  bool             `json:"cached"`
	Cost    float64          `json:"cost"`
}

// Service runs every operation for an authenticated, entitled principal.
type Service struct {
	auth         Authenticator
	entitlements Entitler
	plans        PlanStore
	adapter      Adapter
	usage        UsageReader
	now          func() time.Time
}

// NewService wires the action surface.
func NewService(authn Authenticator, entitlements Entitler, plans PlanStore, adapter Adapter, usage UsageReader) *Service {
	return &Service{
		auth:         authn,
		entitlements: entitlements,
		plans:        plans,
		adapter:      adapter,
		usage:        usage,
		now:          time.Now,
	}
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(token string) (auth.Principal, error) {
	return s.auth.Verify(token)
}

// GenerateWeeklyPlan returns the plan for the current week, generating it on
// the first request.
func (s *Service) GenerateWeeklyPlan(ctx context.Context, p auth.Principal) (PlanResult, error) {
	if err := s.authorize(ctx, p, "app.GenerateWeeklyPlan"); err != nil {
		return PlanResult{}, err
	}

	plan, cached, cost, err := s.plans.GetOrCreatePlan(ctx, p.UserID, planner.WeekStart(s.now()))
	if err != nil {
		s.logFailure(p, "generate_weekly_plan", err)
		return PlanResult{Cost: cost}, err
	}
	return PlanResult{Plan: plan, Cached: cached, Cost: cost}, nil
}

// GenerateDailyInsight returns the insight for date, today when zero.
func (s *Service) GenerateDailyInsight(ctx context.Context, p auth.Principal, date time.Time) (InsightResult, error) {
	if err := s.authorize(ctx, p, "app.GenerateDailyInsight"); err != nil {
		return InsightResult{}, err
	}
	if date.IsZero() {
		date = s.now().UTC()
	}

	insight, cached, cost, err := s.plans.GetOrCreateInsight(ctx, p.UserID, date)
	if err != nil {
		s.logFailure(p, "generate_daily_insight", err)
		return InsightResult{Cost: cost}, err
	}
	return InsightResult{Insight: insight, Cached: cached, Cost: cost}, nil
}

// AdaptPlan adapts the current plan for a user-supplied reason.
func (s *Service) AdaptPlan(ctx context.Context, p auth.Principal, reason string) (adaptation.Result, error) {
	if err := s.authorize(ctx, p, "app.AdaptPlan"); err != nil {
		return adaptation.Result{}, err
	}

	res, err := s.adapter.Adapt(ctx, p.UserID, reason)
	if err != nil {
		s.logFailure(p, "adapt_plan", err)
	}
	return res, err
}

// GetCurrentPlan returns the stored plan for the current week.
func (s *Service) GetCurrentPlan(ctx context.Context, p auth.Principal) (*planner.WeeklyPlan, error) {
	if err := s.authorize(ctx, p, "app.GetCurrentPlan"); err != nil {
		return nil, err
	}
	return s.plans.CurrentPlan(ctx, p.UserID)
}

// CheckAdaptation evaluates a change to the caller's data and adapts the
// current plan when a trigger matches. The event id, when present, makes
// repeated checks idempotent.
func (s *Service) CheckAdaptation(ctx context.Context, p auth.Principal, ev adaptation.Event) (adaptation.Result, error) {
	if err := s.authorize(ctx, p, "app.CheckAdaptation"); err != nil {
		return adaptation.Result{}, err
	}
	if ev.Table == "" || ev.EventType == "" {
		return adaptation.Result{}, shared.Validationf("app.CheckAdaptation", "table and event_type are required")
	}
	ev.UserID = p.UserID

	res, err := s.adapter.HandleEvent(ctx, ev, ev.ID)
	if shared.Is(err, shared.KindNotFound) {
		return res, nil
	}
	if err != nil {
		s.logFailure(p, "check_adaptation", err)
	}
	return res, err
}

// Usage returns the caller's usage for the last days days.
func (s *Service) Usage(ctx context.Context, p auth.Principal, days int) ([]metrics.UsageRecord, error) {
	const op = "app.Usage"
	if p.UserID == "" {
		return nil, shared.E(shared.KindAuthentication, op, errors.New("no principal"))
	}
	if days <= 0 {
		days = 7
	}
	records, err := s.usage.UserUsage(ctx, p.UserID, days)
	if err != nil {
		return nil, shared.E(shared.KindInternal, op, err)
	}
	return records, nil
}

// authorize runs before any aggregation or provider work.
func (s *Service) authorize(ctx context.Context, p auth.Principal, op string) error {
	if p.UserID == "" {
		return shared.E(shared.KindAuthentication, op, errors.New("no principal"))
	}
	return s.entitlements.Check(ctx, p.UserID)
}

func (s *Service) logFailure(p auth.Principal, action string, err error) {
	log.WithFields(log.Fields{
		"user_id": p.UserID,
		"system":  p.System,
		"action":  action,
		"kind":    shared.KindOf(err).String(),
	}).Errorf("Action failed: %v", err)
}
