// Package scheduler pre-generates weekly plans for active subscribers.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"ai-cycle-planner/internal/app"
	"ai-cycle-planner/internal/auth"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Subscribers lists the users to generate for.
type Subscribers interface {
	ActiveSubscribers(ctx context.Context) ([]string, error)
}

// PlanGenerator is the on-demand operation the scheduler reuses.
type PlanGenerator interface {
	GenerateWeeklyPlan(ctx context.Context, p auth.Principal) (app.PlanResult, error)
}

// Summary counts the outcome of one run.
type Summary struct {
	Users     int
	Generated int
	Cached    int
	Failed    int
	Cost      float64
}

// Scheduler runs weekly plan generation on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	subs    Subscribers
	plans   PlanGenerator
	timeout time.Duration
}

// New validates schedule (standard five-field cron, UTC) and registers the job.
func New(schedule string, subs Subscribers, plans PlanGenerator) (*Scheduler, error) {
	logger := cron.PrintfLogger(log.StandardLogger())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		subs:    subs,
		plans:   plans,
		timeout: 2 * time.Hour,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		log.WithField("next", e.Next.Format(time.RFC3339)).Info("Plan auto-generation scheduled")
	}
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn("Scheduler stop timed out with a run in progress")
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		log.Errorf("Plan auto-generation failed: %v", err)
	}
}

// RunOnce generates the current week's plan for every active subscriber.
// Users are processed one at a time; a failure for one user does not stop
// the run.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	users, err := s.subs.ActiveSubscribers(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list active subscribers: %w", err)
	}

	sum := Summary{Users: len(users)}
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}

		res, err := s.plans.GenerateWeeklyPlan(ctx, auth.SystemPrincipal(userID))
		sum.Cost += res.Cost
		switch {
		case err != nil:
			sum.Failed++
			log.WithField("user_id", userID).Warnf("Scheduled plan generation failed: %v", err)
		case res.Cached:
			sum.Cached++
		default:
			sum.Generated++
		}
	}

	log.WithFields(log.Fields{
		"users":     sum.Users,
		"generated": sum.Generated,
		"cached":    sum.Cached,
		"failed":    sum.Failed,
		"cost":      fmt.Sprintf("%.4f", sum.Cost),
	}).Info("Plan auto-generation finished")
	return sum, ctx.Err()
}
