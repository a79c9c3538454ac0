// Package aggregator builds the cross-domain snapshot used as generation input.
package aggregator

import (
	"context"
	"sync"
	"time"

	"ai-cycle-planner/internal/cycle"
	"ai-cycle-planner/internal/health"

	log "github.com/sirupsen/logrus"
)

const (
	cycleLookback    = 90 * 24 * time.Hour
	activityLookback = 30 * 24 * time.Hour
)

// Aggregator reads the health store and derives features. A failing domain
// degrades to defaults; Aggregate never returns an error.
type Aggregator struct {
	store health.Store
	now   func() time.Time
}

// New creates an Aggregator over the given store.
func New(store health.Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Aggregate fetches all domains concurrently and returns a fresh snapshot.
func (a *Aggregator) Aggregate(ctx context.Context, userID string) *Snapshot {
	now := a.now().UTC()
	snap := &Snapshot{UserID: userID, GeneratedAt: now}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		snap.Cycle = a.cycleData(ctx, userID, now)
	}()
	go func() {
		defer wg.Done()
		snap.Exercise = a.exerciseData(ctx, userID, now)
	}()
	go func() {
		defer wg.Done()
		snap.Nutrition = a.nutritionData(ctx, userID, now)
	}()
	go func() {
		defer wg.Done()
		snap.Preferences = a.preferences(ctx, userID)
	}()
	wg.Wait()

	return snap
}

func (a *Aggregator) cycleData(ctx context.Context, userID string, now time.Time) CycleData {
	settings := cycle.DefaultSettings()

	cs, err := a.store.CycleSettings(ctx, userID)
	if err != nil {
		degraded(userID, "cycle_settings", err)
	} else if cs != nil {
		settings = cycle.Settings{
			CycleLength:    cs.CycleLength,
			PeriodLength:   cs.PeriodLength,
			LastPeriodDate: cs.LastPeriodDate,
		}.Normalize()
	}

	logs, err := a.store.CycleLogs(ctx, userID, now.Add(-cycleLookback))
	if err != nil {
		degraded(userID, "cycle_logs", err)
		logs = nil
	}

	return CycleData{
		CurrentPhase: cycle.Calculate(settings, now),
		Settings:     settings,
		RecentLogs:   nonNil(logs),
		Patterns:     cyclePatterns(logs),
	}
}

func (a *Aggregator) exerciseData(ctx context.Context, userID string, now time.Time) ExerciseData {
	goals := DefaultExerciseGoals

	g, err := a.store.ExerciseGoals(ctx, userID)
	if err != nil {
		degraded(userID, "exercise_goals", err)
	} else if g != nil {
		goals = *g
	}

	entries, err := a.store.ExerciseEntries(ctx, userID, now.Add(-activityLookback))
	if err != nil {
		degraded(userID, "exercise_entries", err)
		entries = nil
	}

	return ExerciseData{
		Goals:         goals,
		RecentEntries: nonNil(entries),
		Patterns:      exercisePatterns(entries, goals, activityLookback),
	}
}

func (a *Aggregator) nutritionData(ctx context.Context, userID string, now time.Time) NutritionData {
	goals := DefaultNutritionGoals

	g, err := a.store.NutritionGoals(ctx, userID)
	if err != nil {
		degraded(userID, "nutrition_goals", err)
	} else if g != nil {
		goals = *g
	}

	since := now.Add(-activityLookback)
	meals, err := a.store.Meals(ctx, userID, since)
	if err != nil {
		degraded(userID, "meals", err)
		meals = nil
	}
	water, err := a.store.WaterEntries(ctx, userID, since)
	if err != nil {
		degraded(userID, "water_entries", err)
		water = nil
	}

	return NutritionData{
		Goals:       goals,
		RecentMeals: nonNil(meals),
		RecentWater: nonNil(water),
		Patterns:    nutritionPatterns(meals, water, goals),
	}
}

func (a *Aggregator) preferences(ctx context.Context, userID string) UserPreferences {
	prefs := DefaultPreferences

	p, err := a.store.Preferences(ctx, userID)
	if err != nil {
		degraded(userID, "profiles", err)
		return prefs
	}
	if p == nil {
		return prefs
	}

	if p.Language != "" {
		prefs.Language = p.Language
	}
	if p.Units != "" {
		prefs.Units = p.Units
	}
	prefs.DietaryRestrictions = p.DietaryRestrictions
	prefs.Goals = p.Goals
	return prefs
}

func degraded(userID, domain string, err error) {
	log.WithFields(log.Fields{
		"user_id": userID,
		"domain":  domain,
	}).Warnf("Health data fetch failed, using defaults: %v", err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
