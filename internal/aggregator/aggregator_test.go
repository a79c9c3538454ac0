package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-cycle-planner/internal/cycle"
	"ai-cycle-planner/internal/health"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	cycleSettings *health.CycleSettings
	cycleLogs     []health.CycleLog
	exGoals       *health.ExerciseGoals
	exEntries     []health.ExerciseEntry
	nutGoals      *health.NutritionGoals
	meals         []health.Meal
	water         []health.WaterEntry
	prefs         *health.Preferences
	sub           *health.Subscription

	failExercise bool
	failCycle    bool
}

var errBackend = errors.New("backend unavailable")

func (f *fakeStore) CycleSettings(ctx context.Context, userID string) (*health.CycleSettings, error) {
	if f.failCycle {
		return nil, errBackend
	}
	return f.cycleSettings, nil
}

func (f *fakeStore) CycleLogs(ctx context.Context, userID string, since time.Time) ([]health.CycleLog, error) {
	if f.failCycle {
		return nil, errBackend
	}
	return f.cycleLogs, nil
}

func (f *fakeStore) ExerciseGoals(ctx context.Context, userID string) (*health.ExerciseGoals, error) {
	if f.failExercise {
		return nil, errBackend
	}
	return f.exGoals, nil
}

func (f *fakeStore) ExerciseEntries(ctx context.Context, userID string, since time.Time) ([]health.ExerciseEntry, error) {
	if f.failExercise {
		return nil, errBackend
	}
	return f.exEntries, nil
}

func (f *fakeStore) NutritionGoals(ctx context.Context, userID string) (*health.NutritionGoals, error) {
	return f.nutGoals, nil
}

func (f *fakeStore) Meals(ctx context.Context, userID string, since time.Time) ([]health.Meal, error) {
	return f.meals, nil
}

func (f *fakeStore) WaterEntries(ctx context.Context, userID string, since time.Time) ([]health.WaterEntry, error) {
	return f.water, nil
}

func (f *fakeStore) Preferences(ctx context.Context, userID string) (*health.Preferences, error) {
	return f.prefs, nil
}

func (f *fakeStore) Subscription(ctx context.Context, userID string) (*health.Subscription, error) {
	return f.sub, nil
}

func (f *fakeStore) ActiveSubscribers(ctx context.Context) ([]string, error) {
	return nil, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestAggregate_EmptyUserGetsDefaults(t *testing.T) {
	agg := New(&fakeStore{}).WithClock(fixedClock(day("2024-03-11")))

	snap := agg.Aggregate(context.Background(), "user-1")

	require.NotNil(t, snap)
	assert.Equal(t, "user-1", snap.UserID)
	assert.Equal(t, cycle.PhaseUnknown, snap.Cycle.CurrentPhase.Phase)
	assert.Equal(t, 0, snap.Cycle.CurrentPhase.DayInCycle)
	assert.Equal(t, cycle.EnergyModerate, snap.Cycle.CurrentPhase.EnergyLevel)
	assert.Equal(t, DefaultExerciseGoals, snap.Exercise.Goals)
	assert.Equal(t, DefaultNutritionGoals, snap.Nutrition.Goals)
	assert.Equal(t, "en", snap.Preferences.Language)
	assert.NotNil(t, snap.Exercise.RecentEntries)
	assert.NotNil(t, snap.Nutrition.RecentMeals)
}

func TestAggregate_ZeroCycleSettingsIsUnknown(t *testing.T) {
	store := &fakeStore{cycleSettings: &health.CycleSettings{}}
	agg := New(store).WithClock(fixedClock(day("2024-03-11")))

	snap := agg.Aggregate(context.Background(), "user-1")

	assert.Equal(t, cycle.Unknown, snap.Cycle.CurrentPhase)
	assert.Equal(t, cycle.DefaultCycleLength, snap.Cycle.Settings.CycleLength)
}

func TestAggregate_ComputesCurrentPhase(t *testing.T) {
	last := day("2024-03-01")
	store := &fakeStore{cycleSettings: &health.CycleSettings{CycleLength: 28, PeriodLength: 5, LastPeriodDate: &last}}
	agg := New(store).WithClock(fixedClock(day("2024-03-11").Add(15 * time.Hour)))

	snap := agg.Aggregate(context.Background(), "user-1")

	assert.Equal(t, cycle.PhaseFollicular, snap.Cycle.CurrentPhase.Phase)
	assert.Equal(t, 11, snap.Cycle.CurrentPhase.DayInCycle)
	assert.Equal(t, 3, snap.Cycle.CurrentPhase.DaysRemainingInPhase)
}

func TestAggregate_FailingDomainDegrades(t *testing.T) {
	last := day("2024-03-01")
	store := &fakeStore{
		failExercise:  true,
		cycleSettings: &health.CycleSettings{CycleLength: 28, PeriodLength: 5, LastPeriodDate: &last},
		nutGoals:      &health.NutritionGoals{DailyCalories: 1800, ProteinG: 90, CarbsG: 200, FatG: 60, WaterMl: 2500},
	}
	agg := New(store).WithClock(fixedClock(day("2024-03-11")))

	snap := agg.Aggregate(context.Background(), "user-1")

	assert.Equal(t, DefaultExerciseGoals, snap.Exercise.Goals)
	assert.Empty(t, snap.Exercise.RecentEntries)
	assert.Equal(t, 1800, snap.Nutrition.Goals.DailyCalories)
	assert.Equal(t, cycle.PhaseFollicular, snap.Cycle.CurrentPhase.Phase)
}

func TestAggregate_FailingCycleDomainIsUnknown(t *testing.T) {
	agg := New(&fakeStore{failCycle: true}).WithClock(fixedClock(day("2024-03-11")))

	snap := agg.Aggregate(context.Background(), "user-1")

	assert.Equal(t, cycle.Unknown, snap.Cycle.CurrentPhase)
	assert.Empty(t, snap.Cycle.RecentLogs)
}

func TestAggregate_PreferencesOverlayDefaults(t *testing.T) {
	store := &fakeStore{prefs: &health.Preferences{Language: "pt", DietaryRestrictions: []string{"vegetarian"}}}
	agg := New(store).WithClock(fixedClock(day("2024-03-11")))

	snap := agg.Aggregate(context.Background(), "user-1")

	assert.Equal(t, "pt", snap.Preferences.Language)
	assert.Equal(t, "metric", snap.Preferences.Units)
	assert.Equal(t, []string{"vegetarian"}, snap.Preferences.DietaryRestrictions)
}

func TestExercisePatterns(t *testing.T) {
	entries := []health.ExerciseEntry{
		{WorkoutType: "yoga", DurationMinutes: 30, Completed: true},
		{WorkoutType: "yoga", DurationMinutes: 40, Completed: true},
		{WorkoutType: "run", DurationMinutes: 20, Completed: true},
		{WorkoutType: "run", DurationMinutes: 20, Completed: false},
	}

	p := exercisePatterns(entries, health.ExerciseGoals{WorkoutsPerWeek: 3}, 7*24*time.Hour)

	assert.Equal(t, 4, p.TotalEntries)
	assert.Equal(t, 0.75, p.CompletionRate)
	assert.Equal(t, 3.0, p.WorkoutsPerWeek)
	assert.Equal(t, 30.0, p.AverageDurationMinutes)
	assert.Equal(t, []string{"yoga", "run"}, p.PreferredTypes)
	assert.Equal(t, 1.0, p.GoalAdherence)
}

func TestNutritionPatterns(t *testing.T) {
	meals := []health.Meal{
		{Date: day("2024-03-01"), Calories: 500, ProteinG: 30},
		{Date: day("2024-03-01"), Calories: 700, ProteinG: 40},
		{Date: day("2024-03-02"), Calories: 1800, ProteinG: 80},
	}
	water := []health.WaterEntry{
		{Date: day("2024-03-01"), AmountMl: 1000},
		{Date: day("2024-03-01"), AmountMl: 500},
		{Date: day("2024-03-02"), AmountMl: 2500},
	}

	p := nutritionPatterns(meals, water, health.NutritionGoals{DailyCalories: 2000})

	assert.Equal(t, 2, p.LoggedDays)
	assert.Equal(t, 1.5, p.MealFrequency)
	assert.Equal(t, 1500.0, p.AverageDailyCalories)
	assert.Equal(t, 75.0, p.AverageDailyProteinG)
	assert.Equal(t, 2000.0, p.AverageDailyWaterMl)
	assert.Equal(t, 0.75, p.CalorieAdherence)
}

func TestCyclePatterns(t *testing.T) {
	logs := []health.CycleLog{
		{Symptoms: []string{"cramps", "fatigue"}, Mood: "calm", EnergyLevel: 2},
		{Symptoms: []string{"cramps"}, Mood: "calm", EnergyLevel: 4},
		{Symptoms: []string{"bloating"}, Mood: "irritable"},
	}

	p := cyclePatterns(logs)

	assert.Equal(t, 3, p.LogCount)
	assert.Equal(t, 3.0, p.AverageLoggedEnergy)
	assert.Equal(t, []string{"cramps", "bloating", "fatigue"}, p.CommonSymptoms)
	assert.Equal(t, "calm", p.CommonMood)
}
