// Package health reads the tracking application's health data. The engine never writes here.
package health

import (
	"context"
	"time"
)

// CycleSettings is the user's configured cycle.
type CycleSettings struct {
	CycleLength    int        `json:"cycle_length"`
	PeriodLength   int        `json:"period_length"`
	LastPeriodDate *time.Time `json:"last_period_date,omitempty"`
}

// CycleLog is a daily cycle entry. EnergyLevel is 1-5, zero when not logged.
type CycleLog struct {
	Date          time.Time `json:"date"`
	FlowIntensity string    `json:"flow_intensity,omitempty"`
	Symptoms      []string  `json:"symptoms,omitempty"`
	Mood          string    `json:"mood,omitempty"`
	EnergyLevel   int       `json:"energy_level,omitempty"`
}

type ExerciseGoals struct {
	WorkoutsPerWeek   int      `json:"workouts_per_week"`
	MinutesPerSession int      `json:"minutes_per_session"`
	FitnessLevel      string   `json:"fitness_level"`
	PreferredTypes    []string `json:"preferred_types,omitempty"`
}

type ExerciseEntry struct {
	Date            time.Time `json:"date"`
	WorkoutType     string    `json:"workout_type"`
	DurationMinutes int       `json:"duration_minutes"`
	Intensity       string    `json:"intensity"`
	CaloriesBurned  int       `json:"calories_burned,omitempty"`
	Completed       bool      `json:"completed"`
}

type NutritionGoals struct {
	DailyCalories int `json:"daily_calories"`
	ProteinG      int `json:"protein_g"`
	CarbsG        int `json:"carbs_g"`
	FatG          int `json:"fat_g"`
	WaterMl       int `json:"water_ml"`
}

type Meal struct {
	Date     time.Time `json:"date"`
	MealType string    `json:"meal_type"`
	Calories int       `json:"calories"`
	ProteinG float64   `json:"protein_g"`
	CarbsG   float64   `json:"carbs_g"`
	FatG     float64   `json:"fat_g"`
}

type WaterEntry struct {
	Date     time.Time `json:"date"`
	AmountMl int       `json:"amount_ml"`
}

// Preferences come from the user's profile.
type Preferences struct {
	Language            string   `json:"language"`
	Units               string   `json:"units"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	Goals               []string `json:"goals,omitempty"`
}

// Subscription is the user's entitlement state.
type Subscription struct {
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the subscription grants access at now.
func (s *Subscription) Active(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != "active" && s.Status != "trialing" {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// Store is the read side of the health-data backend. Single-row lookups return
// nil without error when the user has no row.
type Store interface {
	CycleSettings(ctx context.Context, userID string) (*CycleSettings, error)
	CycleLogs(ctx context.Context, userID string, since time.Time) ([]CycleLog, error)
	ExerciseGoals(ctx context.Context, userID string) (*ExerciseGoals, error)
	ExerciseEntries(ctx context.Context, userID string, since time.Time) ([]ExerciseEntry, error)
	NutritionGoals(ctx context.Context, userID string) (*NutritionGoals, error)
	Meals(ctx context.Context, userID string, since time.Time) ([]Meal, error)
	WaterEntries(ctx context.Context, userID string, since time.Time) ([]WaterEntry, error)
	Preferences(ctx context.Context, userID string) (*Preferences, error)
	Subscription(ctx context.Context, userID string) (*Subscription, error)
	ActiveSubscribers(ctx context.Context) ([]string, error)
}
