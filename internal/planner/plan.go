package planner

import (
	"time"

	"ai-cycle-planner/internal/cycle"
)

// Intensity of a day's workout.
type Intensity string

const (
	IntensityRest     Intensity = "rest"
	IntensityLow      Intensity = "low"
	IntensityModerate Intensity = "moderate"
	IntensityHigh     Intensity = "high"
)

// Priority of an adaptation trigger.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Weekdays in plan order. Plan days are keyed by these names.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

type Exercise struct {
	Name            string `json:"name"`
	Sets            int    `json:"sets,omitempty"`
	Reps            string `json:"reps,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type ExerciseDay struct {
	Day             string            `json:"day"`
	Date            string            `json:"date"`
	Phase           cycle.Phase       `json:"phase"`
	EnergyLevel     cycle.EnergyLevel `json:"energy_level"`
	WorkoutType     string            `json:"workout_type"`
	Intensity       Intensity         `json:"intensity"`
	DurationMinutes int               `json:"duration_minutes"`
	Exercises       []Exercise        `json:"exercises"`
	Alternatives    []string          `json:"alternatives"`
	RestDay         bool              `json:"rest_day"`
	Notes           string            `json:"notes,omitempty"`
}

type ExercisePlan struct {
	WeeklyFocus string        `json:"weekly_focus"`
	Days        []ExerciseDay `json:"days"`
}

type NutritionDay struct {
	Day              string            `json:"day"`
	Date             string            `json:"date"`
	Phase            cycle.Phase       `json:"phase"`
	EnergyLevel      cycle.EnergyLevel `json:"energy_level"`
	Calories         int               `json:"calories"`
	ProteinG         int               `json:"protein_g"`
	CarbsG           int               `json:"carbs_g"`
	FatG             int               `json:"fat_g"`
	WaterMl          int               `json:"water_ml"`
	FoodsToEmphasize []string          `json:"foods_to_emphasize"`
	FoodsToAvoid     []string          `json:"foods_to_avoid"`
	MealIdeas        []string          `json:"meal_ideas"`
	Notes            string            `json:"notes,omitempty"`
}

type NutritionPlan struct {
	WeeklyFocus string         `json:"weekly_focus"`
	Days        []NutritionDay `json:"days"`
}

// DailyInsight is the short guidance line for one day of the weekly plan.
type DailyInsight struct {
	Day     string      `json:"day"`
	Date    string      `json:"date"`
	Phase   cycle.Phase `json:"phase"`
	Focus   string      `json:"focus"`
	Message string      `json:"message"`
}

// AdaptationTrigger is a model-authored rule. Condition is an expression over
// the incoming domain event; see the adaptation package.
type AdaptationTrigger struct {
	Condition    string   `json:"condition"`
	Instructions string   `json:"instructions"`
	Priority     Priority `json:"priority"`
}

type AdaptationHistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Trigger     string    `json:"trigger"`
	Reason      string    `json:"reason"`
	ChangesMade []string  `json:"changes_made"`
	EventKey    string    `json:"event_key,omitempty"`
}

type SuccessMetrics struct {
	TargetWorkouts        int      `json:"target_workouts"`
	TargetActiveMinutes   int      `json:"target_active_minutes"`
	TargetAverageCalories int      `json:"target_average_calories"`
	TargetAverageWaterMl  int      `json:"target_average_water_ml"`
	TargetLoggingDays     int      `json:"target_logging_days"`
	Goals                 []string `json:"goals"`
}

// GenerationContext records what the plan was generated from.
type GenerationContext struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	Model        string              `json:"model"`
	CurrentPhase cycle.CurrentPhase  `json:"current_phase"`
	Forecast     []cycle.DayForecast `json:"forecast"`
	Summary      string              `json:"summary,omitempty"`
}

// WeeklyPlan is the stored plan for one user and one calendar week.
type WeeklyPlan struct {
	PlanID             string                   `json:"plan_id"`
	UserID             string                   `json:"user_id"`
	WeekStartDate      string                   `json:"week_start_date"`
	GenerationContext  GenerationContext        `json:"generation_context"`
	ExercisePlan       ExercisePlan             `json:"exercise_plan"`
	NutritionPlan      NutritionPlan            `json:"nutrition_plan"`
	DailyInsights      []DailyInsight           `json:"daily_insights"`
	AdaptationTriggers []AdaptationTrigger      `json:"adaptation_triggers"`
	AdaptationHistory  []AdaptationHistoryEntry `json:"adaptation_history"`
	SuccessMetrics     SuccessMetrics           `json:"success_metrics"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
	// Version guards concurrent adaptation writes.
	Version int `json:"-"`
}

type EnergyPrediction struct {
	Level   cycle.EnergyLevel `json:"level"`
	Summary string            `json:"summary"`
}

// Insight is the cached daily insight for a user and date.
type Insight struct {
	InsightID         string             `json:"insight_id"`
	UserID            string             `json:"user_id"`
	TargetDate        string             `json:"target_date"`
	Phase             cycle.CurrentPhase `json:"phase"`
	Summary           string             `json:"summary"`
	EnergyPrediction  EnergyPrediction   `json:"energy_prediction"`
	ExerciseGuidance  []string           `json:"exercise_guidance"`
	NutritionGuidance []string           `json:"nutrition_guidance"`
	SelfCare          []string           `json:"self_care"`
	CreatedAt         time.Time          `json:"created_at"`
}

// PlanPatch holds only the days and fields an adaptation changes.
type PlanPatch struct {
	ExerciseDays       []ExerciseDay       `json:"exercise_days,omitempty"`
	NutritionDays      []NutritionDay      `json:"nutrition_days,omitempty"`
	DailyInsights      []DailyInsight      `json:"daily_insights,omitempty"`
	AdaptationTriggers []AdaptationTrigger `json:"adaptation_triggers,omitempty"`
	// Forecast, when set, replaces every day's date, phase and energy.
	Forecast []cycle.DayForecast `json:"-"`
}

// Empty reports whether the patch changes nothing.
func (p PlanPatch) Empty() bool {
	return len(p.ExerciseDays) == 0 && len(p.NutritionDays) == 0 &&
		len(p.DailyInsights) == 0 && len(p.AdaptationTriggers) == 0 &&
		len(p.Forecast) == 0
}

// Adaptation is the engine's answer to an adaptation request.
type Adaptation struct {
	Patch       PlanPatch `json:"patch"`
	ChangesMade []string  `json:"changes_made"`
}

// WeekStart returns the most recent Monday (UTC calendar date) at or before t.
func WeekStart(t time.Time) time.Time {
	d := cycle.Date(t.UTC())
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WeekStartDate formats WeekStart(t) as YYYY-MM-DD.
func WeekStartDate(t time.Time) string {
	return WeekStart(t).Format(time.DateOnly)
}
