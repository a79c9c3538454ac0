package aggregator

import (
	"time"

	"ai-cycle-planner/internal/cycle"
	"ai-cycle-planner/internal/health"
)

// Snapshot is a read-only view of a user's cross-domain state, recomputed per request.
type Snapshot struct {
	UserID      string          `json:"user_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Cycle       CycleData       `json:"cycle_data"`
	Exercise    ExerciseData    `json:"exercise_data"`
	Nutrition   NutritionData   `json:"nutrition_data"`
	Preferences UserPreferences `json:"user_preferences"`
}

type CycleData struct {
	CurrentPhase cycle.CurrentPhase `json:"current_phase"`
	Settings     cycle.Settings     `json:"settings"`
	RecentLogs   []health.CycleLog  `json:"recent_logs"`
	Patterns     CyclePatterns      `json:"patterns"`
}

type CyclePatterns struct {
	LogCount            int      `json:"log_count"`
	AverageLoggedEnergy float64  `json:"average_logged_energy"`
	CommonSymptoms      []string `json:"common_symptoms"`
	CommonMood          string   `json:"common_mood,omitempty"`
}

type ExerciseData struct {
	Goals         health.ExerciseGoals   `json:"goals"`
	RecentEntries []health.ExerciseEntry `json:"recent_entries"`
	Patterns      ExercisePatterns       `json:"patterns"`
}

type ExercisePatterns struct {
	TotalEntries           int      `json:"total_entries"`
	CompletionRate         float64  `json:"completion_rate"`
	WorkoutsPerWeek        float64  `json:"workouts_per_week"`
	AverageDurationMinutes float64  `json:"average_duration_minutes"`
	PreferredTypes         []string `json:"preferred_types"`
	GoalAdherence          float64  `json:"goal_adherence"`
}

type NutritionData struct {
	Goals       health.NutritionGoals `json:"goals"`
	RecentMeals []health.Meal         `json:"recent_meals"`
	RecentWater []health.WaterEntry   `json:"recent_water"`
	Patterns    NutritionPatterns     `json:"patterns"`
}

type NutritionPatterns struct {
	LoggedDays           int     `json:"logged_days"`
	MealFrequency        float64 `json:"meal_frequency"`
	AverageDailyCalories float64 `json:"average_daily_calories"`
	AverageDailyProteinG float64 `json:"average_daily_protein_g"`
	AverageDailyCarbsG   float64 `json:"average_daily_carbs_g"`
	AverageDailyFatG     float64 `json:"average_daily_fat_g"`
	AverageDailyWaterMl  float64 `json:"average_daily_water_ml"`
	CalorieAdherence     float64 `json:"calorie_adherence"`
}

type UserPreferences struct {
	Language            string   `json:"language"`
	Units               string   `json:"units"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	Goals               []string `json:"goals"`
}

// Defaults used when a domain has no rows or its fetch fails.
var (
	DefaultExerciseGoals = health.ExerciseGoals{
		WorkoutsPerWeek:   3,
		MinutesPerSession: 30,
		FitnessLevel:      "beginner",
	}
	DefaultNutritionGoals = health.NutritionGoals{
		DailyCalories: 2000,
		ProteinG:      100,
		CarbsG:        250,
		FatG:          70,
		WaterMl:       2000,
	}
	DefaultPreferences = UserPreferences{
		Language: "en",
		Units:    "metric",
	}
)
