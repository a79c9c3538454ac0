package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"ai-cycle-planner/internal/aggregator"
	"ai-cycle-planner/internal/cycle"
	"ai-cycle-planner/internal/llm"
	"ai-cycle-planner/internal/shared"
)

// decodeResponse extracts the JSON object from a model response and decodes it into v.
func decodeResponse(op, what, content string, v any) error {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return shared.Validationf(op, "no JSON object in %s response. Response: %s", what, truncate(content, 500))
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return shared.E(shared.KindValidation, op,
			fmt.Errorf("failed to parse %s response %w. Response: %s", what, err, truncate(content, 500)))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func normalizeDayName(name string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(name))
	for _, w := range Weekdays {
		if d == w {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown day %q", name)
}

func normalizeIntensity(i Intensity, restDay bool) (Intensity, error) {
	v := Intensity(strings.ToLower(strings.TrimSpace(string(i))))
	switch v {
	case "":
		if restDay {
			return IntensityRest, nil
		}
		return IntensityModerate, nil
	case IntensityRest, IntensityLow, IntensityModerate, IntensityHigh:
		return v, nil
	}
	return "", fmt.Errorf("unknown intensity %q", i)
}

func normalizePriority(p Priority) (Priority, error) {
	v := Priority(strings.ToLower(strings.TrimSpace(string(p))))
	switch v {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return v, nil
	}
	return "", fmt.Errorf("unknown priority %q", p)
}

// forecastByDay indexes a 7-day forecast starting on Monday by weekday name.
func forecastByDay(forecast []cycle.DayForecast) map[string]cycle.DayForecast {
	out := make(map[string]cycle.DayForecast, len(forecast))
	for _, f := range forecast {
		out[strings.ToLower(f.Weekday)] = f
	}
	return out
}

func restDay(day string, f cycle.DayForecast) ExerciseDay {
	return ExerciseDay{
		Day:          day,
		Date:         f.Date,
		Phase:        f.Phase,
		EnergyLevel:  f.EnergyLevel,
		WorkoutType:  "rest",
		Intensity:    IntensityRest,
		Exercises:    []Exercise{},
		Alternatives: []string{},
		RestDay:      true,
	}
}

func defaultNutritionDay(day string, f cycle.DayForecast, goals aggregator.NutritionData) NutritionDay {
	return NutritionDay{
		Day:              day,
		Date:             f.Date,
		Phase:            f.Phase,
		EnergyLevel:      f.EnergyLevel,
		Calories:         goals.Goals.DailyCalories,
		ProteinG:         goals.Goals.ProteinG,
		CarbsG:           goals.Goals.CarbsG,
		FatG:             goals.Goals.FatG,
		WaterMl:          goals.Goals.WaterMl,
		FoodsToEmphasize: []string{},
		FoodsToAvoid:     []string{},
		MealIdeas:        []string{},
	}
}

func normalizeExerciseDay(d ExerciseDay) (ExerciseDay, error) {
	day, err := normalizeDayName(d.Day)
	if err != nil {
		return d, err
	}
	d.Day = day
	d.Intensity, err = normalizeIntensity(d.Intensity, d.RestDay)
	if err != nil {
		return d, fmt.Errorf("%s: %w", day, err)
	}
	if d.Intensity == IntensityRest {
		d.RestDay = true
	}
	if d.Exercises == nil {
		d.Exercises = []Exercise{}
	}
	if d.Alternatives == nil {
		d.Alternatives = []string{}
	}
	return d, nil
}

func normalizeNutritionDay(d NutritionDay, nutrition aggregator.NutritionData) (NutritionDay, error) {
	day, err := normalizeDayName(d.Day)
	if err != nil {
		return d, err
	}
	d.Day = day
	if d.Calories <= 0 {
		d.Calories = nutrition.Goals.DailyCalories
	}
	if d.ProteinG <= 0 {
		d.ProteinG = nutrition.Goals.ProteinG
	}
	if d.CarbsG <= 0 {
		d.CarbsG = nutrition.Goals.CarbsG
	}
	if d.FatG <= 0 {
		d.FatG = nutrition.Goals.FatG
	}
	if d.WaterMl <= 0 {
		d.WaterMl = nutrition.Goals.WaterMl
	}
	if d.FoodsToEmphasize == nil {
		d.FoodsToEmphasize = []string{}
	}
	if d.FoodsToAvoid == nil {
		d.FoodsToAvoid = []string{}
	}
	if d.MealIdeas == nil {
		d.MealIdeas = []string{}
	}
	return d, nil
}

// completeExercisePlan validates days, fills missing ones with rest days and
// overwrites phase and energy with the forecast.
func completeExercisePlan(p *ExercisePlan, forecast []cycle.DayForecast) (ExercisePlan, error) {
	out := ExercisePlan{}
	var days []ExerciseDay
	if p != nil {
		out.WeeklyFocus = p.WeeklyFocus
		days = p.Days
	}
	if len(days) > len(Weekdays) {
		return out, fmt.Errorf("exercise plan has %d days", len(days))
	}

	byDay := map[string]ExerciseDay{}
	for _, d := range days {
		nd, err := normalizeExerciseDay(d)
		if err != nil {
			return out, fmt.Errorf("exercise plan: %w", err)
		}
		if _, dup := byDay[nd.Day]; dup {
			return out, fmt.Errorf("exercise plan: duplicate day %q", nd.Day)
		}
		byDay[nd.Day] = nd
	}

	fc := forecastByDay(forecast)
	out.Days = make([]ExerciseDay, 0, len(Weekdays))
	for _, name := range Weekdays {
		f := fc[name]
		d, ok := byDay[name]
		if !ok {
			d = restDay(name, f)
		}
		d.Date, d.Phase, d.EnergyLevel = f.Date, f.Phase, f.EnergyLevel
		out.Days = append(out.Days, d)
	}
	return out, nil
}

func completeNutritionPlan(p *NutritionPlan, forecast []cycle.DayForecast, nutrition aggregator.NutritionData) (NutritionPlan, error) {
	out := NutritionPlan{}
	var days []NutritionDay
	if p != nil {
		out.WeeklyFocus = p.WeeklyFocus
		days = p.Days
	}
	if len(days) > len(Weekdays) {
		return out, fmt.Errorf("nutrition plan has %d days", len(days))
	}

	byDay := map[string]NutritionDay{}
	for _, d := range days {
		nd, err := normalizeNutritionDay(d, nutrition)
		if err != nil {
			return out, fmt.Errorf("nutrition plan: %w", err)
		}
		if _, dup := byDay[nd.Day]; dup {
			return out, fmt.Errorf("nutrition plan: duplicate day %q", nd.Day)
		}
		byDay[nd.Day] = nd
	}

	fc := forecastByDay(forecast)
	out.Days = make([]NutritionDay, 0, len(Weekdays))
	for _, name := range Weekdays {
		f := fc[name]
		d, ok := byDay[name]
		if !ok {
			d = defaultNutritionDay(name, f, nutrition)
		}
		d.Date, d.Phase, d.EnergyLevel = f.Date, f.Phase, f.EnergyLevel
		out.Days = append(out.Days, d)
	}
	return out, nil
}

func normalizeInsights(in []DailyInsight, forecast []cycle.DayForecast) ([]DailyInsight, error) {
	if len(in) > len(Weekdays) {
		return nil, fmt.Errorf("daily insights has %d days", len(in))
	}
	fc := forecastByDay(forecast)
	out := make([]DailyInsight, 0, len(in))
	for _, di := range in {
		day, err := normalizeDayName(di.Day)
		if err != nil {
			return nil, fmt.Errorf("daily insights: %w", err)
		}
		di.Day = day
		if f, ok := fc[day]; ok {
			di.Date, di.Phase = f.Date, f.Phase
		}
		out = append(out, di)
	}
	return out, nil
}

func normalizeTriggers(in []AdaptationTrigger) ([]AdaptationTrigger, error) {
	out := make([]AdaptationTrigger, 0, len(in))
	for _, t := range in {
		if strings.TrimSpace(t.Condition) == "" {
			continue
		}
		p, err := normalizePriority(t.Priority)
		if err != nil {
			return nil, fmt.Errorf("adaptation trigger: %w", err)
		}
		t.Priority = p
		out = append(out, t)
	}
	return out, nil
}

func defaultSuccessMetrics(snap *aggregator.Snapshot) SuccessMetrics {
	goals := snap.Preferences.Goals
	if goals == nil {
		goals = []string{}
	}
	return SuccessMetrics{
		TargetWorkouts:        snap.Exercise.Goals.WorkoutsPerWeek,
		TargetActiveMinutes:   snap.Exercise.Goals.WorkoutsPerWeek * snap.Exercise.Goals.MinutesPerSession,
		TargetAverageCalories: snap.Nutrition.Goals.DailyCalories,
		TargetAverageWaterMl:  snap.Nutrition.Goals.WaterMl,
		TargetLoggingDays:     5,
		Goals:                 goals,
	}
}
