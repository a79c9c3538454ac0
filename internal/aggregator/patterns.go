package aggregator

import (
	"math"
	"sort"
	"time"

	"ai-cycle-planner/internal/health"
)

const maxCommonSymptoms = 3

func cyclePatterns(logs []health.CycleLog) CyclePatterns {
	p := CyclePatterns{LogCount: len(logs), CommonSymptoms: []string{}}
	if len(logs) == 0 {
		return p
	}

	var energySum, energyN int
	symptoms := map[string]int{}
	moods := map[string]int{}
	for _, l := range logs {
		if l.EnergyLevel > 0 {
			energySum += l.EnergyLevel
			energyN++
		}
		for _, s := range l.Symptoms {
			symptoms[s]++
		}
		if l.Mood != "" {
			moods[l.Mood]++
		}
	}

	if energyN > 0 {
		p.AverageLoggedEnergy = round2(float64(energySum) / float64(energyN))
	}
	p.CommonSymptoms = topKeys(symptoms, maxCommonSymptoms)
	if m := topKeys(moods, 1); len(m) == 1 {
		p.CommonMood = m[0]
	}
	return p
}

func exercisePatterns(entries []health.ExerciseEntry, goals health.ExerciseGoals, window time.Duration) ExercisePatterns {
	p := ExercisePatterns{TotalEntries: len(entries), PreferredTypes: []string{}}
	if len(entries) == 0 {
		return p
	}

	var completed, minutes int
	types := map[string]int{}
	for _, e := range entries {
		if !e.Completed {
			continue
		}
		completed++
		minutes += e.DurationMinutes
		if e.WorkoutType != "" {
			types[e.WorkoutType]++
		}
	}

	weeks := window.Hours() / (24 * 7)
	p.CompletionRate = round2(float64(completed) / float64(len(entries)))
	p.WorkoutsPerWeek = round2(float64(completed) / weeks)
	if completed > 0 {
		p.AverageDurationMinutes = round2(float64(minutes) / float64(completed))
	}
	p.PreferredTypes = topKeys(types, 3)
	if goals.WorkoutsPerWeek > 0 {
		p.GoalAdherence = round2(math.Min(1, p.WorkoutsPerWeek/float64(goals.WorkoutsPerWeek)))
	}
	return p
}

func nutritionPatterns(meals []health.Meal, water []health.WaterEntry, goals health.NutritionGoals) NutritionPatterns {
	var p NutritionPatterns

	days := map[string]struct{}{}
	var cal, protein, carbs, fat float64
	for _, m := range meals {
		days[m.Date.UTC().Format(time.DateOnly)] = struct{}{}
		cal += float64(m.Calories)
		protein += m.ProteinG
		carbs += m.CarbsG
		fat += m.FatG
	}

	waterDays := map[string]struct{}{}
	var waterMl float64
	for _, w := range water {
		waterDays[w.Date.UTC().Format(time.DateOnly)] = struct{}{}
		waterMl += float64(w.AmountMl)
	}

	p.LoggedDays = len(days)
	if n := float64(len(days)); n > 0 {
		p.MealFrequency = round2(float64(len(meals)) / n)
		p.AverageDailyCalories = round2(cal / n)
		p.AverageDailyProteinG = round2(protein / n)
		p.AverageDailyCarbsG = round2(carbs / n)
		p.AverageDailyFatG = round2(fat / n)
		if goals.DailyCalories > 0 {
			p.CalorieAdherence = round2(p.AverageDailyCalories / float64(goals.DailyCalories))
		}
	}
	if n := float64(len(waterDays)); n > 0 {
		p.AverageDailyWaterMl = round2(waterMl / n)
	}
	return p
}

// topKeys returns up to n keys ordered by count desc, then name.
func topKeys(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
