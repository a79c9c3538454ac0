package planner

import (
	"fmt"
	"time"

	"ai-cycle-planner/internal/cycle"
)

// ApplyAdaptation merges the patch into the plan and appends one history entry.
// Patched days keep the plan's date, phase and energy. When the adaptation
// lists no changes they are derived from the patch.
func (p *WeeklyPlan) ApplyAdaptation(a Adaptation, entry AdaptationHistoryEntry, now time.Time) {
	changes := p.merge(a.Patch)
	if len(a.ChangesMade) > 0 {
		changes = a.ChangesMade
	}
	if len(changes) == 0 {
		changes = []string{"no plan changes required"}
	}

	entry.ChangesMade = changes
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	p.AdaptationHistory = append(p.AdaptationHistory, entry)
	p.UpdatedAt = now
}

func (p *WeeklyPlan) merge(patch PlanPatch) []string {
	var changes []string

	if len(patch.Forecast) > 0 {
		p.realign(patch.Forecast)
		p.GenerationContext.Forecast = patch.Forecast
		changes = append(changes, "realigned days with the updated cycle forecast")
	}

	for _, d := range patch.ExerciseDays {
		for i := range p.ExercisePlan.Days {
			cur := &p.ExercisePlan.Days[i]
			if cur.Day != d.Day {
				continue
			}
			d.Date, d.Phase, d.EnergyLevel = cur.Date, cur.Phase, cur.EnergyLevel
			*cur = d
			changes = append(changes, fmt.Sprintf("updated %s exercise", d.Day))
		}
	}

	for _, d := range patch.NutritionDays {
		for i := range p.NutritionPlan.Days {
			cur := &p.NutritionPlan.Days[i]
			if cur.Day != d.Day {
				continue
			}
			d.Date, d.Phase, d.EnergyLevel = cur.Date, cur.Phase, cur.EnergyLevel
			*cur = d
			changes = append(changes, fmt.Sprintf("updated %s nutrition", d.Day))
		}
	}

	for _, di := range patch.DailyInsights {
		replaced := false
		for i := range p.DailyInsights {
			if p.DailyInsights[i].Day == di.Day {
				di.Date, di.Phase = p.DailyInsights[i].Date, p.DailyInsights[i].Phase
				p.DailyInsights[i] = di
				replaced = true
			}
		}
		if !replaced {
			p.DailyInsights = append(p.DailyInsights, di)
		}
		changes = append(changes, fmt.Sprintf("updated %s insight", di.Day))
	}

	if len(patch.AdaptationTriggers) > 0 {
		p.AdaptationTriggers = patch.AdaptationTriggers
		changes = append(changes, "replaced adaptation triggers")
	}

	return changes
}

func (p *WeeklyPlan) realign(forecast []cycle.DayForecast) {
	fc := forecastByDay(forecast)
	for i := range p.ExercisePlan.Days {
		if f, ok := fc[p.ExercisePlan.Days[i].Day]; ok {
			d := &p.ExercisePlan.Days[i]
			d.Date, d.Phase, d.EnergyLevel = f.Date, f.Phase, f.EnergyLevel
		}
	}
	for i := range p.NutritionPlan.Days {
		if f, ok := fc[p.NutritionPlan.Days[i].Day]; ok {
			d := &p.NutritionPlan.Days[i]
			d.Date, d.Phase, d.EnergyLevel = f.Date, f.Phase, f.EnergyLevel
		}
	}
	for i := range p.DailyInsights {
		if f, ok := fc[p.DailyInsights[i].Day]; ok {
			p.DailyInsights[i].Date, p.DailyInsights[i].Phase = f.Date, f.Phase
		}
	}
}

// Clone copies the plan's slices so merging into the copy leaves p untouched.
func (p *WeeklyPlan) Clone() *WeeklyPlan {
	c := *p
	c.ExercisePlan.Days = cloneSlice(p.ExercisePlan.Days)
	c.NutritionPlan.Days = cloneSlice(p.NutritionPlan.Days)
	c.DailyInsights = cloneSlice(p.DailyInsights)
	c.AdaptationTriggers = cloneSlice(p.AdaptationTriggers)
	c.AdaptationHistory = cloneSlice(p.AdaptationHistory)
	c.GenerationContext.Forecast = cloneSlice(p.GenerationContext.Forecast)
	return &c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
