package telegram

import (
	"fmt"
	"strings"

	"ai-cycle-planner/internal/adaptation"
	"ai-cycle-planner/internal/metrics"
	"ai-cycle-planner/internal/planner"
)

func formatPlanMarkdown(plan *planner.WeeklyPlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 *Weekly Plan* (week of %s)\n", plan.WeekStartDate)
	if plan.ExercisePlan.WeeklyFocus != "" {
		fmt.Fprintf(&sb, "_%s_\n", plan.ExercisePlan.WeeklyFocus)
	}
	sb.WriteString("\n")

	nutrition := make(map[string]planner.NutritionDay, len(plan.NutritionPlan.Days))
	for _, d := range plan.NutritionPlan.Days {
		nutrition[d.Day] = d
	}

	for _, d := range plan.ExercisePlan.Days {
		fmt.Fprintf(&sb, "*%s* · %s, %s energy\n", titleCase(d.Day), d.Phase, d.EnergyLevel)
		if d.RestDay || d.Intensity == planner.IntensityRest {
			sb.WriteString("🧘 Rest day\n")
		} else {
			fmt.Fprintf(&sb, "🏃 %s, %d min (%s)\n", d.WorkoutType, d.DurationMinutes, d.Intensity)
		}
		if n, ok := nutrition[d.Day]; ok && n.Calories > 0 {
			fmt.Fprintf(&sb, "🍽 %d kcal · %dg protein · %d ml water\n", n.Calories, n.ProteinG, n.WaterMl)
		}
		sb.WriteString("\n")
	}

	m := plan.SuccessMetrics
	fmt.Fprintf(&sb, "🎯 *Targets:* %d workouts, %d active minutes", m.TargetWorkouts, m.TargetActiveMinutes)
	if len(plan.AdaptationHistory) > 0 {
		fmt.Fprintf(&sb, "\n🔄 Adapted %d time(s) this week", len(plan.AdaptationHistory))
	}
	return sb.String()
}

func formatInsightMarkdown(ins *planner.Insight) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🌙 *Today* (%s)\n", ins.TargetDate)
	if ins.Phase.DayInCycle > 0 {
		fmt.Fprintf(&sb, "Day %d · %s phase, %d day(s) left\n", ins.Phase.DayInCycle, ins.Phase.Phase, ins.Phase.DaysRemainingInPhase)
	}
	fmt.Fprintf(&sb, "\n%s\n", ins.Summary)
	if ins.EnergyPrediction.Summary != "" {
		fmt.Fprintf(&sb, "\n⚡ *Energy:* %s. %s\n", ins.EnergyPrediction.Level, ins.EnergyPrediction.Summary)
	}
	writeList(&sb, "🏃 *Movement*", ins.ExerciseGuidance)
	writeList(&sb, "🍽 *Nutrition*", ins.NutritionGuidance)
	writeList(&sb, "💆 *Self-care*", ins.SelfCare)
	return strings.TrimRight(sb.String(), "\n")
}

func formatAdaptationMarkdown(res adaptation.Result) string {
	if !res.Adapted || res.Plan == nil || len(res.Plan.AdaptationHistory) == 0 {
		return "✅ Your plan already fits. No changes needed."
	}
	last := res.Plan.AdaptationHistory[len(res.Plan.AdaptationHistory)-1]

	var sb strings.Builder
	sb.WriteString("✅ *Plan updated*\n")
	writeList(&sb, "", last.ChangesMade)
	return strings.TrimRight(sb.String(), "\n")
}

func formatUsageMarkdown(records []metrics.UsageRecord, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage (last 7 days)*\n\n")
	if len(records) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	var total float64
	for _, r := range records {
		fmt.Fprintf(&sb, "• *%s* %s: %d call(s), $%.4f\n", r.Date, strings.ReplaceAll(r.FeatureType, "_", " "), r.Count, r.CostEstimate)
		total += r.CostEstimate
	}
	if len(records) > 0 {
		fmt.Fprintf(&sb, "\nTotal: $%.4f\n", total)
	}

	sb.WriteString("\n🧠 *System Health*\n")
	fmt.Fprintf(&sb, "• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "• Database: %s", health.DatabaseSize)
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	if title != "" {
		fmt.Fprintf(sb, "\n%s\n", title)
	}
	for _, item := range items {
		fmt.Fprintf(sb, "• %s\n", item)
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
