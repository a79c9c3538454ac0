package adaptation

import "ai-cycle-planner/internal/planner"

// Rule is a built-in adaptation trigger.
type Rule struct {
	Name         string
	Condition    string
	Reason       string
	Instructions string
	Priority     planner.Priority
	// Realign refreshes the plan's phase forecast before merging.
	Realign bool
}

// DefaultRules are checked, in order, before a plan's own triggers.
var DefaultRules = []Rule{
	{
		Name:         "workout_skipped",
		Condition:    `table == "exercise_entries" && event_type == "DELETE"`,
		Reason:       "workout skipped — redistribute weekly load",
		Instructions: "Spread the missed training volume over the remaining days without adding a high intensity session on a low or declining energy day.",
		Priority:     planner.PriorityHigh,
	},
	{
		Name:         "workout_incomplete",
		Condition:    `table == "exercise_entries" && event_type == "UPDATE" && record?.completed == false && old_record?.completed == true`,
		Reason:       "workout marked incomplete — redistribute weekly load",
		Instructions: "Treat the session as missed and rebalance the rest of the week.",
		Priority:     planner.PriorityMedium,
	},
	{
		Name:         "cycle_settings_changed",
		Condition:    `table == "cycle_settings" && event_type in ["INSERT", "UPDATE"]`,
		Reason:       "cycle settings changed — align the plan with the new phase forecast",
		Instructions: "Adjust intensity and nutrition of the days whose phase changed.",
		Priority:     planner.PriorityHigh,
		Realign:      true,
	},
	{
		Name:         "low_energy_logged",
		Condition:    `table == "cycle_logs" && event_type == "INSERT" && (record?.energy_level ?? 5) <= 2`,
		Reason:       "low energy logged — lighten the next sessions",
		Instructions: "Lower intensity for the next two days and favour recovery and restorative meals.",
		Priority:     planner.PriorityMedium,
	},
	{
		Name:         "goals_changed",
		Condition:    `table in ["exercise_goals", "nutrition_goals"] && event_type == "UPDATE"`,
		Reason:       "goals updated — adjust targets for the rest of the week",
		Instructions: "Update the remaining days to the new goals.",
		Priority:     planner.PriorityMedium,
	},
}
