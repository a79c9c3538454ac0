package planner

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"ai-cycle-planner/internal/aggregator"
	"ai-cycle-planner/internal/cycle"
	"ai-cycle-planner/internal/llm"
	"ai-cycle-planner/internal/shared"

	"github.com/google/uuid"
)

//go:embed system_prompt.md
var systemPrompt string

//go:embed weekly_plan_prompt.md
var weeklyPlanPrompt string

//go:embed daily_insight_prompt.md
var dailyInsightPrompt string

//go:embed adapt_plan_prompt.md
var adaptPlanPrompt string

var (
	systemTmpl  = template.Must(template.New("system").Parse(systemPrompt))
	weeklyTmpl  = template.Must(template.New("weekly").Parse(weeklyPlanPrompt))
	insightTmpl = template.Must(template.New("insight").Parse(dailyInsightPrompt))
	adaptTmpl   = template.Must(template.New("adapt").Parse(adaptPlanPrompt))
)

// Per-operation request settings. Fallback costs apply when the provider
// reports no token usage.
const (
	weeklyTemperature  = 0.7
	insightTemperature = 0.6
	adaptTemperature   = 0.3

	weeklyMaxTokens  = 8192
	insightMaxTokens = 1024
	adaptMaxTokens   = 4096

	weeklyFallbackCost  = 0.02
	insightFallbackCost = 0.005
	adaptFallbackCost   = 0.01
)

// Engine turns snapshots into plans, insights and adaptations.
type Engine struct {
	textGen llm.TextGenerator
	prices  *llm.PriceTable
	model   string
	now     func() time.Time
	newID   func() string
}

// NewEngine creates a new Engine. An empty model uses the provider default.
func NewEngine(textGen llm.TextGenerator, prices *llm.PriceTable, model string) *Engine {
	if prices == nil {
		prices = llm.DefaultPriceTable()
	}
	return &Engine{
		textGen: textGen,
		prices:  prices,
		model:   model,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

type systemPromptData struct {
	Language string
	Units    string
}

type weeklyPromptData struct {
	WeekStart    string
	ForecastJSON string
	SnapshotJSON string
}

type insightPromptData struct {
	Date         string
	Weekday      string
	PhaseJSON    string
	SnapshotJSON string
}

type adaptPromptData struct {
	Reason       string
	Instructions string
	Today        string
	PlanJSON     string
	SnapshotJSON string
}

type rawWeeklyPlan struct {
	Summary            string              `json:"summary"`
	ExercisePlan       *ExercisePlan       `json:"exercise_plan"`
	NutritionPlan      *NutritionPlan      `json:"nutrition_plan"`
	DailyInsights      []DailyInsight      `json:"daily_insights"`
	AdaptationTriggers []AdaptationTrigger `json:"adaptation_triggers"`
	SuccessMetrics     *SuccessMetrics     `json:"success_metrics"`
}

type rawInsight struct {
	Summary           string            `json:"summary"`
	EnergyPrediction  *EnergyPrediction `json:"energy_prediction"`
	ExerciseGuidance  []string          `json:"exercise_guidance"`
	NutritionGuidance []string          `json:"nutrition_guidance"`
	SelfCare          []string          `json:"self_care"`
}

// GenerateWeeklyPlan creates a 7-day plan for the week starting at weekStart.
// The returned meta carries usage and cost whenever the provider answered, even
// if the answer failed validation.
func (e *Engine) GenerateWeeklyPlan(ctx context.Context, snap *aggregator.Snapshot, weekStart time.Time) (*WeeklyPlan, shared.AgentMeta, error) {
	const op = "planner.GenerateWeeklyPlan"
	start := e.now()

	weekStart = WeekStart(weekStart)
	forecast := cycle.Forecast(snap.Cycle.Settings, weekStart, len(Weekdays))

	userMsg, err := render(weeklyTmpl, weeklyPromptData{
		WeekStart:    weekStart.Format(time.DateOnly),
		ForecastJSON: toJSON(forecast),
		SnapshotJSON: toJSON(snap),
	})
	if err != nil {
		return nil, shared.AgentMeta{}, shared.E(shared.KindInternal, op, err)
	}

	resp, meta, err := e.call(ctx, "WeeklyPlanner", snap, userMsg, weeklyTemperature, weeklyMaxTokens, weeklyFallbackCost)
	if err != nil {
		return nil, meta, shared.E(shared.KindProvider, op, err)
	}

	raw := rawWeeklyPlan{}
	if err := decodeResponse(op, "weekly plan", resp.Content, &raw); err != nil {
		return nil, meta, err
	}

	exercise, err := completeExercisePlan(raw.ExercisePlan, forecast)
	if err != nil {
		return nil, meta, shared.E(shared.KindValidation, op, err)
	}
	nutrition, err := completeNutritionPlan(raw.NutritionPlan, forecast, snap.Nutrition)
	if err != nil {
		return nil, meta, shared.E(shared.KindValidation, op, err)
	}
	insights, err := normalizeInsights(raw.DailyInsights, forecast)
	if err != nil {
		return nil, meta, shared.E(shared.KindValidation, op, err)
	}
	triggers, err := normalizeTriggers(raw.AdaptationTriggers)
	if err != nil {
		return nil, meta, shared.E(shared.KindValidation, op, err)
	}
	metrics := defaultSuccessMetrics(snap)
	if raw.SuccessMetrics != nil {
		metrics = mergeSuccessMetrics(*raw.SuccessMetrics, metrics)
	}

	now := e.now().UTC()
	plan := &WeeklyPlan{
		PlanID:        e.newID(),
		UserID:        snap.UserID,
		WeekStartDate: weekStart.Format(time.DateOnly),
		GenerationContext: GenerationContext{
			GeneratedAt:  now,
			Model:        meta.Usage.Model,
			CurrentPhase: snap.Cycle.CurrentPhase,
			Forecast:     forecast,
			Summary:      raw.Summary,
		},
		ExercisePlan:       exercise,
		NutritionPlan:      nutrition,
		DailyInsights:      insights,
		AdaptationTriggers: triggers,
		AdaptationHistory:  []AdaptationHistoryEntry{},
		SuccessMetrics:     metrics,
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}

	meta.Latency = e.now().Sub(start)
	return plan, meta, nil
}

// GenerateDailyInsight creates guidance for a single date.
func (e *Engine) GenerateDailyInsight(ctx context.Context, snap *aggregator.Snapshot, date time.Time) (*Insight, shared.AgentMeta, error) {
	const op = "planner.GenerateDailyInsight"
	start := e.now()

	date = cycle.Date(date)
	phase := cycle.Calculate(snap.Cycle.Settings, date)

	userMsg, err := render(insightTmpl, insightPromptData{
		Date:         date.Format(time.DateOnly),
		Weekday:      date.Weekday().String(),
		PhaseJSON:    toJSON(phase),
		SnapshotJSON: toJSON(snap),
	})
	if err != nil {
		return nil, shared.AgentMeta{}, shared.E(shared.KindInternal, op, err)
	}

	resp, meta, err := e.call(ctx, "DailyInsight", snap, userMsg, insightTemperature, insightMaxTokens, insightFallbackCost)
	if err != nil {
		return nil, meta, shared.E(shared.KindProvider, op, err)
	}

	raw := rawInsight{}
	if err := decodeResponse(op, "daily insight", resp.Content, &raw); err != nil {
		return nil, meta, err
	}

	prediction := EnergyPrediction{Level: phase.EnergyLevel}
	if raw.EnergyPrediction != nil {
		prediction.Summary = raw.EnergyPrediction.Summary
		if raw.EnergyPrediction.Level != "" {
			level, err := normalizeEnergy(raw.EnergyPrediction.Level)
			if err != nil {
				return nil, meta, shared.E(shared.KindValidation, op, err)
			}
			prediction.Level = level
		}
	}

	insight := &Insight{
		InsightID:         e.newID(),
		UserID:            snap.UserID,
		TargetDate:        date.Format(time.DateOnly),
		Phase:             phase,
		Summary:           raw.Summary,
		EnergyPrediction:  prediction,
		ExerciseGuidance:  nonNil(raw.ExerciseGuidance),
		NutritionGuidance: nonNil(raw.NutritionGuidance),
		SelfCare:          nonNil(raw.SelfCare),
		CreatedAt:         e.now().UTC(),
	}

	meta.Latency = e.now().Sub(start)
	return insight, meta, nil
}

// AdaptPlan asks for the changes the reason requires. Only affected days are
// returned; the caller merges them into the stored plan.
func (e *Engine) AdaptPlan(ctx context.Context, plan *WeeklyPlan, snap *aggregator.Snapshot, reason, instructions string) (Adaptation, shared.AgentMeta, error) {
	const op = "planner.AdaptPlan"
	start := e.now()

	userMsg, err := render(adaptTmpl, adaptPromptData{
		Reason:       reason,
		Instructions: instructions,
		Today:        e.now().UTC().Format(time.DateOnly) + " (" + strings.ToLower(e.now().UTC().Weekday().String()) + ")",
		PlanJSON:     toJSON(plan),
		SnapshotJSON: toJSON(snap),
	})
	if err != nil {
		return Adaptation{}, shared.AgentMeta{}, shared.E(shared.KindInternal, op, err)
	}

	resp, meta, err := e.call(ctx, "PlanAdapter", snap, userMsg, adaptTemperature, adaptMaxTokens, adaptFallbackCost)
	if err != nil {
		return Adaptation{}, meta, shared.E(shared.KindProvider, op, err)
	}

	raw := Adaptation{}
	if err := decodeResponse(op, "plan adaptation", resp.Content, &raw); err != nil {
		return Adaptation{}, meta, err
	}

	patch, err := normalizePatch(raw.Patch, snap.Nutrition)
	if err != nil {
		return Adaptation{}, meta, shared.E(shared.KindValidation, op, err)
	}

	changes := make([]string, 0, len(raw.ChangesMade))
	for _, c := range raw.ChangesMade {
		if c = strings.TrimSpace(c); c != "" {
			changes = append(changes, c)
		}
	}

	meta.Latency = e.now().Sub(start)
	return Adaptation{Patch: patch, ChangesMade: changes}, meta, nil
}

func (e *Engine) call(ctx context.Context, agent string, snap *aggregator.Snapshot, userMsg string, temperature float32, maxTokens int, fallbackCost float64) (llm.ContentResponse, shared.AgentMeta, error) {
	sysMsg, err := render(systemTmpl, systemPromptData{
		Language: snap.Preferences.Language,
		Units:    snap.Preferences.Units,
	})
	if err != nil {
		return llm.ContentResponse{}, shared.AgentMeta{AgentName: agent}, err
	}

	resp, err := e.textGen.GenerateContent(ctx, llm.Request{
		SystemMessage: sysMsg,
		UserMessage:   userMsg,
		Model:         e.model,
		Temperature:   temperature,
		MaxTokens:     maxTokens,
	})
	if err != nil {
		return resp, shared.AgentMeta{AgentName: agent}, err
	}

	if resp.Usage.Model == "" {
		resp.Usage.Model = e.model
	}
	return resp, shared.AgentMeta{
		AgentName:    agent,
		Usage:        resp.Usage,
		CostEstimate: e.prices.Estimate(resp.Usage, fallbackCost),
	}, nil
}

func normalizePatch(p PlanPatch, nutrition aggregator.NutritionData) (PlanPatch, error) {
	out := PlanPatch{}
	if len(p.ExerciseDays) > len(Weekdays) || len(p.NutritionDays) > len(Weekdays) {
		return out, fmt.Errorf("patch has more than %d days", len(Weekdays))
	}

	seen := map[string]bool{}
	for _, d := range p.ExerciseDays {
		nd, err := normalizeExerciseDay(d)
		if err != nil {
			return out, fmt.Errorf("patch exercise: %w", err)
		}
		if seen[nd.Day] {
			return out, fmt.Errorf("patch exercise: duplicate day %q", nd.Day)
		}
		seen[nd.Day] = true
		out.ExerciseDays = append(out.ExerciseDays, nd)
	}

	seen = map[string]bool{}
	for _, d := range p.NutritionDays {
		nd, err := normalizeNutritionDay(d, nutrition)
		if err != nil {
			return out, fmt.Errorf("patch nutrition: %w", err)
		}
		if seen[nd.Day] {
			return out, fmt.Errorf("patch nutrition: duplicate day %q", nd.Day)
		}
		seen[nd.Day] = true
		out.NutritionDays = append(out.NutritionDays, nd)
	}

	insights, err := normalizeInsights(p.DailyInsights, nil)
	if err != nil {
		return out, fmt.Errorf("patch: %w", err)
	}
	if len(insights) > 0 {
		out.DailyInsights = insights
	}

	triggers, err := normalizeTriggers(p.AdaptationTriggers)
	if err != nil {
		return out, fmt.Errorf("patch: %w", err)
	}
	if len(triggers) > 0 {
		out.AdaptationTriggers = triggers
	}
	return out, nil
}

func normalizeEnergy(level cycle.EnergyLevel) (cycle.EnergyLevel, error) {
	v := cycle.EnergyLevel(strings.ToLower(strings.TrimSpace(string(level))))
	switch v {
	case cycle.EnergyLow, cycle.EnergyBuilding, cycle.EnergyHigh, cycle.EnergyDeclining, cycle.EnergyModerate:
		return v, nil
	}
	return "", fmt.Errorf("unknown energy level %q", level)
}

func mergeSuccessMetrics(got, def SuccessMetrics) SuccessMetrics {
	if got.TargetWorkouts <= 0 {
		got.TargetWorkouts = def.TargetWorkouts
	}
	if got.TargetActiveMinutes <= 0 {
		got.TargetActiveMinutes = def.TargetActiveMinutes
	}
	if got.TargetAverageCalories <= 0 {
		got.TargetAverageCalories = def.TargetAverageCalories
	}
	if got.TargetAverageWaterMl <= 0 {
		got.TargetAverageWaterMl = def.TargetAverageWaterMl
	}
	if got.TargetLoggingDays <= 0 {
		got.TargetLoggingDays = def.TargetLoggingDays
	}
	if got.Goals == nil {
		got.Goals = def.Goals
	}
	return got
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
