package adaptation

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"ai-cycle-planner/internal/aggregator"
	"ai-cycle-planner/internal/database"
	"ai-cycle-planner/internal/planner"
	"ai-cycle-planner/internal/planstore"
	"ai-cycle-planner/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshots struct{}

func (fakeSnapshots) Aggregate(ctx context.Context, userID string) *aggregator.Snapshot {
	return &aggregator.Snapshot{UserID: userID}
}

type fakeAdaptEngine struct {
	calls   atomic.Int32
	empty   bool
	err     error
	reasons []string
}

func (f *fakeAdaptEngine) AdaptPlan(ctx context.Context, plan *planner.WeeklyPlan, snap *aggregator.Snapshot, reason, instructions string) (planner.Adaptation, shared.AgentMeta, error) {
	f.calls.Add(1)
	f.reasons = append(f.reasons, reason)
	meta := shared.AgentMeta{AgentName: "PlanAdapter", CostEstimate: 0.01}
	if f.err != nil {
		return planner.Adaptation{}, meta, f.err
	}
	if f.empty {
		return planner.Adaptation{}, meta, nil
	}
	return planner.Adaptation{
		Patch: planner.PlanPatch{ExerciseDays: []planner.ExerciseDay{
			{Day: "friday", WorkoutType: "walking", Intensity: planner.IntensityLow},
		}},
		ChangesMade: []string{"Friday is now a walk: " + reason},
	}, meta, nil
}

type noopGenerator struct{}

func (noopGenerator) GenerateWeeklyPlan(ctx context.Context, snap *aggregator.Snapshot, weekStart time.Time) (*planner.WeeklyPlan, shared.AgentMeta, error) {
	return nil, shared.AgentMeta{}, errors.New("not used")
}

func (noopGenerator) GenerateDailyInsight(ctx context.Context, snap *aggregator.Snapshot, date time.Time) (*planner.Insight, shared.AgentMeta, error) {
	return nil, shared.AgentMeta{}, errors.New("not used")
}

func newTestAdapter(t *testing.T, engine Engine, withPlan bool) (*Adapter, *planstore.Store) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := planstore.NewStore(db.SQL, fakeSnapshots{}, noopGenerator{}, nil, 24*time.Hour)
	if withPlan {
		now := time.Now().UTC()
		days := make([]planner.ExerciseDay, 0, 7)
		for _, d := range planner.Weekdays {
			days = append(days, planner.ExerciseDay{Day: d, WorkoutType: "rest", Intensity: planner.IntensityRest})
		}
		_, inserted, err := store.Plans().InsertOrGet(context.Background(), &planner.WeeklyPlan{
			PlanID:        "plan-1",
			UserID:        "user-1",
			WeekStartDate: planner.WeekStartDate(now),
			ExercisePlan:  planner.ExercisePlan{Days: days},
			CreatedAt:     now,
			UpdatedAt:     now,
			Version:       1,
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}
	return NewAdapter(store, fakeSnapshots{}, engine, nil, nil), store
}

var skipped = Event{ID: "evt-1", UserID: "user-1", Table: "exercise_entries", EventType: "DELETE"}

func TestHandleEvent_WorkoutSkipped(t *testing.T) {
	engine := &fakeAdaptEngine{}
	adapter, store := newTestAdapter(t, engine, true)

	res, err := adapter.HandleEvent(context.Background(), skipped, "evt-1")
	require.NoError(t, err)

	assert.True(t, res.Adapted)
	assert.Equal(t, "workout skipped — redistribute weekly load", res.Decision.Reason)
	assert.Equal(t, 0.01, res.Cost)

	plan, err := store.CurrentPlan(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, plan.AdaptationHistory, 1)
	entry := plan.AdaptationHistory[0]
	assert.Equal(t, "workout_skipped", entry.Trigger)
	assert.Equal(t, "evt-1", entry.EventKey)
	assert.NotEmpty(t, entry.ChangesMade)
	assert.Equal(t, "walking", plan.ExercisePlan.Days[4].WorkoutType)
	assert.Equal(t, 2, plan.Version)
}

func TestHandleEvent_RedeliveryIsIgnored(t *testing.T) {
	engine := &fakeAdaptEngine{}
	adapter, store := newTestAdapter(t, engine, true)
	ctx := context.Background()

	_, err := adapter.HandleEvent(ctx, skipped, "evt-1")
	require.NoError(t, err)

	res, err := adapter.HandleEvent(ctx, skipped, "evt-1")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.False(t, res.Adapted)
	assert.Equal(t, int32(1), engine.calls.Load())

	plan, err := store.CurrentPlan(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, plan.AdaptationHistory, 1)
}

func TestHandleEvent_DuplicateCaughtAtWrite(t *testing.T) {
	engine := &fakeAdaptEngine{}
	adapter, store := newTestAdapter(t, engine, true)
	ctx := context.Background()

	plan, err := store.CurrentPlan(ctx, "user-1")
	require.NoError(t, err)

	// Two workers both passed the pre-check; only the first write lands.
	d := adapter.evaluator.Evaluate(skipped, plan)
	first, err := adapter.adapt(ctx, plan, d, "evt-1")
	require.NoError(t, err)
	second, err := adapter.adapt(ctx, plan, d, "evt-1")
	require.NoError(t, err)

	assert.True(t, first.Adapted)
	assert.True(t, second.Duplicate)

	plan, err = store.CurrentPlan(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, plan.AdaptationHistory, 1)
}

func TestHandleEvent_NAdaptations(t *testing.T) {
	adapter, store := newTestAdapter(t, &fakeAdaptEngine{}, true)
	ctx := context.Background()

	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		ev := skipped
		ev.ID = k
		res, err := adapter.HandleEvent(ctx, ev, k)
		require.NoError(t, err)
		require.True(t, res.Adapted)
	}

	plan, err := store.CurrentPlan(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, plan.AdaptationHistory, len(keys))
	for _, e := range plan.AdaptationHistory {
		assert.NotEmpty(t, e.ChangesMade)
	}
	assert.Equal(t, len(keys)+1, plan.Version)
}

func TestHandleEvent_NoPlanIsNoop(t *testing.T) {
	engine := &fakeAdaptEngine{}
	adapter, _ := newTestAdapter(t, engine, false)

	res, err := adapter.HandleEvent(context.Background(), skipped, "evt-1")

	require.NoError(t, err)
	assert.False(t, res.Adapted)
	assert.Zero(t, engine.calls.Load())
}

func TestHandleEvent_IrrelevantEvent(t *testing.T) {
	engine := &fakeAdaptEngine{}
	adapter, _ := newTestAdapter(t, engine, true)

	res, err := adapter.HandleEvent(context.Background(), Event{UserID: "user-1", Table: "meals", EventType: "INSERT"}, "evt-2")

	require.NoError(t, err)
	assert.False(t, res.Decision.ShouldAdapt)
	assert.Zero(t, engine.calls.Load())
}

func TestHandleEvent_EngineFailureLeavesPlan(t *testing.T) {
	adapter, store := newTestAdapter(t, &fakeAdaptEngine{err: shared.Validationf("planner.AdaptPlan", "bad")}, true)
	ctx := context.Background()

	_, err := adapter.HandleEvent(ctx, skipped, "evt-1")
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	plan, err := store.CurrentPlan(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, plan.AdaptationHistory)
	assert.Equal(t, 1, plan.Version)

	applied, err := store.EventApplied(ctx, "user-1", "evt-1")
	require.NoError(t, err)
	assert.False(t, applied, "a failed event must be retryable")
}

func TestHandleEvent_EmptyAdaptationAppendsNothing(t *testing.T) {
	adapter, store := newTestAdapter(t, &fakeAdaptEngine{empty: true}, true)

	res, err := adapter.HandleEvent(context.Background(), skipped, "evt-1")
	require.NoError(t, err)
	assert.False(t, res.Adapted)

	plan, err := store.CurrentPlan(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, plan.AdaptationHistory)
}

func TestAdapt_UserRequest(t *testing.T) {
	engine := &fakeAdaptEngine{}
	adapter, store := newTestAdapter(t, engine, true)

	res, err := adapter.Adapt(context.Background(), "user-1", "travelling this weekend")
	require.NoError(t, err)
	assert.True(t, res.Adapted)
	assert.Equal(t, []string{"travelling this weekend"}, engine.reasons)

	plan, err := store.CurrentPlan(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, plan.AdaptationHistory, 1)
	assert.Equal(t, "user_request", plan.AdaptationHistory[0].Trigger)
	assert.Empty(t, plan.AdaptationHistory[0].EventKey)
}

func TestAdapt_RequiresReasonAndPlan(t *testing.T) {
	adapter, _ := newTestAdapter(t, &fakeAdaptEngine{}, false)

	_, err := adapter.Adapt(context.Background(), "user-1", "")
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = adapter.Adapt(context.Background(), "user-1", "sick")
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}
