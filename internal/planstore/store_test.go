package planstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-cycle-planner/internal/aggregator"
	"ai-cycle-planner/internal/database"
	"ai-cycle-planner/internal/planner"
	"ai-cycle-planner/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshots struct{}

func (fakeSnapshots) Aggregate(ctx context.Context, userID string) *aggregator.Snapshot {
	return &aggregator.Snapshot{UserID: userID}
}

type fakeEngine struct {
	calls   atomic.Int32
	barrier *sync.WaitGroup
	err     error
}

func (f *fakeEngine) GenerateWeeklyPlan(ctx context.Context, snap *aggregator.Snapshot, weekStart time.Time) (*planner.WeeklyPlan, shared.AgentMeta, error) {
	n := f.calls.Add(1)
	if f.barrier != nil {
		f.barrier.Done()
		f.barrier.Wait()
	}
	meta := shared.AgentMeta{AgentName: "WeeklyPlanner", CostEstimate: 0.02}
	if f.err != nil {
		return nil, meta, f.err
	}
	now := time.Now().UTC()
	return &planner.WeeklyPlan{
		PlanID:        fmt.Sprintf("plan-%d", n),
		UserID:        snap.UserID,
		WeekStartDate: weekStart.Format(time.DateOnly),
		ExercisePlan:  planner.ExercisePlan{Days: []planner.ExerciseDay{{Day: "monday", WorkoutType: "rest"}}},
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}, meta, nil
}

func (f *fakeEngine) GenerateDailyInsight(ctx context.Context, snap *aggregator.Snapshot, date time.Time) (*planner.Insight, shared.AgentMeta, error) {
	n := f.calls.Add(1)
	meta := shared.AgentMeta{AgentName: "DailyInsight", CostEstimate: 0.005}
	if f.err != nil {
		return nil, meta, f.err
	}
	return &planner.Insight{
		InsightID:  fmt.Sprintf("insight-%d", n),
		UserID:     snap.UserID,
		TargetDate: date.Format(time.DateOnly),
		Summary:    fmt.Sprintf("summary %d", n),
	}, meta, nil
}

type recordedUsage struct {
	userID, feature string
	cost            float64
}

type fakeUsage struct {
	mu      sync.Mutex
	records []recordedUsage
}

func (f *fakeUsage) Record(ctx context.Context, userID, feature string, meta shared.AgentMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recordedUsage{userID, feature, meta.CostEstimate})
}

func newTestStore(t *testing.T, engine Generator) (*Store, *fakeUsage) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	usage := &fakeUsage{}
	return NewStore(db.SQL, fakeSnapshots{}, engine, usage, 24*time.Hour), usage
}

func TestGetOrCreatePlan_CachesPerWeek(t *testing.T) {
	engine := &fakeEngine{}
	store, usage := newTestStore(t, engine)
	ctx := context.Background()
	wed := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

	plan, cached, cost, err := store.GetOrCreatePlan(ctx, "user-1", wed)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 0.02, cost)
	assert.Equal(t, "2024-03-11", plan.WeekStartDate)

	again, cached, cost, err := store.GetOrCreatePlan(ctx, "user-1", wed.Add(72*time.Hour))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Zero(t, cost)
	assert.Equal(t, plan.PlanID, again.PlanID)
	assert.Equal(t, 1, again.Version)

	assert.Equal(t, int32(1), engine.calls.Load())
	require.Len(t, usage.records, 1)
	assert.Equal(t, FeatureWeeklyPlan, usage.records[0].feature)
}

func TestGetOrCreatePlan_ConcurrentFirstRequests(t *testing.T) {
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	engine := &fakeEngine{barrier: barrier}
	store, _ := newTestStore(t, engine)
	week := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	ids := make([]string, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _, _, err := store.GetOrCreatePlan(context.Background(), "user-1", week)
			errs[i] = err
			if p != nil {
				ids[i] = p.PlanID
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(2), engine.calls.Load())
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[1])
}

func TestGetOrCreatePlan_FailureWritesNothing(t *testing.T) {
	engine := &fakeEngine{err: shared.Validationf("planner.GenerateWeeklyPlan", "no JSON object")}
	store, usage := newTestStore(t, engine)
	week := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	_, _, _, err := store.GetOrCreatePlan(context.Background(), "user-1", week)
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	stored, err := store.Plans().Get(context.Background(), "user-1", "2024-03-11")
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Len(t, usage.records, 1, "the provider answered, so the call is billed")
}

func TestCurrentPlan_NotFound(t *testing.T) {
	store, _ := newTestStore(t, &fakeEngine{})

	_, err := store.CurrentPlan(context.Background(), "nobody")
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestListByUser_NewestWeekFirst(t *testing.T) {
	store, _ := newTestStore(t, &fakeEngine{})
	ctx := context.Background()
	first := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, _, _, err := store.GetOrCreatePlan(ctx, "user-1", first.AddDate(0, 0, 7*i))
		require.NoError(t, err)
	}
	_, _, _, err := store.GetOrCreatePlan(ctx, "user-2", first)
	require.NoError(t, err)

	plans, err := store.Plans().ListByUser(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "2024-03-18", plans[0].WeekStartDate)
	assert.Equal(t, "2024-03-11", plans[1].WeekStartDate)
	assert.Equal(t, 1, plans[0].Version)
}

func TestGetOrCreateInsight_CachedWithinTTL(t *testing.T) {
	engine := &fakeEngine{}
	store, _ := newTestStore(t, engine)
	now := time.Date(2024, 3, 13, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	first, cached, _, err := store.GetOrCreateInsight(ctx, "user-1", now)
	require.NoError(t, err)
	assert.False(t, cached)

	now = now.Add(23 * time.Hour)
	second, cached, cost, err := store.GetOrCreateInsight(ctx, "user-1", time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Zero(t, cost)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestGetOrCreateInsight_RegeneratesWhenStale(t *testing.T) {
	engine := &fakeEngine{}
	store, _ := newTestStore(t, engine)
	now := time.Date(2024, 3, 13, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	first, _, _, err := store.GetOrCreateInsight(ctx, "user-1", now)
	require.NoError(t, err)

	now = now.Add(25 * time.Hour)
	second, cached, _, err := store.GetOrCreateInsight(ctx, "user-1", time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.NotEqual(t, first.InsightID, second.InsightID)
	assert.Equal(t, now.UTC(), second.CreatedAt)
}

func TestSaveIfStale_KeepsFreshRow(t *testing.T) {
	store, _ := newTestStore(t, &fakeEngine{})
	ctx := context.Background()
	now := time.Date(2024, 3, 13, 8, 0, 0, 0, time.UTC)

	fresh := &planner.Insight{InsightID: "fresh", UserID: "u", TargetDate: "2024-03-13", CreatedAt: now}
	_, err := store.insights.SaveIfStale(ctx, fresh, now.Add(-24*time.Hour))
	require.NoError(t, err)

	late := &planner.Insight{InsightID: "late", UserID: "u", TargetDate: "2024-03-13", CreatedAt: now.Add(time.Minute)}
	stored, err := store.insights.SaveIfStale(ctx, late, now.Add(time.Minute-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.InsightID)
}
