package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestCycleSettings(t *testing.T) {
	ctx := context.Background()
	last := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM cycle_settings").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"cycle_length", "period_length", "last_period_date"}).
				AddRow(30, 6, last))

		cs, err := store.CycleSettings(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, cs)
		assert.Equal(t, 30, cs.CycleLength)
		assert.Equal(t, 6, cs.PeriodLength)
		require.NotNil(t, cs.LastPeriodDate)
		assert.True(t, last.Equal(*cs.LastPeriodDate))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NullPeriodDate", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM cycle_settings").
			WillReturnRows(sqlmock.NewRows([]string{"cycle_length", "period_length", "last_period_date"}).
				AddRow(28, 5, nil))

		cs, err := store.CycleSettings(ctx, "user-1")
		require.NoError(t, err)
		assert.Nil(t, cs.LastPeriodDate)
	})

	t.Run("NoRows", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM cycle_settings").
			WillReturnRows(sqlmock.NewRows([]string{"cycle_length", "period_length", "last_period_date"}))

		cs, err := store.CycleSettings(ctx, "user-1")
		require.NoError(t, err)
		assert.Nil(t, cs)
	})

	t.Run("QueryError", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM cycle_settings").WillReturnError(errors.New("connection reset"))

		_, err := store.CycleSettings(ctx, "user-1")
		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestCycleLogs(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM cycle_logs").
		WithArgs("user-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"date", "flow_intensity", "symptoms", "mood", "energy_level"}).
			AddRow(day, "medium", []byte(`["cramps","bloating"]`), "calm", 2).
			AddRow(day.AddDate(0, 0, -1), "", []byte(`[]`), "", 0))

	logs, err := store.CycleLogs(context.Background(), "user-1", since)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, []string{"cramps", "bloating"}, logs[0].Symptoms)
	assert.Equal(t, 2, logs[0].EnergyLevel)
	assert.Empty(t, logs[1].Symptoms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExerciseEntries(t *testing.T) {
	store, mock := newMockStore(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM exercise_entries").
		WillReturnRows(sqlmock.NewRows([]string{"date", "workout_type", "duration_minutes", "intensity", "calories_burned", "completed"}).
			AddRow(day, "strength", 45, "high", 320, true).
			AddRow(day, "yoga", 30, "low", 90, false))

	entries, err := store.ExerciseEntries(context.Background(), "user-1", day.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "strength", entries[0].WorkoutType)
	assert.True(t, entries[0].Completed)
	assert.False(t, entries[1].Completed)
}

func TestPreferences(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM profiles").
		WillReturnRows(sqlmock.NewRows([]string{"language", "units", "dietary_restrictions", "goals"}).
			AddRow("en", "metric", []byte(`["vegetarian"]`), []byte(`["build strength"]`)))

	p, err := store.Preferences(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "metric", p.Units)
	assert.Equal(t, []string{"vegetarian"}, p.DietaryRestrictions)
	assert.Equal(t, []string{"build strength"}, p.Goals)
}

func TestSubscriptionActive(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	var none *Subscription
	assert.False(t, none.Active(now))
	assert.True(t, (&Subscription{Status: "active"}).Active(now))
	assert.True(t, (&Subscription{Status: "trialing", ExpiresAt: &future}).Active(now))
	assert.False(t, (&Subscription{Status: "active", ExpiresAt: &past}).Active(now))
	assert.False(t, (&Subscription{Status: "canceled"}).Active(now))
}

func TestActiveSubscribers(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM subscriptions").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("a").AddRow("b"))

	ids, err := store.ActiveSubscribers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
