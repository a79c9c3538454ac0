package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore reads health data from the application's Postgres database.
type PostgresStore struct {
	db *sql.DB
}

// Open connects to the health database using the pgx driver.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open health database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to health database: %w", err)
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CycleSettings(ctx context.Context, userID string) (*CycleSettings, error) {
	var (
		cs   CycleSettings
		last sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT cycle_length, period_length, last_period_date FROM cycle_settings WHERE user_id = $1`,
		userID,
	).Scan(&cs.CycleLength, &cs.PeriodLength, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle settings for user %s: %w", userID, err)
	}
	if last.Valid {
		cs.LastPeriodDate = &last.Time
	}
	return &cs, nil
}

func (s *PostgresStore) CycleLogs(ctx context.Context, userID string, since time.Time) ([]CycleLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, COALESCE(flow_intensity, ''), COALESCE(symptoms, '[]'::jsonb), COALESCE(mood, ''), COALESCE(energy_level, 0)
		 FROM cycle_logs WHERE user_id = $1 AND date >= $2 ORDER BY date DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle logs for user %s: %w", userID, err)
	}
	defer rows.Close()

	var logs []CycleLog
	for rows.Next() {
		var (
			l        CycleLog
			symptoms []byte
		)
		if err := rows.Scan(&l.Date, &l.FlowIntensity, &symptoms, &l.Mood, &l.EnergyLevel); err != nil {
			return nil, fmt.Errorf("failed to scan cycle log: %w", err)
		}
		if l.Symptoms, err = decodeStrings(symptoms); err != nil {
			return nil, fmt.Errorf("failed to decode symptoms: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) ExerciseGoals(ctx context.Context, userID string) (*ExerciseGoals, error) {
	var (
		g     ExerciseGoals
		types []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT workouts_per_week, minutes_per_session, COALESCE(fitness_level, ''), COALESCE(preferred_types, '[]'::jsonb)
		 FROM exercise_goals WHERE user_id = $1`,
		userID,
	).Scan(&g.WorkoutsPerWeek, &g.MinutesPerSession, &g.FitnessLevel, &types)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exercise goals for user %s: %w", userID, err)
	}
	if g.PreferredTypes, err = decodeStrings(types); err != nil {
		return nil, fmt.Errorf("failed to decode preferred types: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) ExerciseEntries(ctx context.Context, userID string, since time.Time) ([]ExerciseEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, workout_type, duration_minutes, COALESCE(intensity, ''), COALESCE(calories_burned, 0), completed
		 FROM exercise_entries WHERE user_id = $1 AND date >= $2 ORDER BY date DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercise entries for user %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []ExerciseEntry
	for rows.Next() {
		var e ExerciseEntry
		if err := rows.Scan(&e.Date, &e.WorkoutType, &e.DurationMinutes, &e.Intensity, &e.CaloriesBurned, &e.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan exercise entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) NutritionGoals(ctx context.Context, userID string) (*NutritionGoals, error) {
	var g NutritionGoals
	err := s.db.QueryRowContext(ctx,
		`SELECT daily_calories, protein_g, carbs_g, fat_g, water_ml FROM nutrition_goals WHERE user_id = $1`,
		userID,
	).Scan(&g.DailyCalories, &g.ProteinG, &g.CarbsG, &g.FatG, &g.WaterMl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get nutrition goals for user %s: %w", userID, err)
	}
	return &g, nil
}

func (s *PostgresStore) Meals(ctx context.Context, userID string, since time.Time) ([]Meal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, meal_type, calories, protein_g, carbs_g, fat_g
		 FROM meals WHERE user_id = $1 AND date >= $2 ORDER BY date DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals for user %s: %w", userID, err)
	}
	defer rows.Close()

	var meals []Meal
	for rows.Next() {
		var m Meal
		if err := rows.Scan(&m.Date, &m.MealType, &m.Calories, &m.ProteinG, &m.CarbsG, &m.FatG); err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		meals = append(meals, m)
	}
	return meals, rows.Err()
}

func (s *PostgresStore) WaterEntries(ctx context.Context, userID string, since time.Time) ([]WaterEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, amount_ml FROM water_entries WHERE user_id = $1 AND date >= $2 ORDER BY date DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list water entries for user %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []WaterEntry
	for rows.Next() {
		var w WaterEntry
		if err := rows.Scan(&w.Date, &w.AmountMl); err != nil {
			return nil, fmt.Errorf("failed to scan water entry: %w", err)
		}
		entries = append(entries, w)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Preferences(ctx context.Context, userID string) (*Preferences, error) {
	var (
		p            Preferences
		restrictions []byte
		goals        []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(language, ''), COALESCE(units, ''), COALESCE(dietary_restrictions, '[]'::jsonb), COALESCE(goals, '[]'::jsonb)
		 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.Language, &p.Units, &restrictions, &goals)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences for user %s: %w", userID, err)
	}
	if p.DietaryRestrictions, err = decodeStrings(restrictions); err != nil {
		return nil, fmt.Errorf("failed to decode dietary restrictions: %w", err)
	}
	if p.Goals, err = decodeStrings(goals); err != nil {
		return nil, fmt.Errorf("failed to decode goals: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Subscription(ctx context.Context, userID string) (*Subscription, error) {
	var (
		sub     Subscription
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, expires_at FROM subscriptions WHERE user_id = $1 ORDER BY expires_at DESC NULLS FIRST LIMIT 1`,
		userID,
	).Scan(&sub.Status, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription for user %s: %w", userID, err)
	}
	if expires.Valid {
		sub.ExpiresAt = &expires.Time
	}
	return &sub, nil
}

func (s *PostgresStore) ActiveSubscribers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM subscriptions
		 WHERE status IN ('active', 'trialing') AND (expires_at IS NULL OR expires_at > now())`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscribers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func decodeStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
