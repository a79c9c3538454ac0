// Package cycle computes menstrual-cycle phase and energy from cycle settings.
package cycle

import "time"

// Phase is a menstrual-cycle phase.
type Phase string

const (
	PhaseMenstrual  Phase = "menstrual"
	PhaseFollicular Phase = "follicular"
	PhaseOvulatory  Phase = "ovulatory"
	PhaseLuteal     Phase = "luteal"
	PhaseUnknown    Phase = "unknown"
)

// EnergyLevel is the expected energy for a phase.
type EnergyLevel string

const (
	EnergyLow       EnergyLevel = "low"
	EnergyBuilding  EnergyLevel = "building"
	EnergyHigh      EnergyLevel = "high"
	EnergyDeclining EnergyLevel = "declining"
	EnergyModerate  EnergyLevel = "moderate"
)

const (
	DefaultCycleLength  = 28
	DefaultPeriodLength = 5

	// Fixed day thresholds, not scaled by cycle length.
	follicularEndDay = 13
	ovulatoryEndDay  = 16
)

// Settings are the user's cycle settings. LastPeriodDate is nil when unknown.
type Settings struct {
	CycleLength    int        `json:"cycle_length"`
	PeriodLength   int        `json:"period_length"`
	LastPeriodDate *time.Time `json:"last_period_date,omitempty"`
}

// CurrentPhase describes where a user is in the cycle on a given day.
type CurrentPhase struct {
	Phase                Phase       `json:"phase"`
	DayInCycle           int         `json:"day_in_cycle"`
	EnergyLevel          EnergyLevel `json:"energy_level"`
	DaysRemainingInPhase int         `json:"days_remaining_in_phase"`
}

// Unknown is returned when there is not enough data to place the user in the cycle.
var Unknown = CurrentPhase{
	Phase:       PhaseUnknown,
	EnergyLevel: EnergyModerate,
}

// Normalize fills defaults for missing or invalid lengths.
func (s Settings) Normalize() Settings {
	if s.CycleLength <= 0 {
		s.CycleLength = DefaultCycleLength
	}
	if s.PeriodLength <= 0 {
		s.PeriodLength = DefaultPeriodLength
	}
	if s.PeriodLength > s.CycleLength {
		s.PeriodLength = s.CycleLength
	}
	return s
}

// DefaultSettings returns settings with default lengths and no period date.
func DefaultSettings() Settings {
	return Settings{}.Normalize()
}

// Calculate returns the phase for today.
func Calculate(s Settings, today time.Time) CurrentPhase {
	s = s.Normalize()
	if s.LastPeriodDate == nil || s.LastPeriodDate.IsZero() {
		return Unknown
	}

	daysSince := DaysBetween(*s.LastPeriodDate, today)
	day := ((daysSince%s.CycleLength)+s.CycleLength)%s.CycleLength + 1
	return PhaseForDay(day, s)
}

// PhaseForDay classifies a 1-indexed day of the cycle.
func PhaseForDay(day int, s Settings) CurrentPhase {
	s = s.Normalize()
	if day < 1 || day > s.CycleLength {
		return Unknown
	}

	var (
		phase  Phase
		energy EnergyLevel
		end    int
	)
	switch {
	case day <= s.PeriodLength:
		phase, energy, end = PhaseMenstrual, EnergyLow, s.PeriodLength
	case day <= follicularEndDay:
		phase, energy, end = PhaseFollicular, EnergyBuilding, follicularEndDay
	case day <= ovulatoryEndDay:
		phase, energy, end = PhaseOvulatory, EnergyHigh, ovulatoryEndDay
	default:
		phase, energy, end = PhaseLuteal, EnergyDeclining, s.CycleLength
	}
	if end > s.CycleLength {
		end = s.CycleLength
	}

	return CurrentPhase{
		Phase:                phase,
		DayInCycle:           day,
		EnergyLevel:          energy,
		DaysRemainingInPhase: end - day + 1,
	}
}

// DaysBetween counts whole calendar days from a to b, comparing UTC dates.
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// Date truncates t to midnight UTC of its UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
