package cycle

import "time"

// DayForecast is the deterministic phase forecast for one calendar day.
type DayForecast struct {
	Date        string      `json:"date"`
	Weekday     string      `json:"weekday"`
	Phase       Phase       `json:"phase"`
	DayInCycle  int         `json:"day_in_cycle"`
	EnergyLevel EnergyLevel `json:"energy_level"`
}

// Forecast projects phase and energy for `days` consecutive days from start.
func Forecast(s Settings, start time.Time, days int) []DayForecast {
	start = Date(start)
	out := make([]DayForecast, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		p := Calculate(s, day)
		out = append(out, DayForecast{
			Date:        day.Format(time.DateOnly),
			Weekday:     day.Weekday().String(),
			Phase:       p.Phase,
			DayInCycle:  p.DayInCycle,
			EnergyLevel: p.EnergyLevel,
		})
	}
	return out
}
