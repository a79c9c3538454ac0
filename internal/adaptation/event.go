// Package adaptation decides when a domain change warrants updating the
// current weekly plan and drives the update.
package adaptation

import (
	"strings"
	"time"
)

// Event is a change to a row in the health-data store.
type Event struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Table      string         `json:"table"`
	EventType  string         `json:"event_type"`
	Record     map[string]any `json:"record"`
	OldRecord  map[string]any `json:"old_record"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// env is the expression environment for rule conditions.
func (e Event) env() map[string]any {
	record, old := e.Record, e.OldRecord
	if record == nil {
		record = map[string]any{}
	}
	if old == nil {
		old = map[string]any{}
	}
	return map[string]any{
		"user_id":    e.UserID,
		"table":      e.Table,
		"event_type": strings.ToUpper(e.EventType),
		"record":     record,
		"old_record": old,
	}
}
