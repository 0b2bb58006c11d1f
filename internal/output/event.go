package output

import (
	"time"

	"reviewbot/internal/review"
)

// Lifecycle event types streamed in NDJSON mode.
const (
	EventRunStarted   = "run.started"
	EventItemStarted  = "item.started"
	EventFinding      = "finding"
	EventItemFinished = "item.finished"
	EventItemFailed   = "item.failed"
	EventRunFinished  = "run.finished"
)

// Event is a lifecycle record. Sinks receive Events and review.Finding values
// through Manager.Write; in NDJSON mode a Finding is wrapped as a "finding"
// event. JSON mode aggregates findings only.
type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Time      time.Time `json:"time,omitzero"`
	Namespace string    `json:"namespace,omitempty"`
	Item      string    `json:"item,omitempty"`
	*review.Finding

	Items     int      `json:"items,omitempty"`
	Tasks     []string `json:"tasks,omitempty"`
	Findings  int      `json:"findings,omitempty"`
	Succeeded int      `json:"succeeded,omitempty"`
	Failed    int      `json:"failed,omitempty"`
	Error     string   `json:"error,omitempty"`
	ExitCode  int      `json:"exit_code,omitempty"`
}

func eventFromFinding(f review.Finding) Event {
	return Event{Type: EventFinding, Item: f.Path(), Finding: &f}
}
