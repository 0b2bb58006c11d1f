package output

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reviewbot/internal/pipeline"
)

// Emitter turns batch progress into lifecycle events on a Manager. It
// implements pipeline.Observer. Sink errors are logged, not returned, so a
// broken sink never fails a review.
type Emitter struct {
	m         *Manager
	runID     string
	namespace string
	now       func() time.Time
	logger    *slog.Logger
}

func NewEmitter(m *Manager, namespace string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{m: m, runID: uuid.NewString(), namespace: namespace, now: time.Now, logger: logger}
}

// RunID identifies this run on every event.
func (e *Emitter) RunID() string { return e.runID }

func (e *Emitter) write(v any) {
	if err := e.m.Write(v); err != nil {
		e.logger.Warn("output write failed", "run_id", e.runID, "error", err)
	}
}

func (e *Emitter) event(typ string) Event {
	return Event{Type: typ, RunID: e.runID, Time: e.now().UTC(), Namespace: e.namespace}
}

func (e *Emitter) RunStarted(items int, tasks []string) {
	ev := e.event(EventRunStarted)
	ev.Items = items
	ev.Tasks = tasks
	e.write(ev)
}

func (e *Emitter) ItemStarted(id string) {
	ev := e.event(EventItemStarted)
	ev.Item = id
	e.write(ev)
}

// ItemFinished writes each finding of the item followed by item.finished.
func (e *Emitter) ItemFinished(id string, res *pipeline.ItemResult) {
	for _, f := range res.Findings {
		e.write(f)
	}
	ev := e.event(EventItemFinished)
	ev.Item = id
	ev.Findings = len(res.Findings)
	ev.Tasks = res.CompletedTasks
	if len(res.Diagnostics) > 0 {
		ev.Error = res.Diagnostics[0].Error()
	}
	e.write(ev)
}

func (e *Emitter) ItemFailed(id, summary string, _ error) {
	ev := e.event(EventItemFailed)
	ev.Item = id
	ev.Error = summary
	e.write(ev)
}

func (e *Emitter) RunFinished(res *pipeline.BatchResult, exitCode int) {
	ev := e.event(EventRunFinished)
	ev.Items = res.ItemsConsidered
	ev.Succeeded = len(res.ItemsSucceeded)
	ev.Failed = len(res.ItemsFailed)
	ev.Findings = len(res.Findings)
	ev.ExitCode = exitCode
	e.write(ev)
}

var _ pipeline.Observer = (*Emitter)(nil)
