package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reviewbot/internal/review"
)

// Producer is the external generative step behind every task.
type Producer interface {
	Run(ctx context.Context, req review.ProducerRequest) (string, error)
}

// Outcome is what one task contributes to an item's accumulator. Err is set
// when the task failed internally; Findings is then empty. Skipped names the
// allow-list pattern that exempted the item, if any.
type Outcome struct {
	Task      string
	Findings  []review.Finding
	Discarded int
	Skipped   string
	Err       error
}

// Executor runs any task descriptor against a producer.
type Executor struct {
	producer Producer
	logger   *slog.Logger
}

func NewExecutor(p Producer, logger *slog.Logger) (*Executor, error) {
	if p == nil {
		return nil, errors.New("producer is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{producer: p, logger: logger}, nil
}

// Execute runs t for item with the shared context text. It never returns an
// error: producer failures, panics and unparseable output become an Outcome
// with Err set and no findings.
func (e *Executor) Execute(ctx context.Context, t *Task, item review.WorkItem, contextText string) (out Outcome) {
	out.Task = t.Name()

	defer func() {
		if r := recover(); r != nil {
			out.Findings = nil
			out.Err = e.fail(item, t, &review.PanicError{Value: r})
		}
	}()

	if ok, pattern := t.AllowList().Skips(item.Identifier); ok {
		out.Skipped = pattern
		e.logger.Debug("task skipped by allow list", "item", item.Identifier, "task", t.Name(), "pattern", pattern)
		return out
	}

	d := t.Descriptor()
	text, err := e.producer.Run(ctx, review.ProducerRequest{
		Content:      item.Content,
		Context:      contextText,
		Identifier:   item.Identifier,
		Instructions: d.Prompt(),
	})
	if err != nil {
		out.Err = e.fail(item, t, fmt.Errorf("producer: %w", err))
		return out
	}

	parsed, err := ParseFindings(text, d, item.Identifier)
	if err != nil {
		out.Err = e.fail(item, t, err)
		return out
	}
	if parsed.Discarded > 0 {
		e.logger.Warn("discarded malformed finding entries", "item", item.Identifier, "task", t.Name(), "count", parsed.Discarded)
	}
	out.Discarded = parsed.Discarded

	allow := t.AllowList()
	for _, f := range parsed.Findings {
		if allow.Keep(f) {
			out.Findings = append(out.Findings, f)
		}
	}
	return out
}

func (e *Executor) fail(item review.WorkItem, t *Task, err error) error {
	se := &review.StageError{Stage: review.StageAnalysis, Identifier: item.Identifier, Task: t.Name(), Err: err}
	e.logger.Error("analysis task failed", "item", item.Identifier, "task", t.Name(), "stage", review.StageAnalysis, "error", err)
	return se
}
