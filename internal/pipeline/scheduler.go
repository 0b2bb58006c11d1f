package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"reviewbot/internal/review"
)

// DefaultConcurrency is the number of items orchestrated at once when no limit is given.
const DefaultConcurrency = 3

// Pipeline is the per-item unit the scheduler runs. *Orchestrator implements it.
type Pipeline interface {
	Orchestrate(ctx context.Context, item review.WorkItem) (*ItemResult, error)
}

// ContentSource supplies work item content by namespace and identifier.
type ContentSource interface {
	Fetch(ctx context.Context, namespace, identifier string) (string, error)
}

// BatchItem is one entry of a batch whose content is already known.
type BatchItem struct {
	Identifier string
	Content    string
}

// Scheduler runs a Pipeline across many items with a fixed concurrency ceiling.
// A failing item is recorded and never affects its siblings.
type Scheduler struct {
	pipeline    Pipeline
	itemTimeout time.Duration
	summarize   func(error) string
	observer    Observer
	logger      *slog.Logger
}

type SchedulerOption func(*Scheduler)

// WithItemTimeout bounds each item's pipeline with its own deadline.
func WithItemTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.itemTimeout = d }
}

// WithErrorSummarizer controls how item failures are rendered into BatchResult.ItemsFailed.
func WithErrorSummarizer(fn func(error) string) SchedulerOption {
	return func(s *Scheduler) { s.summarize = fn }
}

func WithObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) { s.observer = o }
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

func NewScheduler(p Pipeline, opts ...SchedulerOption) (*Scheduler, error) {
	if p == nil {
		return nil, errors.New("pipeline is nil")
	}
	s := &Scheduler{pipeline: p}
	for _, apply := range opts {
		if apply != nil {
			apply(s)
		}
	}
	if s.summarize == nil {
		s.summarize = func(err error) string { return err.Error() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// RunBatch orchestrates every item in namespace with at most limit items in
// flight. A limit of 0 means DefaultConcurrency.
func (s *Scheduler) RunBatch(ctx context.Context, items []BatchItem, namespace string, limit int) (*BatchResult, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.Identifier
	}
	return s.run(ctx, ids, namespace, limit, func(_ context.Context, i int) (string, error) {
		return items[i].Content, nil
	})
}

// RunSourced is RunBatch for items whose content is fetched from src inside the
// item's slot. A fetch failure fails that item only.
func (s *Scheduler) RunSourced(ctx context.Context, src ContentSource, identifiers []string, namespace string, limit int) (*BatchResult, error) {
	if src == nil {
		return nil, errors.New("content source is nil")
	}
	return s.run(ctx, identifiers, namespace, limit, func(ctx context.Context, i int) (string, error) {
		return src.Fetch(ctx, namespace, identifiers[i])
	})
}

func (s *Scheduler) run(ctx context.Context, ids []string, namespace string, limit int, load func(context.Context, int) (string, error)) (*BatchResult, error) {
	if s == nil {
		return nil, errors.New("scheduler is nil")
	}
	if ctx == nil {
		return nil, errors.New("context is nil")
	}
	if limit < 0 {
		return nil, fmt.Errorf("concurrency limit must be >= 0, got %d", limit)
	}
	if limit == 0 {
		limit = DefaultConcurrency
	}
	if err := validateIdentifiers(ids); err != nil {
		return nil, err
	}

	rec := newRecorder(ids, s.observer, s.logger)
	s.logger.Info("batch started", "items", len(ids), "namespace", namespace, "concurrency", limit)

	// errgroup.SetLimit blocks Go until a slot frees, so items are admitted in
	// input order and at most limit run at once. Item errors never reach the
	// group; they are recorded per item.
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range ids {
		g.Go(func() error {
			s.runItem(ctx, rec, i, namespace, load)
			return nil
		})
	}
	_ = g.Wait()

	res := rec.result()
	s.logger.Info("batch finished",
		"items", res.ItemsConsidered,
		"succeeded", len(res.ItemsSucceeded),
		"failed", len(res.ItemsFailed),
		"findings", len(res.Findings))
	return res, nil
}

func (s *Scheduler) runItem(ctx context.Context, rec *recorder, i int, namespace string, load func(context.Context, int) (string, error)) {
	id := rec.ids[i]

	itemCtx := ctx
	if s.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, s.itemTimeout)
		defer cancel()
	}

	fail := func(err error) {
		summary := s.summarize(err)
		s.logger.Error("item failed", "item", id, "namespace", namespace, "error", err)
		rec.fail(i, summary, err)
	}

	defer func() {
		if r := recover(); r != nil {
			fail(&review.StageError{Stage: review.StageItem, Identifier: id, Err: &review.PanicError{Value: r}})
		}
	}()

	rec.started(i)

	content, err := load(itemCtx, i)
	if err != nil {
		fail(&review.StageError{Stage: review.StageContent, Identifier: id, Err: err})
		return
	}

	res, err := s.pipeline.Orchestrate(itemCtx, review.WorkItem{Content: content, Identifier: id, Namespace: namespace})
	if err != nil {
		fail(err)
		return
	}
	if res == nil {
		fail(&review.StageError{Stage: review.StageItem, Identifier: id, Err: errors.New("pipeline returned no result")})
		return
	}
	// Tasks degrade on cancellation, so an expired item deadline still yields a
	// result; it must not count as reviewed.
	if err := itemCtx.Err(); err != nil {
		fail(&review.StageError{Stage: review.StageItem, Identifier: id, Err: err})
		return
	}
	rec.succeed(i, res)
}

func validateIdentifiers(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("batch item %d has an empty identifier", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("batch item identifier %q appears more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
