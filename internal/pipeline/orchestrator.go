package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"reviewbot/internal/review"
	"reviewbot/internal/tasks"
)

// Orchestrator runs the per-item pipeline: one context stage, then every task
// concurrently, then a single join.
type Orchestrator struct {
	step     *ContextStep
	executor *tasks.Executor
	tasks    []*tasks.Task
	logger   *slog.Logger
}

type options struct {
	topK   int
	logger *slog.Logger
}

type Option func(*options)

// WithTopK sets how many context matches are requested per item.
func WithTopK(k int) Option {
	return func(o *options) { o.topK = k }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds an Orchestrator from already-constructed collaborators. provider
// may be nil, in which case every item runs with an empty context.
func New(provider ContextProvider, producer tasks.Producer, selected []*tasks.Task, opts ...Option) (*Orchestrator, error) {
	o := &options{topK: DefaultTopK}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if len(selected) == 0 {
		return nil, errors.New("orchestrator: no tasks registered")
	}
	seen := make(map[string]struct{}, len(selected))
	for _, t := range selected {
		if t == nil {
			return nil, errors.New("orchestrator: nil task")
		}
		if _, dup := seen[t.Name()]; dup {
			return nil, fmt.Errorf("orchestrator: task %q registered twice", t.Name())
		}
		seen[t.Name()] = struct{}{}
	}

	exec, err := tasks.NewExecutor(producer, o.logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	ts := make([]*tasks.Task, len(selected))
	copy(ts, selected)

	return &Orchestrator{
		step:     NewContextStep(provider, o.topK, o.logger),
		executor: exec,
		tasks:    ts,
		logger:   o.logger,
	}, nil
}

// TaskNames returns the registered task names, sorted.
func (o *Orchestrator) TaskNames() []string {
	names := make([]string, 0, len(o.tasks))
	for _, t := range o.tasks {
		names = append(names, t.Name())
	}
	sort.Strings(names)
	return names
}

// Orchestrate runs the pipeline for item. Task and context failures are
// recorded as diagnostics on the result; an error is returned only when the
// pipeline cannot start.
func (o *Orchestrator) Orchestrate(ctx context.Context, item review.WorkItem) (*ItemResult, error) {
	if o == nil {
		return nil, errors.New("orchestrator is nil")
	}
	if ctx == nil {
		return nil, errors.New("orchestrate: context is nil")
	}
	if item.Identifier == "" {
		return nil, &review.StageError{Stage: review.StageItem, Err: review.ErrNoWorkItem}
	}
	if err := ctx.Err(); err != nil {
		return nil, &review.StageError{Stage: review.StageItem, Identifier: item.Identifier, Err: err}
	}

	start := time.Now()
	log := o.logger.With("item", item.Identifier, "namespace", item.Namespace)

	// Stage 1: context. Must resolve before any task starts.
	contextText, diag := o.step.Retrieve(ctx, item)
	acc := NewAccumulator(contextText)
	acc.Note(diag)

	// Stage 2: fan out to every task; stage 3: join.
	var wg sync.WaitGroup
	for _, t := range o.tasks {
		wg.Add(1)
		go func(t *tasks.Task) {
			defer wg.Done()
			out := o.executor.Execute(ctx, t, item, contextText)
			acc.Merge(Contribution{Task: out.Task, Findings: out.Findings, Diagnostic: out.Err})
		}(t)
	}
	wg.Wait()

	res := acc.Snapshot(item.Identifier)
	log.Info("item reviewed",
		"findings", len(res.Findings),
		"tasks", len(res.CompletedTasks),
		"diagnostics", len(res.Diagnostics),
		"duration", time.Since(start).Truncate(time.Millisecond))
	return res, nil
}

// Review is Orchestrate for callers that only need the findings.
func (o *Orchestrator) Review(ctx context.Context, content, identifier, namespace string) ([]review.Finding, error) {
	res, err := o.Orchestrate(ctx, review.WorkItem{Content: content, Identifier: identifier, Namespace: namespace})
	if err != nil {
		return nil, err
	}
	return res.Findings, nil
}
