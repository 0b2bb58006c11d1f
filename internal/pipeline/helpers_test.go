package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"reviewbot/internal/review"
	"reviewbot/internal/tasks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type producerFunc func(ctx context.Context, req review.ProducerRequest) (string, error)

func (f producerFunc) Run(ctx context.Context, req review.ProducerRequest) (string, error) {
	return f(ctx, req)
}

type providerFunc func(ctx context.Context, query, namespace string, topK int) ([]review.Match, error)

func (f providerFunc) Search(ctx context.Context, query, namespace string, topK int) ([]review.Match, error) {
	return f(ctx, query, namespace, topK)
}

// testTasks builds one task per name. Each task's instructions are "task:<name>"
// so stub producers can tell which task is calling.
func testTasks(t *testing.T, names ...string) []*tasks.Task {
	t.Helper()
	ds := make([]tasks.Descriptor, 0, len(names))
	for _, n := range names {
		ds = append(ds, tasks.Descriptor{Name: n, Instructions: "task:" + n, Category: review.CategoryBug})
	}
	reg, err := tasks.NewRegistry(ds...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	sel, err := reg.Resolve(strings.Join(names, ","))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return sel
}

// taskOf recovers the task name from a request built by testTasks.
func taskOf(req review.ProducerRequest) string {
	return strings.TrimPrefix(req.Instructions, "task:")
}

// oneFinding answers every task with a single finding titled after the task and item.
func oneFinding(_ context.Context, req review.ProducerRequest) (string, error) {
	return fmt.Sprintf(`[{"title":"%s on %s","severity":"medium"}]`, taskOf(req), req.Identifier), nil
}

func newTestOrchestrator(t *testing.T, provider ContextProvider, p tasks.Producer, names ...string) *Orchestrator {
	t.Helper()
	o, err := New(provider, p, testTasks(t, names...), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}
