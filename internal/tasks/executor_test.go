package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"reviewbot/internal/review"
)

type producerFunc func(ctx context.Context, req review.ProducerRequest) (string, error)

func (f producerFunc) Run(ctx context.Context, req review.ProducerRequest) (string, error) {
	return f(ctx, req)
}

func newTestTask(t *testing.T) *Task {
	t.Helper()
	reg, err := NewRegistry(Descriptor{
		Name:         "security",
		Instructions: "Look for injection.",
		FocusAreas:   []string{"SQL injection", "Secrets"},
		Category:     review.CategorySecurity,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg.List()[0]
}

func newTestExecutor(t *testing.T, p Producer) *Executor {
	t.Helper()
	e, err := NewExecutor(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

func TestExecutor_Execute_Success(t *testing.T) {
	var got review.ProducerRequest
	p := producerFunc(func(ctx context.Context, req review.ProducerRequest) (string, error) {
		got = req
		return `[{"title":"Injection","severity":"high"}]`, nil
	})
	item := review.WorkItem{Content: "SELECT 1", Identifier: "db.go", Namespace: "acme_api"}

	out := newTestExecutor(t, p).Execute(context.Background(), newTestTask(t), item, "ctx text")
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Task != "security" || len(out.Findings) != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if got.Content != "SELECT 1" || got.Context != "ctx text" || got.Identifier != "db.go" {
		t.Fatalf("unexpected producer request: %+v", got)
	}
	if !strings.Contains(got.Instructions, "Focus on: SQL injection, Secrets") {
		t.Fatalf("instructions should carry focus areas, got %q", got.Instructions)
	}
}

func TestExecutor_Execute_FailuresBecomeEmptyOutcome(t *testing.T) {
	tests := []struct {
		name string
		p    Producer
	}{
		{"producer error", producerFunc(func(context.Context, review.ProducerRequest) (string, error) {
			return "", errors.New("upstream 503")
		})},
		{"producer panic", producerFunc(func(context.Context, review.ProducerRequest) (string, error) {
			panic("nil map write")
		})},
		{"unparseable output", producerFunc(func(context.Context, review.ProducerRequest) (string, error) {
			return "sorry, no JSON today", nil
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newTestExecutor(t, tt.p).Execute(context.Background(), newTestTask(t), review.WorkItem{Identifier: "x.go"}, "")
			if out.Err == nil {
				t.Fatal("expected a task failure")
			}
			if len(out.Findings) != 0 {
				t.Fatalf("failed task must contribute no findings, got %d", len(out.Findings))
			}
			var se *review.StageError
			if !errors.As(out.Err, &se) {
				t.Fatalf("expected *review.StageError, got %T", out.Err)
			}
			if se.Stage != review.StageAnalysis || se.Task != "security" || se.Identifier != "x.go" {
				t.Fatalf("unexpected stage error context: %+v", se)
			}
		})
	}
}

func TestExecutor_Execute_AllowList(t *testing.T) {
	calls := 0
	p := producerFunc(func(context.Context, review.ProducerRequest) (string, error) {
		calls++
		return `[{"title":"a","severity":"low"},{"title":"b","severity":"critical"}]`, nil
	})
	task := newTestTask(t)
	if err := task.Configure(map[string]string{"allow.paths": "vendor/*, *_test.go", "min_severity": "high"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	e := newTestExecutor(t, p)

	out := e.Execute(context.Background(), task, review.WorkItem{Identifier: "pkg/db_test.go"}, "")
	if out.Skipped != "*_test.go" || calls != 0 {
		t.Fatalf("expected item to be skipped without a producer call, got %+v (calls=%d)", out, calls)
	}

	out = e.Execute(context.Background(), task, review.WorkItem{Identifier: "vendor/lib.go"}, "")
	if out.Skipped != "vendor/*" {
		t.Fatalf("expected vendor path to be skipped, got %+v", out)
	}

	out = e.Execute(context.Background(), task, review.WorkItem{Identifier: "pkg/db.go"}, "")
	if len(out.Findings) != 1 || out.Findings[0].Title != "b" {
		t.Fatalf("expected only the critical finding, got %+v", out.Findings)
	}
}

func TestNewExecutor_NilProducer(t *testing.T) {
	if _, err := NewExecutor(nil, nil); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
