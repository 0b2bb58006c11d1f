package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"reviewbot/internal/review"
)

// ContextProvider searches previously indexed material for text related to a query.
type ContextProvider interface {
	Search(ctx context.Context, query, namespace string, topK int) ([]review.Match, error)
}

const (
	DefaultTopK = 5

	// queryContentChars bounds how much of the item content goes into the search query.
	queryContentChars = 500
)

// ContextStep retrieves shared context for one work item. It never fails: any
// provider error degrades to an empty context with a diagnostic.
type ContextStep struct {
	provider ContextProvider
	topK     int
	logger   *slog.Logger
}

func NewContextStep(p ContextProvider, topK int, logger *slog.Logger) *ContextStep {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextStep{provider: p, topK: topK, logger: logger}
}

// Retrieve returns the context text for item and, when the provider failed,
// the diagnostic describing why the context is empty.
func (s *ContextStep) Retrieve(ctx context.Context, item review.WorkItem) (text string, diag error) {
	if s == nil || s.provider == nil {
		return "", nil
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			diag = s.degrade(item, &review.PanicError{Value: r})
		}
	}()

	matches, err := s.provider.Search(ctx, BuildQuery(item), item.Namespace, s.topK)
	if err != nil {
		return "", s.degrade(item, err)
	}
	return RenderContext(matches), nil
}

func (s *ContextStep) degrade(item review.WorkItem, err error) error {
	s.logger.Warn("context retrieval failed; continuing with empty context",
		"item", item.Identifier, "namespace", item.Namespace, "stage", review.StageContext, "error", err)
	return &review.StageError{Stage: review.StageContext, Identifier: item.Identifier, Err: err}
}

// BuildQuery derives the search query from the item path and the head of its content.
func BuildQuery(item review.WorkItem) string {
	content := item.Content
	if len(content) > queryContentChars {
		cut := queryContentChars
		// Do not split a multi-byte rune.
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return fmt.Sprintf("Code from %s: %s", item.Identifier, content)
}

// RenderContext joins matches into the context block handed to every task.
func RenderContext(matches []review.Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("From %s:\n%s", m.Source, m.Text))
	}
	return strings.Join(parts, "\n\n")
}
