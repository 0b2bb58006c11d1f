// Package producer turns review requests into free-text analysis output.
// Implementations satisfy tasks.Producer.
package producer

import (
	"context"
	"strings"

	"reviewbot/internal/review"
)

// Func adapts a plain function into a producer.
type Func func(ctx context.Context, req review.ProducerRequest) (string, error)

func (f Func) Run(ctx context.Context, req review.ProducerRequest) (string, error) {
	return f(ctx, req)
}

const responseFormat = `Please analyze the code and provide findings in the following JSON format:
[
  {
    "title": "Brief title of the issue",
    "description": "Detailed description",
    "severity": "critical|high|medium|low|info",
    "line_number": <line number if applicable>,
    "code_snippet": "relevant code snippet",
    "suggestion": "how to fix it",
    "confidence": <0.0 to 1.0>
  }
]
Respond with an empty array if there are no issues.`

// BuildPrompt renders req as the single prompt sent to a model.
func BuildPrompt(req review.ProducerRequest) string {
	var b strings.Builder
	if instr := strings.TrimSpace(req.Instructions); instr != "" {
		b.WriteString(instr)
		b.WriteString("\n\n")
	}
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		b.WriteString("## Repository Context\n")
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}
	b.WriteString("## Code to Review\n")
	if req.Identifier != "" {
		b.WriteString("File: ")
		b.WriteString(req.Identifier)
		b.WriteString("\n\n")
	}
	b.WriteString("```\n")
	b.WriteString(req.Content)
	if !strings.HasSuffix(req.Content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")
	b.WriteString(responseFormat)
	return b.String()
}
