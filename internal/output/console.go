package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"reviewbot/internal/review"
)

// ConsoleSink writes human text, a JSON findings array or an NDJSON event stream.
type ConsoleSink struct {
	writer io.Writer
	format string
	mu     sync.Mutex
	enc    *structured
	// minSeverity hides findings below it; empty shows everything.
	minSeverity review.Severity
}

func NewConsoleSink(w io.Writer, format string, minSeverity review.Severity) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = FormatText
	}
	return &ConsoleSink{
		writer:      w,
		format:      format,
		enc:         &structured{w: w, format: format},
		minSeverity: minSeverity,
	}
}

var severityColors = map[review.Severity]*color.Color{
	review.SeverityCritical: color.New(color.FgRed, color.Bold),
	review.SeverityHigh:     color.New(color.FgRed),
	review.SeverityMedium:   color.New(color.FgYellow),
	review.SeverityLow:      color.New(color.FgCyan),
	review.SeverityInfo:     color.New(color.FgWhite),
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := v.(review.Finding); ok && s.minSeverity != "" && !f.Severity.AtLeast(s.minSeverity) {
		return nil
	}

	switch s.format {
	case FormatJSON, FormatNDJSON:
		return s.enc.write(v)
	case FormatText:
		if err := s.writeText(v); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) writeText(v any) error {
	switch t := v.(type) {
	case review.Finding:
		c := severityColors[t.Severity]
		if c == nil {
			c = severityColors[review.SeverityInfo]
		}
		loc := t.Path()
		if line := t.Line(); line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, line)
		}
		if _, err := c.Fprintf(s.writer, "[%s]", t.Severity); err != nil {
			return err
		}
		_, err := fmt.Fprintf(s.writer, " %s %s/%s: %s\n", loc, t.Source, t.Category, t.Title)
		return err
	case Event:
		switch t.Type {
		case EventItemFailed:
			_, err := color.New(color.FgMagenta).Fprintf(s.writer, "[FAILED] %s: %s\n", t.Item, t.Error)
			return err
		case EventRunFinished:
			_, err := fmt.Fprintf(s.writer, "reviewed %d items: %d succeeded, %d failed, %d findings\n",
				t.Items, t.Succeeded, t.Failed, t.Findings)
			return err
		}
	}
	return nil
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case FormatJSON, FormatNDJSON:
		return s.enc.close()
	case FormatText:
		return nil
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}
