package output

import (
	"encoding/json"
	"fmt"
	"io"

	"reviewbot/internal/review"
)

const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
)

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}

// structured implements the json and ndjson encodings shared by the console,
// emit and file sinks. Callers hold their own lock.
type structured struct {
	w        io.Writer
	format   string
	findings []review.Finding
}

func (s *structured) write(v any) error {
	switch s.format {
	case FormatJSON:
		if f, ok := v.(review.Finding); ok {
			s.findings = append(s.findings, f)
		}
		return nil
	case FormatNDJSON:
		var e Event
		switch t := v.(type) {
		case Event:
			e = t
		case review.Finding:
			e = eventFromFinding(t)
		default:
			return nil
		}
		if err := json.NewEncoder(s.w).Encode(e); err != nil {
			return err
		}
		return flushIfPossible(s.w)
	default:
		return fmt.Errorf("unsupported structured format: %s", s.format)
	}
}

// close writes the JSON aggregate. It is a no-op for ndjson.
func (s *structured) close() error {
	if s.format != FormatJSON {
		return nil
	}
	findings := s.findings
	if findings == nil {
		findings = []review.Finding{}
	}
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(findings); err != nil {
		return err
	}
	return flushIfPossible(s.w)
}
