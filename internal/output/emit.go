package output

import (
	"fmt"
	"io"
	"sync"
)

// EmitSink writes an additional structured stream, typically to stdout while
// the console shows text.
//
// Formats:
//   - json: aggregates findings and writes one JSON array on Close
//   - ndjson: streams Event values, one JSON object per line
type EmitSink struct {
	mu  sync.Mutex
	enc *structured
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	if format != FormatJSON && format != FormatNDJSON {
		return nil, fmt.Errorf("unsupported emit format: %s", format)
	}
	return &EmitSink{enc: &structured{w: w, format: format}}, nil
}

func (s *EmitSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.write(v)
}

func (s *EmitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.close()
}
