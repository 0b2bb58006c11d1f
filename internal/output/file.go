package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileSink writes json or ndjson to a file. An empty format is inferred from
// the extension (.json, .ndjson, .jsonl).
type FileSink struct {
	path string
	file *os.File
	mu   sync.Mutex
	enc  *structured
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}

	if format == "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".json":
			format = FormatJSON
		case ".ndjson", ".jsonl":
			format = FormatNDJSON
		default:
			return nil, fmt.Errorf("cannot infer output format from file extension %q", ext)
		}
	}
	if format != FormatJSON && format != FormatNDJSON {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{path: path, file: f, enc: &structured{w: f, format: format}}, nil
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

func (s *FileSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.write(v)
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.enc.close()
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
