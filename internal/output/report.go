package output

import (
	"fmt"
	"io"
	"sync"

	"reviewbot/internal/review"
)

// ReportSink collects a run and renders it as a markdown review summary on
// Close: severity counts, unreviewed files and findings grouped by category.
type ReportSink struct {
	w           io.Writer
	closer      io.Closer
	mu          sync.Mutex
	repository  string
	pullRequest int
	analyzed    int
	failed      map[string]string
	findings    []review.Finding
}

// NewReportSink writes the report to path.
func NewReportSink(path, repository string, pullRequest int) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	s := NewReportWriter(f, repository, pullRequest)
	s.closer = f
	return s, nil
}

// NewReportWriter writes the report to w. w may be nil to only build it (see Markdown).
func NewReportWriter(w io.Writer, repository string, pullRequest int) *ReportSink {
	return &ReportSink{w: w, repository: repository, pullRequest: pullRequest, failed: make(map[string]string)}
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case review.Finding:
		s.findings = append(s.findings, t)
	case Event:
		switch t.Type {
		case EventItemFinished:
			s.analyzed++
		case EventItemFailed:
			s.failed[t.Item] = t.Error
		}
	}
	return nil
}

// Markdown renders the report from what has been written so far.
func (s *ReportSink) Markdown() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markdownLocked()
}

func (s *ReportSink) markdownLocked() string {
	return review.Summary{
		Repository:    s.repository,
		PullRequest:   s.pullRequest,
		FilesAnalyzed: s.analyzed,
		FilesFailed:   s.failed,
		Findings:      s.findings,
	}.Markdown()
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.w != nil {
		_, err = io.WriteString(s.w, s.markdownLocked())
	}
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
