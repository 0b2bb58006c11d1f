package tasks

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"reviewbot/internal/review"
)

// ErrNoPayload is returned when producer output contains no decodable JSON findings.
var ErrNoPayload = errors.New("no JSON findings payload in producer output")

type rawFinding struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Severity    string      `json:"severity"`
	Category    string      `json:"category"`
	LineNumber  lineNumber  `json:"line_number"`
	Line        lineNumber  `json:"line"`
	CodeSnippet string      `json:"code_snippet"`
	Snippet     string      `json:"snippet"`
	Suggestion  string      `json:"suggestion"`
	Confidence  *confidence `json:"confidence"`
}

// lineNumber accepts integers, numeric strings and null. Anything else decodes
// to "unknown" rather than failing the whole entry.
type lineNumber struct {
	v *int
}

func (l *lineNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && f >= 1 {
		n := int(f)
		l.v = &n
	}
	return nil
}

type confidence float64

func (c *confidence) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*c = confidence(review.DefaultConfidence)
		return nil
	}
	*c = confidence(f)
	return nil
}

// ParseResult reports how many payload entries were kept and discarded.
type ParseResult struct {
	Findings  []review.Finding
	Discarded int
}

// ParseFindings extracts findings for task d from free-form producer output.
//
// The first JSON array that decodes is used; prose and code fences around it are
// ignored. A single JSON object is accepted as a one-entry payload. Entries that
// are not objects, or carry neither a title nor a description, are discarded.
func ParseFindings(text string, d Descriptor, path string) (ParseResult, error) {
	entries, err := extractEntries(text)
	if err != nil {
		return ParseResult{}, err
	}

	res := ParseResult{}
	for _, raw := range entries {
		f, ok := decodeEntry(raw, d, path)
		if !ok {
			res.Discarded++
			continue
		}
		res.Findings = append(res.Findings, f)
	}
	return res, nil
}

// maxDecodeAttempts bounds how many '[' (and then '{') positions are tried, so
// bracket-heavy output costs linear time.
const maxDecodeAttempts = 32

func extractEntries(text string) ([]json.RawMessage, error) {
	sawEmpty := false
	attempts := 0
	for i := 0; i < len(text) && attempts < maxDecodeAttempts; i++ {
		if text[i] != '[' {
			continue
		}
		attempts++
		var entries []json.RawMessage
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&entries); err != nil {
			continue
		}
		if len(entries) == 0 {
			sawEmpty = true
			continue
		}
		// Arrays of scalars ("see [1]") are prose, not payloads.
		for _, e := range entries {
			if isObject(e) {
				return entries, nil
			}
		}
	}
	if sawEmpty {
		return nil, nil
	}
	attempts = 0
	for i := 0; i < len(text) && attempts < maxDecodeAttempts; i++ {
		if text[i] != '{' {
			continue
		}
		attempts++
		var obj json.RawMessage
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&obj); err == nil && isObject(obj) {
			return []json.RawMessage{obj}, nil
		}
	}
	return nil, ErrNoPayload
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodeEntry(raw json.RawMessage, d Descriptor, path string) (review.Finding, bool) {
	if !isObject(raw) {
		return review.Finding{}, false
	}
	var rf rawFinding
	if err := json.Unmarshal(raw, &rf); err != nil {
		return review.Finding{}, false
	}
	title := strings.TrimSpace(rf.Title)
	desc := strings.TrimSpace(rf.Description)
	if title == "" && desc == "" {
		return review.Finding{}, false
	}
	if title == "" {
		title = "Issue found"
	}

	category := d.Category
	if c := review.Category(strings.ToLower(strings.TrimSpace(rf.Category))); review.ValidCategory(c) {
		category = c
	}

	conf := review.DefaultConfidence
	if rf.Confidence != nil {
		conf = review.ClampConfidence(float64(*rf.Confidence))
	}

	f := review.Finding{
		Source:      d.Name,
		Category:    category,
		Severity:    review.ParseSeverity(rf.Severity),
		Title:       title,
		Description: desc,
		Snippet:     firstNonEmpty(rf.CodeSnippet, rf.Snippet),
		Suggestion:  strings.TrimSpace(rf.Suggestion),
		Confidence:  conf,
	}
	line := rf.LineNumber.v
	if line == nil {
		line = rf.Line.v
	}
	if path != "" || line != nil {
		f.Location = &review.Location{Path: path, Line: line}
	}
	return f, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
