package review

import "strings"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities from most to least severe (critical = 0).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// AtLeast reports whether s is as severe as min or more.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() <= min.Rank()
}

// ParseSeverity maps free-form severity text to a Severity.
// Unknown or empty values map to SeverityInfo.
func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// ValidSeverity reports whether raw names a known severity exactly.
func ValidSeverity(raw string) bool {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

type Category string

const (
	CategorySecurity     Category = "security"
	CategoryPerformance  Category = "performance"
	CategoryStyle        Category = "style"
	CategoryArchitecture Category = "architecture"
	CategoryBug          Category = "bug"
	CategoryBestPractice Category = "best_practice"
)

func ValidCategory(c Category) bool {
	switch c {
	case CategorySecurity, CategoryPerformance, CategoryStyle, CategoryArchitecture, CategoryBug, CategoryBestPractice:
		return true
	}
	return false
}

// Location points at the reviewed file and, optionally, a line within it.
type Location struct {
	Path string `json:"path"`
	Line *int   `json:"line,omitempty"`
}

// DefaultConfidence is applied when a producer does not report a confidence.
const DefaultConfidence = 0.8

// Finding is a single reported issue. Findings are values; once produced they
// are never edited.
type Finding struct {
	Source      string    `json:"source"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    *Location `json:"location,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
	Confidence  float64   `json:"confidence"`
}

// Path returns the location path or "" when the finding has no location.
func (f Finding) Path() string {
	if f.Location == nil {
		return ""
	}
	return f.Location.Path
}

// Line returns the location line or 0 when unknown.
func (f Finding) Line() int {
	if f.Location == nil || f.Location.Line == nil {
		return 0
	}
	return *f.Location.Line
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	if c != c { // NaN
		return DefaultConfidence
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []Finding) map[Severity]int {
	out := make(map[Severity]int, 5)
	for _, f := range findings {
		out[f.Severity]++
	}
	return out
}
