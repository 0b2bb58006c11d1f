package review

import (
	"fmt"
	"sort"
	"strings"
)

var severityMarker = map[Severity]string{
	SeverityCritical: "🔴",
	SeverityHigh:     "🟠",
	SeverityMedium:   "🟡",
	SeverityLow:      "🔵",
	SeverityInfo:     "ℹ️",
}

// Markdown renders one finding as a markdown block.
func (f Finding) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s **%s** (%s)\n\n", severityMarker[f.Severity], f.Title, f.Severity)
	fmt.Fprintf(&b, "**Category:** %s\n\n", f.Category)
	if f.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", f.Description)
	}
	if p := f.Path(); p != "" {
		loc := "`" + p + "`"
		if l := f.Line(); l > 0 {
			loc += fmt.Sprintf(" (line %d)", l)
		}
		fmt.Fprintf(&b, "**Location:** %s\n\n", loc)
	}
	if f.Snippet != "" {
		fmt.Fprintf(&b, "**Code:**\n```\n%s\n```\n\n", f.Snippet)
	}
	if f.Suggestion != "" {
		fmt.Fprintf(&b, "**Suggestion:** %s\n\n", f.Suggestion)
	}
	return b.String()
}

// Summary holds the inputs of a markdown review summary.
type Summary struct {
	Repository    string
	PullRequest   int
	FilesAnalyzed int
	FilesFailed   map[string]string
	Findings      []Finding
}

// Markdown renders a review summary grouped by category, most severe first.
func (s Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("# Code Review Summary\n\n")
	if s.Repository != "" {
		fmt.Fprintf(&b, "**Repository:** %s\n", s.Repository)
	}
	if s.PullRequest > 0 {
		fmt.Fprintf(&b, "**PR:** #%d\n", s.PullRequest)
	}
	fmt.Fprintf(&b, "**Files Analyzed:** %d\n\n", s.FilesAnalyzed)

	counts := CountBySeverity(s.Findings)
	b.WriteString("## Findings Overview\n\n")
	fmt.Fprintf(&b, "- 🔴 Critical: %d\n", counts[SeverityCritical])
	fmt.Fprintf(&b, "- 🟠 High: %d\n", counts[SeverityHigh])
	fmt.Fprintf(&b, "- 🟡 Medium: %d\n", counts[SeverityMedium])
	fmt.Fprintf(&b, "- Total Issues: %d\n\n", len(s.Findings))

	if len(s.FilesFailed) > 0 {
		b.WriteString("## Files Not Reviewed\n\n")
		ids := make([]string, 0, len(s.FilesFailed))
		for id := range s.FilesFailed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "- `%s`: %s\n", id, s.FilesFailed[id])
		}
		b.WriteString("\n")
	}

	if len(s.Findings) == 0 {
		b.WriteString("✅ No issues found.\n")
		return b.String()
	}

	b.WriteString("## Detailed Findings\n\n")
	byCategory := make(map[Category][]Finding)
	var categories []Category
	for _, f := range SortFindings(s.Findings) {
		if _, ok := byCategory[f.Category]; !ok {
			categories = append(categories, f.Category)
		}
		byCategory[f.Category] = append(byCategory[f.Category], f)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	for _, c := range categories {
		fmt.Fprintf(&b, "### %s\n\n", categoryHeading(c))
		for _, f := range byCategory[c] {
			b.WriteString(f.Markdown())
			b.WriteString("---\n\n")
		}
	}
	return b.String()
}

func categoryHeading(c Category) string {
	words := strings.Fields(strings.ReplaceAll(string(c), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
