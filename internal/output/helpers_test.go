package output

import (
	"github.com/fatih/color"

	"reviewbot/internal/review"
)

func init() {
	// Keep severity markers free of escape codes regardless of the test terminal.
	color.NoColor = true
}

func intPtr(i int) *int { return &i }

func testFinding(sev review.Severity, title string) review.Finding {
	return review.Finding{
		Source:     "security",
		Category:   review.CategorySecurity,
		Severity:   sev,
		Title:      title,
		Location:   &review.Location{Path: "db/query.go", Line: intPtr(12)},
		Confidence: 0.8,
	}
}
