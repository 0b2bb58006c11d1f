package tasks

import (
	"fmt"
	"path"
	"strings"

	"reviewbot/internal/review"
)

// Option describes one per-task setting accepted via --set task.option=value.
type Option struct {
	Name        string
	Description string
	Default     string
}

// AllowList holds the per-task settings that narrow where and what a task reports.
// It supports skipping items by path pattern and dropping findings below a
// minimum severity.
type AllowList struct {
	Paths       []string
	MinSeverity review.Severity
}

func (a *AllowList) Options() []Option {
	return []Option{
		{
			Name:        "allow.paths",
			Description: "Comma-separated path patterns (Go path.Match) the task skips. Patterns without '/' match the base name.",
		},
		{
			Name:        "min_severity",
			Description: "Drop findings less severe than this (critical|high|medium|low|info).",
			Default:     string(review.SeverityInfo),
		},
	}
}

func (a *AllowList) Configure(opts map[string]string) error {
	if val, ok := opts["allow.paths"]; ok {
		a.Paths = nil
		for _, s := range strings.Split(val, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, err := path.Match(s, ""); err != nil {
				return fmt.Errorf("invalid allow.paths pattern %q: %w", s, err)
			}
			a.Paths = append(a.Paths, s)
		}
	}
	if val, ok := opts["min_severity"]; ok {
		val = strings.TrimSpace(val)
		if val == "" {
			a.MinSeverity = ""
		} else {
			if !review.ValidSeverity(val) {
				return fmt.Errorf("invalid min_severity %q", val)
			}
			a.MinSeverity = review.ParseSeverity(val)
		}
	}
	return nil
}

// Skips reports whether the item identified by id is exempt from the task,
// with the pattern that matched.
func (a *AllowList) Skips(id string) (bool, string) {
	if a == nil {
		return false, ""
	}
	clean := strings.TrimPrefix(path.Clean(strings.ReplaceAll(id, "\\", "/")), "./")
	base := path.Base(clean)
	for _, p := range a.Paths {
		target := base
		if strings.Contains(p, "/") {
			target = clean
		}
		if matched, _ := path.Match(p, target); matched {
			return true, p
		}
	}
	return false, ""
}

// Keep reports whether a finding passes the minimum severity.
func (a *AllowList) Keep(f review.Finding) bool {
	if a == nil || a.MinSeverity == "" {
		return true
	}
	return f.Severity.AtLeast(a.MinSeverity)
}
