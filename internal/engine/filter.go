package engine

import (
	"path"
	"strings"

	"reviewbot/internal/config"
	"reviewbot/internal/rag"
)

// FilterItems keeps the reviewable identifiers: code or important files outside
// skipped directories, matching Include (when set) and not matching Exclude.
// MaxItems truncates after filtering. Input order is preserved.
func FilterItems(ids []string, src config.Source) []string {
	var filtered []string
	for _, id := range ids {
		clean := strings.TrimPrefix(path.Clean(strings.ReplaceAll(id, "\\", "/")), "./")
		if !rag.ShouldIndex(clean) {
			continue
		}

		// If Include is set, must match at least one
		if len(src.Include) > 0 && !matchesAnyPattern(src.Include, clean) {
			continue
		}

		// If Exclude is set, must not match any
		if len(src.Exclude) > 0 && matchesAnyPattern(src.Exclude, clean) {
			continue
		}

		filtered = append(filtered, id)
	}

	if src.MaxItems > 0 && len(filtered) > src.MaxItems {
		filtered = filtered[:src.MaxItems]
	}
	return filtered
}

func matchesAnyPattern(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, p string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	// Patterns with a directory component match the full path; bare patterns
	// like "*_test.go" match the base name at any depth.
	if strings.Contains(pattern, "/") {
		matched, _ := path.Match(pattern, p)
		return matched
	}
	matched, _ := path.Match(pattern, path.Base(p))
	return matched
}
