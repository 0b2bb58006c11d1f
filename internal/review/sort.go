package review

import "sort"

// Less is the canonical finding order: severity rank, category, source task,
// then path, line, title and description.
func Less(a, b Finding) bool {
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra < rb
	}
	if a.Category != b.Category {
		return a.Category < b.Category
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	if pa, pb := a.Path(), b.Path(); pa != pb {
		return pa < pb
	}
	if la, lb := a.Line(), b.Line(); la != lb {
		return la < lb
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.Description < b.Description
}

// SortFindings returns a canonically ordered copy of findings.
func SortFindings(findings []Finding) []Finding {
	out := make([]Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}
