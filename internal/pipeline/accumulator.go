package pipeline

import (
	"sort"
	"sync"

	"reviewbot/internal/review"
)

// Contribution is one task's share of an item's result.
type Contribution struct {
	Task       string
	Findings   []review.Finding
	Diagnostic error
}

// Accumulator is the per-item state shared by concurrently completing tasks.
// Merge is the only mutation: findings and diagnostics are appended, the task
// name is added to the completed set. Nothing is ever removed or edited.
type Accumulator struct {
	mu          sync.Mutex
	context     string
	findings    []review.Finding
	completed   map[string]struct{}
	diagnostics []error
}

func NewAccumulator(contextText string) *Accumulator {
	return &Accumulator{
		context:   contextText,
		completed: make(map[string]struct{}),
	}
}

// Merge folds c into the accumulator. It is safe for concurrent use and the
// resulting finding set does not depend on the order contributions arrive in.
func (a *Accumulator) Merge(c Contribution) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.findings = append(a.findings, c.Findings...)
	a.completed[c.Task] = struct{}{}
	if c.Diagnostic != nil {
		a.diagnostics = append(a.diagnostics, c.Diagnostic)
	}
}

// Note records a diagnostic that does not belong to a task (e.g. the context stage).
func (a *Accumulator) Note(diag error) {
	if diag == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.diagnostics = append(a.diagnostics, diag)
}

// ItemResult is the frozen state of one item's accumulator after the join.
type ItemResult struct {
	Identifier     string
	Context        string
	Findings       []review.Finding
	CompletedTasks []string
	Diagnostics    []error
}

// Completed reports whether task is in the completed set.
func (r *ItemResult) Completed(task string) bool {
	i := sort.SearchStrings(r.CompletedTasks, task)
	return i < len(r.CompletedTasks) && r.CompletedTasks[i] == task
}

// Snapshot copies the accumulator into an ItemResult with canonically sorted
// findings and sorted task names.
func (a *Accumulator) Snapshot(identifier string) *ItemResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	completed := make([]string, 0, len(a.completed))
	for t := range a.completed {
		completed = append(completed, t)
	}
	sort.Strings(completed)

	diags := make([]error, len(a.diagnostics))
	copy(diags, a.diagnostics)

	return &ItemResult{
		Identifier:     identifier,
		Context:        a.context,
		Findings:       review.SortFindings(a.findings),
		CompletedTasks: completed,
		Diagnostics:    diags,
	}
}
