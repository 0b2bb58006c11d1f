package pipeline

import (
	"log/slog"
	"sort"
	"sync"

	"reviewbot/internal/review"
)

// BatchResult aggregates a batch run. Findings holds the findings of succeeded
// items only, in input order.
type BatchResult struct {
	ItemsConsidered int
	ItemsSucceeded  map[string]struct{}
	ItemsFailed     map[string]string
	Findings        []review.Finding

	// Items holds the per-item results of succeeded items, in input order.
	Items []*ItemResult
}

func (r *BatchResult) Succeeded(id string) bool {
	_, ok := r.ItemsSucceeded[id]
	return ok
}

// SucceededIDs returns the succeeded identifiers, sorted.
func (r *BatchResult) SucceededIDs() []string {
	out := make([]string, 0, len(r.ItemsSucceeded))
	for id := range r.ItemsSucceeded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Observer is notified as items move through a batch. Calls are serialized.
type Observer interface {
	ItemStarted(id string)
	ItemFinished(id string, res *ItemResult)
	ItemFailed(id string, summary string, err error)
}

// recorder builds a BatchResult incrementally as items resolve.
type recorder struct {
	mu       sync.Mutex
	ids      []string
	results  []*ItemResult
	failed   map[string]string
	observer Observer
	logger   *slog.Logger
}

func newRecorder(ids []string, obs Observer, logger *slog.Logger) *recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &recorder{
		ids:      ids,
		results:  make([]*ItemResult, len(ids)),
		failed:   make(map[string]string),
		observer: obs,
		logger:   logger,
	}
}

// notify runs an observer callback. A panicking observer is logged and never
// changes how the item is recorded.
func (r *recorder) notify(id string, fn func(Observer)) {
	if r.observer == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("observer panicked", "item", id, "panic", v)
		}
	}()
	fn(r.observer)
}

func (r *recorder) started(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.ids[i]
	r.notify(id, func(o Observer) { o.ItemStarted(id) })
}

func (r *recorder) succeed(i int, res *ItemResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.ids[i]
	r.results[i] = res
	r.notify(id, func(o Observer) { o.ItemFinished(id, res) })
}

func (r *recorder) fail(i int, summary string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.ids[i]
	r.failed[id] = summary
	r.notify(id, func(o Observer) { o.ItemFailed(id, summary, err) })
}

func (r *recorder) result() *BatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := &BatchResult{
		ItemsConsidered: len(r.ids),
		ItemsSucceeded:  make(map[string]struct{}),
		ItemsFailed:     make(map[string]string, len(r.failed)),
	}
	for id, summary := range r.failed {
		out.ItemsFailed[id] = summary
	}
	for i, res := range r.results {
		if res == nil {
			continue
		}
		out.ItemsSucceeded[r.ids[i]] = struct{}{}
		out.Items = append(out.Items, res)
		out.Findings = append(out.Findings, res.Findings...)
	}
	return out
}
