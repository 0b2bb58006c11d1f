package tasks

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Task pairs a descriptor with its per-run settings.
type Task struct {
	desc  Descriptor
	allow AllowList
}

func (t *Task) Name() string { return t.desc.Name }

func (t *Task) Descriptor() Descriptor { return t.desc }

func (t *Task) AllowList() *AllowList { return &t.allow }

func (t *Task) Options() []Option { return t.allow.Options() }

func (t *Task) Configure(opts map[string]string) error { return t.allow.Configure(opts) }

// Registry is the set of tasks available to a run.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{tasks: make(map[string]*Task)}
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[d.Name]; exists {
		return fmt.Errorf("task %s already registered", d.Name)
	}
	r.tasks[d.Name] = &Task{desc: d}
	return nil
}

// List returns every task sorted by name.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []*Task {
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Resolve returns the tasks named by a comma-separated selector; empty or
// "all" selects every task.
func (r *Registry) Resolve(selector string) ([]*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s := strings.TrimSpace(selector); s == "" || strings.EqualFold(s, "all") {
		return r.listLocked(), nil
	}

	var selected []*Task
	seen := make(map[string]struct{})
	for _, id := range strings.Split(selector, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		t, ok := r.tasks[id]
		if !ok {
			return nil, fmt.Errorf("task not found: %s", id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, t)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("task selector %q selects no tasks", selector)
	}
	return selected, nil
}

// Configure applies per-task option assignments (task -> option -> value),
// rejecting unknown tasks and options.
func (r *Registry) Configure(assignments map[string]map[string]string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(assignments))
	for name := range assignments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		opts := assignments[name]
		t, ok := r.tasks[name]
		if !ok {
			return fmt.Errorf("unknown task %q", name)
		}
		allowed := make(map[string]struct{})
		for _, opt := range t.Options() {
			allowed[opt.Name] = struct{}{}
		}
		for opt := range opts {
			if _, ok := allowed[opt]; !ok {
				return fmt.Errorf("unknown option %q for task %q", opt, name)
			}
		}
		if err := t.Configure(opts); err != nil {
			return fmt.Errorf("configure task %q: %w", name, err)
		}
	}
	return nil
}
