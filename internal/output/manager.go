package output

import (
	"errors"
	"fmt"
)

// Sink is a destination for findings and lifecycle events.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager fans every write out to all sinks. A failing sink does not stop
// the others; errors are joined.
type Manager struct {
	sinks []Sink
}

func NewManager(sinks ...Sink) (*Manager, error) {
	m := &Manager{}
	for _, s := range sinks {
		if err := m.AddSink(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.sinks = append(m.sinks, s)
	return nil
}

func (m *Manager) Write(v any) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	return m.each("write", func(s Sink) error { return s.Write(v) })
}

func (m *Manager) Close() error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	return m.each("close", Sink.Close)
}

func (m *Manager) each(op string, fn func(Sink) error) error {
	var errs []error
	for _, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("%s %T: %w", op, s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors on %s to sinks: %w", op, errors.Join(errs...))
	}
	return nil
}
