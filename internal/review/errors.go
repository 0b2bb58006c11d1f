package review

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a failure came from.
type Stage string

const (
	StageContext  Stage = "context"
	StageAnalysis Stage = "analysis"
	StageContent  Stage = "content"
	StageItem     Stage = "item"
)

// ErrNoWorkItem is returned when orchestration is asked to run without an item.
var ErrNoWorkItem = errors.New("no work item")

// StageError carries enough context to diagnose a failure without re-running it.
type StageError struct {
	Stage      Stage
	Identifier string
	Task       string
	Err        error
}

func (e *StageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Task != "" {
		return fmt.Sprintf("%s stage failed for %s (task %s): %v", e.Stage, e.Identifier, e.Task, e.Err)
	}
	return fmt.Sprintf("%s stage failed for %s: %v", e.Stage, e.Identifier, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PanicError wraps a value recovered from a panicking collaborator.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
