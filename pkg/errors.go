package pkg

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the manager boundary. Callers match them
// with errors.Is.
var (
	// ErrNotFound is returned for operations on an unknown run ID.
	ErrNotFound = errors.New("run not found")

	// ErrInvalidState is returned when decide/resume is called out of
	// sequence, e.g. resuming a run that is not paused or has no decision.
	ErrInvalidState = errors.New("invalid run state")
)

// GraphDefinitionError reports a malformed graph. It is fatal: the system
// refuses to start with a graph that cannot reach a terminal node.
type GraphDefinitionError struct {
	Reason string
}

func (e *GraphDefinitionError) Error() string {
	return fmt.Sprintf("graph definition error: %s", e.Reason)
}

// ExecutionError reports a node failure during a step. The state snapshot
// at the point of failure is preserved for diagnosis.
type ExecutionError struct {
	Node  string
	State State
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.Node, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
