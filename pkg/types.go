package pkg

import (
	"time"

	"github.com/bytedance/sonic"
)

// State is the mutable data a run accumulates as nodes execute. Each node
// receives the current state and returns an updated copy; the checkpoint
// store persists snapshots of it across a pause.
type State map[string]any

// Clone returns a shallow copy of the state. Nodes must not mutate the
// state they receive, so a top-level copy is enough for the engine.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// GetString returns the string value stored under key, or "" when the key
// is absent or holds a non-string value.
func (s State) GetString(key string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// GetInt returns the int value stored under key. Values decoded from a
// snapshot arrive as float64, so both forms are accepted.
func (s State) GetInt(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Merge writes every field of other into s, overwriting existing keys.
func (s State) Merge(other State) {
	for k, v := range other {
		s[k] = v
	}
}

// Encode serializes the state for persistence.
func (s State) Encode() ([]byte, error) {
	return sonic.Marshal(s)
}

// DecodeState restores a state snapshot produced by Encode.
func DecodeState(data []byte) (State, error) {
	var s State
	if err := sonic.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s == nil {
		s = State{}
	}
	return s, nil
}

// EventKind tags a StepEvent. Pausing is an event kind, not an error: the
// interrupt path costs the same as a normal step.
type EventKind string

const (
	EventStep       EventKind = "step"
	EventInterrupt  EventKind = "interrupt"
	EventCompletion EventKind = "completion"
)

// StepEvent is an immutable record emitted per node execution or per
// pause/completion boundary. Seq is monotonically increasing within a run
// and continues across a resume.
type StepEvent struct {
	Seq       int            `json:"seq"`
	Kind      EventKind      `json:"kind"`
	Node      string         `json:"node"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Interrupt is the payload a node produces when it requests human
// adjudication before continuing. It is carried on a StepEvent of kind
// EventInterrupt and consumed by the decision gate.
type Interrupt struct {
	Node    string         `json:"node"`
	Reason  string         `json:"reason"`
	Payload map[string]any `json:"payload,omitempty"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusCreated   RunStatus = "created"
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are legal.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition. Paused is re-entrant: a later node may interrupt
// again after a resume.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusPaused || next == StatusCompleted || next == StatusFailed
	case StatusPaused:
		return next == StatusRunning
	default:
		return false
	}
}

// FieldDecision is the well-known state field the decision gate writes.
// A run paused on an interrupt may only resume once this field is set.
const FieldDecision = "decision"

// Decision values understood by the approval workflow. The engine itself
// treats the decision as opaque.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionModified = "modified"
)
