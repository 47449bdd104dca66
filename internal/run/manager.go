package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"approvalflow/internal/checkpoint"
	"approvalflow/internal/graph"
	"approvalflow/pkg"
)

// Run is one execution instance of the workflow graph. A run owns its
// state exclusively; the checkpoint store holds a persisted snapshot, not
// a second owner. At most one unresolved interrupt exists per run.
type Run struct {
	ID        string
	Status    pkg.RunStatus
	Input     pkg.State
	State     pkg.State
	Interrupt *pkg.Interrupt
	Events    []pkg.StepEvent
	CreatedAt time.Time
	UpdatedAt time.Time

	// Single-writer per run: decide/resume/start on the same run
	// serialize on this mutex. Concurrent runs never share state.
	mu            sync.Mutex
	decisionReady bool
}

// Status is a point-in-time view of a run, safe to hand to callers.
type Status struct {
	RunID     string         `json:"run_id"`
	Status    pkg.RunStatus  `json:"status"`
	Interrupt *pkg.Interrupt `json:"interrupt,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
}

// Manager owns the run registry and implements the external surface:
// start, poll, decide, resume. There is no process-wide singleton; every
// operation goes through an explicit Manager.
type Manager struct {
	graph  *graph.Compiled
	driver *graph.Driver
	store  checkpoint.Store
	log    zerolog.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewManager wires a compiled graph to a checkpoint store.
func NewManager(g *graph.Compiled, store checkpoint.Store, log zerolog.Logger) *Manager {
	return &Manager{
		graph:  g,
		driver: graph.NewDriver(log),
		store:  store,
		log:    log.With().Str("component", "run_manager").Logger(),
		runs:   make(map[string]*Run),
	}
}

// Start creates a run for the given input and drives the graph until it
// completes, pauses or fails. It returns the run ID and the initial step
// event sequence. A failed node surfaces as *pkg.ExecutionError with the
// run left in the failed status.
func (m *Manager) Start(ctx context.Context, input pkg.State) (string, []pkg.StepEvent, error) {
	r := &Run{
		ID:        uuid.NewString(),
		Status:    pkg.StatusCreated,
		Input:     input.Clone(),
		State:     input.Clone(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	m.mu.Lock()
	m.runs[r.ID] = r
	m.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	m.transition(r, pkg.StatusRunning)
	m.log.Info().Str("run_id", r.ID).Msg("starting run")

	outcome, err := m.driver.Run(ctx, m.graph, r.ID, r.State)
	return r.ID, m.absorb(ctx, r, outcome, err), err
}

// Get returns the current status of a run and, when paused, the pending
// interrupt payload.
func (m *Manager) Get(runID string) (*Status, error) {
	r, err := m.lookup(runID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	st := &Status{RunID: r.ID, Status: r.Status, Interrupt: r.Interrupt}
	if r.Status == pkg.StatusCompleted {
		st.Result = map[string]any(r.State.Clone())
	}
	return st, nil
}

// Events returns the full step event sequence emitted so far.
func (m *Manager) Events(runID string) ([]pkg.StepEvent, error) {
	r, err := m.lookup(runID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]pkg.StepEvent, len(r.Events))
	copy(out, r.Events)
	return out, nil
}

// Decide writes the human decision into the persisted state and marks the
// run eligible for resume. updates may carry additional state fields (the
// modify flow replaces the task this way). Only legal while paused.
func (m *Manager) Decide(ctx context.Context, runID, decision string, updates pkg.State) error {
	r, err := m.lookup(runID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status != pkg.StatusPaused {
		return fmt.Errorf("decide on run %s in status %s: %w", runID, r.Status, pkg.ErrInvalidState)
	}

	cp, err := m.store.Load(ctx, runID)
	if err != nil {
		return err
	}
	cp.State[pkg.FieldDecision] = decision
	cp.State.Merge(updates)
	cp.UpdatedAt = time.Now()
	if err := m.store.Save(ctx, cp); err != nil {
		return err
	}

	r.State = cp.State.Clone()
	r.decisionReady = true
	r.UpdatedAt = time.Now()
	m.log.Info().Str("run_id", runID).Str("decision", decision).Msg("decision recorded")
	return nil
}

// Resume re-invokes the driver with no new input, continuing from the
// last checkpoint. It requires a paused run with a recorded decision;
// repeated invalid attempts keep failing without mutating the run.
func (m *Manager) Resume(ctx context.Context, runID string) ([]pkg.StepEvent, error) {
	r, err := m.lookup(runID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status != pkg.StatusPaused {
		return nil, fmt.Errorf("resume on run %s in status %s: %w", runID, r.Status, pkg.ErrInvalidState)
	}
	if !r.decisionReady {
		return nil, fmt.Errorf("resume on run %s without a decision: %w", runID, pkg.ErrInvalidState)
	}

	cp, err := m.store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}

	m.transition(r, pkg.StatusRunning)
	r.Interrupt = nil
	r.decisionReady = false
	m.log.Info().Str("run_id", runID).Str("cursor", cp.Cursor).Msg("resuming run")

	outcome, err := m.driver.ResumeFrom(ctx, m.graph, runID, cp.Cursor, cp.State, cp.Seq)
	return m.absorb(ctx, r, outcome, err), err
}

// HasPending reports whether a checkpoint awaits a decision for the run.
func (m *Manager) HasPending(ctx context.Context, runID string) (bool, error) {
	return m.store.HasPending(ctx, runID)
}

func (m *Manager) lookup(runID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %q: %w", runID, pkg.ErrNotFound)
	}
	return r, nil
}

// absorb folds a driver outcome into the run: append events, persist the
// checkpoint on pause, drop it on completion. Returns the new events.
// Caller holds r.mu.
func (m *Manager) absorb(ctx context.Context, r *Run, outcome *graph.Outcome, driveErr error) []pkg.StepEvent {
	if outcome == nil {
		return nil
	}
	r.Events = append(r.Events, outcome.Events...)
	r.State = outcome.State
	r.UpdatedAt = time.Now()

	switch {
	case driveErr != nil:
		m.transition(r, pkg.StatusFailed)
		var execErr *pkg.ExecutionError
		if errors.As(driveErr, &execErr) {
			m.log.Error().Str("run_id", r.ID).Str("node", execErr.Node).Err(execErr.Err).Msg("run failed")
		}
	case outcome.Paused():
		cp := &checkpoint.Checkpoint{
			RunID:     r.ID,
			Cursor:    outcome.Cursor,
			State:     outcome.State,
			Seq:       len(r.Events),
			UpdatedAt: time.Now(),
		}
		if err := m.store.Save(ctx, cp); err != nil {
			m.log.Error().Str("run_id", r.ID).Err(err).Msg("failed to persist checkpoint")
			m.transition(r, pkg.StatusFailed)
			return outcome.Events
		}
		r.Interrupt = outcome.Interrupt
		m.transition(r, pkg.StatusPaused)
	default:
		m.transition(r, pkg.StatusCompleted)
		if err := m.store.Delete(ctx, r.ID); err != nil {
			m.log.Warn().Str("run_id", r.ID).Err(err).Msg("failed to drop checkpoint")
		}
	}
	return outcome.Events
}

// transition applies a lifecycle change, guarding the legal transition
// set. Illegal transitions indicate a manager bug, not caller error.
func (m *Manager) transition(r *Run, next pkg.RunStatus) {
	if !r.Status.CanTransition(next) {
		m.log.Error().Str("run_id", r.ID).
			Str("from", string(r.Status)).Str("to", string(next)).
			Msg("illegal status transition")
		return
	}
	r.Status = next
}
