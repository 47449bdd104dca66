package graph

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"approvalflow/pkg"
)

// Outcome is the result of driving a graph until it completes, pauses or
// fails. When Interrupt is non-nil the run is paused and Cursor names the
// node to re-evaluate on resume; otherwise the final state carries the
// result of the terminal node.
type Outcome struct {
	Events    []pkg.StepEvent
	State     pkg.State
	Interrupt *pkg.Interrupt
	Cursor    string
}

// Paused reports whether the run suspended on an interrupt.
func (o *Outcome) Paused() bool {
	return o.Interrupt != nil
}

// Driver executes a compiled graph node by node, emitting one StepEvent
// per node plus one event per pause/completion boundary. Execution is
// sequential and deterministic: node order and branch outcomes depend only
// on the state.
type Driver struct {
	log zerolog.Logger
}

// NewDriver creates a driver that logs through the given logger.
func NewDriver(log zerolog.Logger) *Driver {
	return &Driver{log: log}
}

// Run executes the graph from its start node with the given initial state.
// Event sequence numbers begin at 0.
func (d *Driver) Run(ctx context.Context, g *Compiled, runID string, state pkg.State) (*Outcome, error) {
	return d.drive(ctx, g, runID, g.Start(), state, 0)
}

// ResumeFrom continues a paused run from its checkpoint: cursor is the
// node that interrupted, state is the persisted snapshot (updated by the
// decision gate), and seq continues the run's event numbering. The
// interrupting node is re-evaluated against the new state, so it does not
// re-trigger the same interrupt.
func (d *Driver) ResumeFrom(ctx context.Context, g *Compiled, runID, cursor string, state pkg.State, seq int) (*Outcome, error) {
	return d.drive(ctx, g, runID, cursor, state, seq)
}

func (d *Driver) drive(ctx context.Context, g *Compiled, runID, current string, state pkg.State, seq int) (*Outcome, error) {
	out := &Outcome{State: state.Clone()}

	for current != End {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		fn, ok := g.node(current)
		if !ok {
			// Compile guarantees resolvable targets; a stale checkpoint
			// cursor can still miss after a graph change.
			return out, &pkg.ExecutionError{Node: current, State: out.State, Err: errUnknownNode(current)}
		}

		d.log.Debug().Str("run_id", runID).Str("node", current).Msg("executing node")

		next, interrupt, err := fn(ctx, out.State)
		if err != nil {
			d.log.Error().Str("run_id", runID).Str("node", current).Err(err).Msg("node failed")
			return out, &pkg.ExecutionError{Node: current, State: out.State, Err: err}
		}
		if next != nil {
			out.State = next
		}

		if interrupt != nil {
			out.Interrupt = interrupt
			out.Cursor = current
			out.Events = append(out.Events, pkg.StepEvent{
				Seq:       seq,
				Kind:      pkg.EventInterrupt,
				Node:      current,
				Payload:   interrupt.Payload,
				Timestamp: time.Now(),
			})
			d.log.Info().Str("run_id", runID).Str("node", current).Str("reason", interrupt.Reason).Msg("run paused on interrupt")
			return out, nil
		}

		out.Events = append(out.Events, pkg.StepEvent{
			Seq:       seq,
			Kind:      pkg.EventStep,
			Node:      current,
			Timestamp: time.Now(),
		})
		seq++

		target, err := g.next(current, out.State)
		if err != nil {
			return out, &pkg.ExecutionError{Node: current, State: out.State, Err: err}
		}
		current = target
	}

	out.Events = append(out.Events, pkg.StepEvent{
		Seq:       seq,
		Kind:      pkg.EventCompletion,
		Node:      End,
		Payload:   map[string]any(out.State.Clone()),
		Timestamp: time.Now(),
	})
	d.log.Info().Str("run_id", runID).Int("steps", len(out.Events)).Msg("run completed")
	return out, nil
}

type errUnknownNode string

func (e errUnknownNode) Error() string {
	return "unknown node: " + string(e)
}
