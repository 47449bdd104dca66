package approval

import (
	"context"
	"strings"

	"approvalflow/internal/graph"
	"approvalflow/pkg"
)

// State fields written by the approval workflow.
const (
	FieldTask           = "task"
	FieldRisk           = "risk"
	FieldApprovalStatus = "approval_status"
	FieldResult         = "result"
	FieldIteration      = "iteration"
	FieldDetail         = "detail"
)

// Risk levels assigned by the analyze node.
const (
	RiskHigh = "high"
	RiskLow  = "low"
)

// Approval statuses. AutoApproved marks low-risk tasks that never paused;
// the remaining values mirror the human decision.
const (
	StatusAutoApproved = "auto_approved"
	StatusApproved     = pkg.DecisionApproved
	StatusRejected     = pkg.DecisionRejected
	StatusModified     = pkg.DecisionModified
)

// Results carried on the completion event.
const (
	ResultExecuted  = "executed"
	ResultCancelled = "cancelled"
)

// Node names.
const (
	nodeAnalyze = "analyze"
	nodeExecute = "execute"
	nodeReject  = "reject"
)

// Config controls the risk predicate. A task containing any keyword
// (case-insensitive) is high risk and requires human approval.
type Config struct {
	Keywords []string `yaml:"keywords"`
}

// DefaultConfig returns the keyword list of the original demo.
func DefaultConfig() Config {
	return Config{Keywords: []string{"delete", "remove", "critical", "important", "sensitive"}}
}

// NewWorkflow builds the risk-gated approval graph:
//
//	analyze -> execute -> end
//	        \> reject  -> end
//
// The analyze node interrupts on high-risk tasks; after a decision is
// written it re-evaluates without pausing and the branch routes on the
// decision.
func NewWorkflow(cfg Config, exec *Executor) (*graph.Compiled, error) {
	if len(cfg.Keywords) == 0 {
		cfg = DefaultConfig()
	}

	g := graph.New(nodeAnalyze)
	if err := g.AddNode(nodeAnalyze, analyzeNode(cfg)); err != nil {
		return nil, err
	}
	if err := g.AddNode(nodeExecute, executeNode(exec)); err != nil {
		return nil, err
	}
	if err := g.AddNode(nodeReject, rejectNode); err != nil {
		return nil, err
	}

	if err := g.AddBranch(nodeAnalyze, routeAfterAnalyze, nodeExecute, nodeReject); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeExecute, graph.End); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeReject, graph.End); err != nil {
		return nil, err
	}

	return g.Compile()
}

// analyzeNode evaluates the risk predicate. Order matters: a modified task
// (iteration > 0) skips re-approval, an already-recorded decision unblocks
// the resume, and only then does a high-risk task pause the run.
func analyzeNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, state pkg.State) (pkg.State, *pkg.Interrupt, error) {
		s := state.Clone()
		task := s.GetString(FieldTask)

		if s.GetInt(FieldIteration) > 0 {
			s[FieldApprovalStatus] = StatusModified
			return s, nil, nil
		}

		if decision := s.GetString(pkg.FieldDecision); decision != "" {
			s[FieldApprovalStatus] = decision
			return s, nil, nil
		}

		if HighRisk(task, cfg.Keywords) {
			s[FieldRisk] = RiskHigh
			interrupt := &pkg.Interrupt{
				Node:   nodeAnalyze,
				Reason: "task requires human approval",
				Payload: map[string]any{
					"action": task,
					"risk":   RiskHigh,
				},
			}
			return s, interrupt, nil
		}

		s[FieldRisk] = RiskLow
		s[FieldApprovalStatus] = StatusAutoApproved
		return s, nil, nil
	}
}

func executeNode(exec *Executor) graph.NodeFunc {
	return func(ctx context.Context, state pkg.State) (pkg.State, *pkg.Interrupt, error) {
		s := state.Clone()
		detail, err := exec.Execute(ctx, s.GetString(FieldTask))
		if err != nil {
			return s, nil, err
		}
		s[FieldResult] = ResultExecuted
		s[FieldDetail] = detail
		return s, nil, nil
	}
}

func rejectNode(ctx context.Context, state pkg.State) (pkg.State, *pkg.Interrupt, error) {
	s := state.Clone()
	s[FieldResult] = ResultCancelled
	return s, nil, nil
}

func routeAfterAnalyze(state pkg.State) string {
	if state.GetString(FieldApprovalStatus) == StatusRejected {
		return nodeReject
	}
	return nodeExecute
}

// HighRisk reports whether the task trips the sensitive-keyword predicate.
func HighRisk(task string, keywords []string) bool {
	lowered := strings.ToLower(task)
	for _, kw := range keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
