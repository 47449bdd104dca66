package graph

import (
	"context"
	"fmt"

	"approvalflow/pkg"
)

// End is the terminal marker. A node whose edge points at End (or that has
// no outgoing edge at all) finishes the run.
const End = "complete"

// NodeFunc is the unit of work in a graph. It receives the current state
// and returns the updated state. Returning a non-nil Interrupt suspends
// the run at this node boundary: the node is re-evaluated on resume, after
// the decision gate has updated the state.
type NodeFunc func(ctx context.Context, state pkg.State) (pkg.State, *pkg.Interrupt, error)

// Selector picks the next node for a conditional branch. It must be a pure
// function of the state so that runs are reproducible.
type Selector func(state pkg.State) string

type branch struct {
	selector Selector
	targets  map[string]bool
}

// Graph is a mutable builder for a workflow graph. Call Compile to obtain
// an executable graph; the builder is not safe for use after that.
type Graph struct {
	start    string
	nodes    map[string]NodeFunc
	edges    map[string]string
	branches map[string]branch
}

// New creates a graph builder whose execution begins at start.
func New(start string) *Graph {
	return &Graph{
		start:    start,
		nodes:    make(map[string]NodeFunc),
		edges:    make(map[string]string),
		branches: make(map[string]branch),
	}
}

// AddNode registers a named node.
func (g *Graph) AddNode(name string, fn NodeFunc) error {
	if name == "" || name == End {
		return fmt.Errorf("invalid node name: %q", name)
	}
	if fn == nil {
		return fmt.Errorf("node %q: func cannot be nil", name)
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("node %q already registered", name)
	}
	g.nodes[name] = fn
	return nil
}

// AddEdge declares that to runs after from. Use End as the target to make
// from a terminal node.
func (g *Graph) AddEdge(from, to string) error {
	if _, exists := g.edges[from]; exists {
		return fmt.Errorf("node %q already has an edge", from)
	}
	if _, exists := g.branches[from]; exists {
		return fmt.Errorf("node %q already has a branch", from)
	}
	g.edges[from] = to
	return nil
}

// AddBranch declares a conditional edge: after from executes, selector
// picks one of targets based on the resulting state.
func (g *Graph) AddBranch(from string, selector Selector, targets ...string) error {
	if selector == nil {
		return fmt.Errorf("branch from %q: selector cannot be nil", from)
	}
	if len(targets) == 0 {
		return fmt.Errorf("branch from %q: no targets", from)
	}
	if _, exists := g.edges[from]; exists {
		return fmt.Errorf("node %q already has an edge", from)
	}
	if _, exists := g.branches[from]; exists {
		return fmt.Errorf("node %q already has a branch", from)
	}
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	g.branches[from] = branch{selector: selector, targets: set}
	return nil
}

// Compiled is an immutable, validated graph ready for the driver.
type Compiled struct {
	start    string
	nodes    map[string]NodeFunc
	edges    map[string]string
	branches map[string]branch
}

// Compile validates the graph and freezes it. Validation failures are
// fatal (*pkg.GraphDefinitionError): a graph must start at a known node,
// every edge and branch target must resolve, and the terminal must be
// reachable from every node.
func (g *Graph) Compile() (*Compiled, error) {
	if len(g.nodes) == 0 {
		return nil, &pkg.GraphDefinitionError{Reason: "graph has no nodes"}
	}
	if _, ok := g.nodes[g.start]; !ok {
		return nil, &pkg.GraphDefinitionError{Reason: fmt.Sprintf("start node %q is not registered", g.start)}
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, &pkg.GraphDefinitionError{Reason: fmt.Sprintf("edge from unknown node %q", from)}
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, &pkg.GraphDefinitionError{Reason: fmt.Sprintf("edge %q -> %q targets unknown node", from, to)}
			}
		}
	}
	for from, br := range g.branches {
		if _, ok := g.nodes[from]; !ok {
			return nil, &pkg.GraphDefinitionError{Reason: fmt.Sprintf("branch from unknown node %q", from)}
		}
		for t := range br.targets {
			if t != End {
				if _, ok := g.nodes[t]; !ok {
					return nil, &pkg.GraphDefinitionError{Reason: fmt.Sprintf("branch %q -> %q targets unknown node", from, t)}
				}
			}
		}
	}
	for name := range g.nodes {
		if !g.reachesEnd(name, make(map[string]bool)) {
			return nil, &pkg.GraphDefinitionError{Reason: fmt.Sprintf("no terminal node reachable from %q", name)}
		}
	}
	return &Compiled{
		start:    g.start,
		nodes:    g.nodes,
		edges:    g.edges,
		branches: g.branches,
	}, nil
}

// reachesEnd walks successors of name looking for End. A node with no
// outgoing edge or branch is an implicit terminal.
func (g *Graph) reachesEnd(name string, seen map[string]bool) bool {
	if name == End {
		return true
	}
	if seen[name] {
		return false
	}
	seen[name] = true

	if to, ok := g.edges[name]; ok {
		return g.reachesEnd(to, seen)
	}
	if br, ok := g.branches[name]; ok {
		for t := range br.targets {
			if g.reachesEnd(t, seen) {
				return true
			}
		}
		return false
	}
	return true
}

// Start returns the entry node name.
func (c *Compiled) Start() string {
	return c.start
}

// node looks up a registered node.
func (c *Compiled) node(name string) (NodeFunc, bool) {
	fn, ok := c.nodes[name]
	return fn, ok
}

// next resolves the node that follows from, given the state produced by
// it. A branch whose selector picks an undeclared target is an execution
// error, not a silent fallthrough.
func (c *Compiled) next(from string, state pkg.State) (string, error) {
	if to, ok := c.edges[from]; ok {
		return to, nil
	}
	if br, ok := c.branches[from]; ok {
		target := br.selector(state)
		if !br.targets[target] {
			return "", fmt.Errorf("branch from %q selected undeclared target %q", from, target)
		}
		return target, nil
	}
	return End, nil
}
