package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
)

// Executor runs an approved task through an eino lambda pipeline compiled
// once at construction: prepare normalizes the task, execute produces the
// outcome line. Both lambdas are pure, keeping runs reproducible.
type Executor struct {
	pipeline compose.Runnable[string, string]
}

// NewExecutor compiles the task pipeline.
func NewExecutor(ctx context.Context) (*Executor, error) {
	g := compose.NewGraph[string, string]()

	prepare := compose.InvokableLambda(func(ctx context.Context, task string) (string, error) {
		task = strings.TrimSpace(task)
		if task == "" {
			return "", fmt.Errorf("task must not be empty")
		}
		return task, nil
	})

	execute := compose.InvokableLambda(func(ctx context.Context, task string) (string, error) {
		return fmt.Sprintf("task %q executed", task), nil
	})

	g.AddLambdaNode("prepare", prepare)
	g.AddLambdaNode("execute", execute)

	g.AddEdge(compose.START, "prepare")
	g.AddEdge("prepare", "execute")
	g.AddEdge("execute", compose.END)

	pipeline, err := g.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error compiling executor pipeline: %w", err)
	}
	return &Executor{pipeline: pipeline}, nil
}

// Execute runs the task through the pipeline and returns the outcome line.
func (e *Executor) Execute(ctx context.Context, task string) (string, error) {
	return e.pipeline.Invoke(ctx, task)
}
