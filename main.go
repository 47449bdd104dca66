package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"approvalflow/internal/approval"
	"approvalflow/internal/checkpoint"
	"approvalflow/internal/config"
	"approvalflow/internal/logger"
	"approvalflow/internal/run"
	"approvalflow/pkg"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env file: %v\n", err)
	}

	cfgPath := os.Getenv("APPROVALFLOW_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "error loading %s: %v\n", cfgPath, err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()

	ctx := context.Background()

	var store checkpoint.Store
	switch cfg.Checkpoint.Backend {
	case "redis":
		url := os.Getenv("REDIS_URL")
		if url == "" {
			url = cfg.Checkpoint.Redis.URL
		}
		redisStore, err := checkpoint.NewRedisStore(ctx, checkpoint.RedisOptions{
			URL:       url,
			KeyPrefix: cfg.Checkpoint.Redis.KeyPrefix,
			TTL:       time.Duration(cfg.Checkpoint.Redis.TTLSeconds) * time.Second,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create redis checkpoint store")
		}
		defer redisStore.Close()
		store = redisStore
	default:
		store = checkpoint.NewMemoryStore()
	}

	exec, err := approval.NewExecutor(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build task executor")
	}

	// A malformed graph is fatal at startup, before any run is accepted.
	workflow, err := approval.NewWorkflow(approval.Config{Keywords: cfg.Approval.Keywords}, exec)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build approval workflow")
	}

	mgr := run.NewManager(workflow, store, *log)

	fmt.Println("approvalflow - human-in-the-loop task approval")
	fmt.Println("commands:")
	fmt.Println("  start <task>                      submit a task")
	fmt.Println("  status <run-id>                   show run status and pending interrupt")
	fmt.Println("  decide <run-id> approved|rejected record a decision")
	fmt.Println("  decide <run-id> modified <task>   replace the task and skip re-approval")
	fmt.Println("  resume <run-id>                   continue a paused run")
	fmt.Println("  quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := fields[0]

		switch cmd {
		case "quit", "exit":
			return

		case "start":
			if len(fields) < 2 {
				fmt.Println("usage: start <task>")
				continue
			}
			task := strings.Join(fields[1:], " ")
			input := pkg.State{approval.FieldTask: task, approval.FieldIteration: 0}
			runID, events, err := mgr.Start(ctx, input)
			if err != nil {
				fmt.Printf("run %s failed: %v\n", runID, err)
				continue
			}
			fmt.Printf("run %s\n", runID)
			printEvents(events)

		case "status":
			if len(fields) != 2 {
				fmt.Println("usage: status <run-id>")
				continue
			}
			st, err := mgr.Get(fields[1])
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("status: %s\n", st.Status)
			if st.Interrupt != nil {
				fmt.Printf("awaiting decision: %s (payload: %v)\n", st.Interrupt.Reason, st.Interrupt.Payload)
			}
			if st.Result != nil {
				fmt.Printf("result: %v\n", st.Result[approval.FieldResult])
			}

		case "decide":
			if len(fields) < 3 {
				fmt.Println("usage: decide <run-id> approved|rejected|modified [task]")
				continue
			}
			runID, decision := fields[1], fields[2]
			var updates pkg.State
			if decision == pkg.DecisionModified {
				if len(fields) < 4 {
					fmt.Println("usage: decide <run-id> modified <task>")
					continue
				}
				updates = pkg.State{
					approval.FieldTask:      strings.Join(fields[3:], " "),
					approval.FieldIteration: 1,
				}
			}
			if err := mgr.Decide(ctx, runID, decision, updates); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("decision recorded; resume to continue")

		case "resume":
			if len(fields) != 2 {
				fmt.Println("usage: resume <run-id>")
				continue
			}
			events, err := mgr.Resume(ctx, fields[1])
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			printEvents(events)

		default:
			fmt.Printf("unknown command: %s\n", cmd)
		}
	}
}

func printEvents(events []pkg.StepEvent) {
	for _, ev := range events {
		switch ev.Kind {
		case pkg.EventInterrupt:
			fmt.Printf("  [%d] interrupt at %s: %v\n", ev.Seq, ev.Node, ev.Payload)
		case pkg.EventCompletion:
			fmt.Printf("  [%d] completed: result=%v\n", ev.Seq, ev.Payload[approval.FieldResult])
		default:
			fmt.Printf("  [%d] step %s\n", ev.Seq, ev.Node)
		}
	}
}
