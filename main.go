package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gbasilveira/taskscheduler/exampleengine"
	"github.com/gbasilveira/taskscheduler/scheduler"
	"github.com/gbasilveira/taskscheduler/trigger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := scheduler.NewMonitor()
	monitor.Start()
	defer monitor.Stop()

	dispatchOut := make(chan scheduler.Dispatch, 64)
	replyOut := make(chan scheduler.Reply, 64)

	cfg := scheduler.DefaultConfig()
	cfg.HWM = 2
	sched := scheduler.NewScheduler(cfg, monitor, dispatchOut, replyOut)
	go sched.Run(ctx)

	// Register three in-process simulated engines directly with the
	// scheduler, and wire their In/Out channels to dispatchOut/replyOut so
	// this demo exercises the full submit -> dispatch -> execute -> result
	// -> reply loop without any transport.
	engines := make(map[scheduler.EngineID]*exampleengine.Engine)
	for i := 1; i <= 3; i++ {
		id := scheduler.EngineID(fmt.Sprintf("engine-%d", i))
		eng := exampleengine.New(id, 2)
		engines[id] = eng
		go eng.Run(ctx)
		if err := sched.RegisterEngine(ctx, id); err != nil {
			log.Fatalf("Failed to register engine %s: %v", id, err)
		}
		fmt.Printf("Registered engine: %s\n", id)
	}

	// Pump dispatched tasks to the engine the scheduler chose, and pump
	// each engine's results back into the scheduler.
	go func() {
		for d := range dispatchOut {
			eng, ok := engines[d.Engine]
			if !ok {
				continue
			}
			select {
			case eng.In <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	for _, eng := range engines {
		eng := eng
		go func() {
			for r := range eng.Out {
				if err := sched.ReportResult(ctx, r); err != nil {
					return
				}
			}
		}()
	}

	// Subscribe to monitor events.
	monitorSub := sched.Subscribe()
	go func() {
		for event := range monitorSub {
			fmt.Printf("[MONITOR] %s - task=%s engine=%s\n", event.Topic, event.MsgID, event.Engine)
		}
	}()

	// Subscribe to replies.
	go func() {
		for reply := range replyOut {
			if reply.Success {
				fmt.Printf("[REPLY] %s completed on %s\n", reply.MsgID, reply.Engine)
			} else {
				fmt.Printf("[REPLY] %s failed: %s (%v)\n", reply.MsgID, reply.ErrorKind, reply.Err)
			}
		}
	}()

	// A small dependency chain: root runs immediately, two tasks depend on
	// it (after), a final task depends on both of those.
	submit(ctx, sched, "root", `print("running root")`, nil, 0)
	submit(ctx, sched, "branch-a", `print("running branch a")`, []string{"root"}, 0)
	submit(ctx, sched, "branch-b", `print("running branch b")`, []string{"root"}, 0)
	submit(ctx, sched, "join", `print("running join")`, []string{"branch-a", "branch-b"}, 0)

	// A cron trigger that resubmits the root task every 30 seconds.
	seq := 0
	cronTrigger, err := trigger.NewCronTrigger(trigger.CronTriggerConfig{
		ID:       "cron-trigger-1",
		Schedule: "*/30 * * * * *",
		Builder: func(fireTime time.Time, sequence uint64) scheduler.Submission {
			seq++
			return scheduler.Submission{
				MsgID:    scheduler.MsgID(fmt.Sprintf("cron-root-%d", seq)),
				ClientID: "demo",
				Payload:  []byte(`print("running scheduled root")`),
			}
		},
	})
	if err != nil {
		log.Fatalf("Failed to create cron trigger: %v", err)
	}
	if err := cronTrigger.Start(ctx, sched); err != nil {
		log.Fatalf("Failed to start cron trigger: %v", err)
	}
	defer cronTrigger.Stop()
	fmt.Printf("Started cron trigger: %s (every 30 seconds)\n", cronTrigger.ID())

	// An HTTP trigger accepting ad hoc submissions.
	httpTrigger := trigger.NewHTTPTrigger(trigger.HTTPTriggerConfig{
		ID:   "http-trigger-1",
		Addr: ":8080",
		Path: "/submit",
	})
	if err := httpTrigger.Start(ctx, sched); err != nil {
		log.Fatalf("Failed to start HTTP trigger: %v", err)
	}
	defer httpTrigger.Stop()
	fmt.Printf("Started HTTP trigger: %s at http://localhost:8080/submit\n", httpTrigger.ID())

	fmt.Println("\nScheduler running. Press Ctrl+C to stop.")
	fmt.Println("Submit ad hoc tasks via: POST http://localhost:8080/submit")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
}

func submit(ctx context.Context, sched *scheduler.Scheduler, id, payload string, after []string, retries int) {
	sub := scheduler.Submission{
		MsgID:    scheduler.MsgID(id),
		ClientID: "demo",
		Payload:  []byte(payload),
		Retries:  retries,
	}
	if len(after) > 0 {
		sub.After = &scheduler.DependencySpec{IDs: after, All: true, Success: true}
	}
	if err := sched.Submit(ctx, sub); err != nil {
		log.Printf("failed to submit %s: %v", id, err)
	}
}
