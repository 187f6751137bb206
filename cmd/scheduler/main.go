// Command scheduler runs the task scheduler as a standalone service:
// engines are discovered from Kubernetes, a gRPC server is started (with
// no scheduler service registered on it, so it serves no RPCs), and
// declarative submissionspec files under -submissions-dir are loaded as
// cron/HTTP triggers. Replaces the teacher's
// cmd/orchestrator/main.go; same flag/shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gbasilveira/taskscheduler/scheduler"
	"github.com/gbasilveira/taskscheduler/submissionspec"
	"github.com/gbasilveira/taskscheduler/transport"
	"github.com/gbasilveira/taskscheduler/trigger"
)

var (
	address          = flag.String("address", "0.0.0.0", "gRPC server address")
	port             = flag.Int("port", 50052, "gRPC server port")
	k8sNamespace     = flag.String("k8s-namespace", "default", "namespace to discover engines in")
	k8sLabelSelector = flag.String("k8s-label-selector", "app=taskscheduler-engine", "pod label selector for engine discovery")
	k8sInCluster     = flag.Bool("k8s-in-cluster", true, "use in-cluster Kubernetes config")
	submissionsDir   = flag.String("submissions-dir", "", "directory of submissionspec YAML files to load as triggers")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := scheduler.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid scheduler config: %v", err)
	}

	monitor := scheduler.NewMonitor()
	monitor.Start()
	defer monitor.Stop()

	dispatchOut := make(chan scheduler.Dispatch, 256)
	replyOut := make(chan scheduler.Reply, 256)

	sched := scheduler.NewScheduler(cfg, monitor, dispatchOut, replyOut)
	go sched.Run(ctx)

	grpcServer := transport.NewSchedulerGRPCServer(sched)
	go func() {
		addr := fmt.Sprintf("%s:%d", *address, *port)
		log.Printf("scheduler gRPC server listening on %s", addr)
		if err := grpcServer.Serve(addr); err != nil {
			log.Printf("gRPC server stopped: %v", err)
		}
	}()

	engineClient := transport.NewEngineGRPCClient(10 * time.Second)
	defer engineClient.Close()

	discovery, err := transport.NewKubernetesDiscovery(*k8sNamespace, "taskscheduler-engines", *k8sLabelSelector, *k8sInCluster)
	if err != nil {
		log.Printf("kubernetes discovery unavailable, running without engine auto-discovery: %v", err)
	} else {
		go func() {
			if err := transport.WatchScheduler(ctx, discovery, sched, engineClient); err != nil {
				log.Printf("engine discovery stopped: %v", err)
			}
		}()
		defer discovery.Close()
	}

	var triggers []trigger.Trigger
	if *submissionsDir != "" {
		triggers = loadSubmissionTriggers(*submissionsDir)
		for _, t := range triggers {
			if err := t.Start(ctx, sched); err != nil {
				log.Printf("failed to start trigger %s: %v", t.ID(), err)
			}
		}
	}

	go func() {
		for d := range dispatchOut {
			if err := engineClient.Dispatch(ctx, string(d.Engine), string(d.MsgID), d.Payload); err != nil {
				log.Printf("dispatch %s to %s failed: %v", d.MsgID, d.Engine, err)
			}
		}
	}()

	go func() {
		for reply := range replyOut {
			if !reply.Success {
				log.Printf("task %s failed: kind=%s err=%v", reply.MsgID, reply.ErrorKind, reply.Err)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down scheduler...")
	for _, t := range triggers {
		_ = t.Stop()
	}
	grpcServer.GracefulStop()
	cancel()
	time.Sleep(100 * time.Millisecond)
	log.Println("scheduler stopped")
}

// loadSubmissionTriggers reads every *.yaml/*.yml file in dir, validates
// it against submissionspec, and builds the cron or HTTP trigger it
// describes. Matches the teacher's pattern of loading workflow specs from
// a local directory (cmd/management/yaml_parser.go) rather than a
// management plane.
func loadSubmissionTriggers(dir string) []trigger.Trigger {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("failed to read submissions dir %s: %v", dir, err)
		return nil
	}

	var triggers []trigger.Trigger
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		t, err := submissionspec.LoadTrigger(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		triggers = append(triggers, t)
	}
	return triggers
}
