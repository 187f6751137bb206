// Command engine runs a simulated compute engine (exampleengine) behind a
// gRPC server. No engine service is registered on that server, so it
// accepts no dispatches over the wire, and task results are logged
// locally rather than sent to a scheduler. Same flag set and graceful-shutdown shape as the teacher's
// cmd/engine/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/gbasilveira/taskscheduler/exampleengine"
	"github.com/gbasilveira/taskscheduler/scheduler"
)

var (
	engineID = flag.String("engine-id", "", "Engine ID (required)")
	port     = flag.Int("port", 50051, "gRPC server port")
	capacity = flag.Int("capacity", 10, "Maximum concurrent tasks")
	address  = flag.String("address", "0.0.0.0", "Server address")
)

func main() {
	flag.Parse()

	if *engineID == "" {
		*engineID = os.Getenv("ENGINE_ID")
		if *engineID == "" {
			if hostname, err := os.Hostname(); err == nil {
				*engineID = hostname
			} else {
				log.Fatal("engine-id is required (use -engine-id flag or ENGINE_ID env var)")
			}
		}
	}

	log.Printf("Starting engine: %s", *engineID)
	log.Printf("Listening on %s:%d", *address, *port)
	log.Printf("Capacity: %d concurrent tasks", *capacity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := exampleengine.New(scheduler.EngineID(*engineID), *capacity)
	go eng.Run(ctx)

	go func() {
		for result := range eng.Out {
			log.Printf("task %s finished: success=%v dependencies_met=%v", result.MsgID, result.Success, result.DependenciesMet)
		}
	}()

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", *address, *port))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer()
	registerEngineServer(grpcServer, eng)

	log.Printf("gRPC server ready (protobuf code generation required for full functionality)")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down engine...")
	grpcServer.GracefulStop()
	cancel()
	log.Println("Engine stopped")
}
