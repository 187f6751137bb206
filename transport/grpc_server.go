package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/gbasilveira/taskscheduler/scheduler"

	// Uncomment after running ./generate-proto.sh:
	// proto "github.com/gbasilveira/taskscheduler/transport/proto/gen"
)

// SchedulerGRPCServer exposes a scheduler.Scheduler's Submit/ReportResult
// entry points over gRPC. Hand-rolled wiring in the same pending-codegen
// shape as the teacher's own cmd/orchestrator/main.go and
// orchestrator/transport/grpc_transport.go: service registration is left
// commented pending a ./generate-proto.sh that was never run in the
// teacher repo either. This mirrors the teacher's actual committed state
// rather than inventing real protobuf bindings we cannot generate without
// running the toolchain.
type SchedulerGRPCServer struct {
	// proto.UnimplementedSchedulerServiceServer
	sched *scheduler.Scheduler
	grpc  *grpc.Server
}

// NewSchedulerGRPCServer wires sched behind a bare grpc.Server.
func NewSchedulerGRPCServer(sched *scheduler.Scheduler) *SchedulerGRPCServer {
	return &SchedulerGRPCServer{
		sched: sched,
		grpc:  grpc.NewServer(),
	}
}

// Serve listens on address and blocks until the listener is closed.
func (s *SchedulerGRPCServer) Serve(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// Uncomment after running ./generate-proto.sh:
	// proto.RegisterSchedulerServiceServer(s.grpc, s)

	return s.grpc.Serve(lis)
}

// GracefulStop drains in-flight RPCs before returning.
func (s *SchedulerGRPCServer) GracefulStop() {
	s.grpc.GracefulStop()
}

// TODO: once generate-proto.sh has run, implement the SchedulerService
// methods below against the generated proto types instead of leaving them
// as placeholders:
//
// func (s *SchedulerGRPCServer) Submit(ctx context.Context, req *proto.SubmitRequest) (*proto.SubmitResponse, error) {
// 	return &proto.SubmitResponse{Accepted: false}, s.sched.Submit(ctx, convertSubmission(req))
// }
//
// func (s *SchedulerGRPCServer) ReportResult(ctx context.Context, req *proto.ResultRequest) (*proto.ResultResponse, error) {
// 	return &proto.ResultResponse{}, s.sched.ReportResult(ctx, convertResult(req))
// }

// EngineGRPCClient keeps one connection per dialed engine and implements
// Dispatcher; its Dispatch is a placeholder that returns an error rather
// than forwarding the payload. It does not implement ResultSink. Grounded on
// orchestrator/transport/grpc_transport.go's GRPCTransport/grpcConnection,
// narrowed from workflow RPC to a single Dispatch method.
type EngineGRPCClient struct {
	dialOptions []grpc.DialOption
	mu          sync.RWMutex
	conns       map[string]*grpc.ClientConn
	timeout     time.Duration
}

// NewEngineGRPCClient creates a client with no connections. Engines are
// dialed as discovery reports them (WatchScheduler calls Dial with each
// discovered engine's address); Dispatch fails for an engine that has not
// been dialed.
func NewEngineGRPCClient(timeout time.Duration) *EngineGRPCClient {
	return &EngineGRPCClient{
		dialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                10 * time.Second,
				Timeout:             3 * time.Second,
				PermitWithoutStream: true,
			}),
		},
		conns:   make(map[string]*grpc.ClientConn),
		timeout: timeout,
	}
}

// Dial establishes (or reuses) a connection to address, keyed by engineID.
func (c *EngineGRPCClient) Dial(ctx context.Context, engineID, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.conns[engineID]; ok {
		return nil
	}
	conn, err := grpc.DialContext(ctx, address, c.dialOptions...)
	if err != nil {
		return fmt.Errorf("failed to dial engine %s: %w", engineID, err)
	}
	c.conns[engineID] = conn
	return nil
}

// Dispatch implements transport.Dispatcher. It is a placeholder pending
// protobuf generation, matching the teacher's own ExecuteWorkflow
// placeholder in orchestrator/transport/grpc_transport.go.
func (c *EngineGRPCClient) Dispatch(ctx context.Context, engineID, msgID string, payload []byte) error {
	c.mu.RLock()
	_, ok := c.conns[engineID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no connection to engine %s", engineID)
	}

	// TODO: Implement after protobuf generation:
	// ctx, cancel := context.WithTimeout(ctx, c.timeout)
	// defer cancel()
	// client := proto.NewEngineServiceClient(c.conns[engineID])
	// _, err := client.Dispatch(ctx, &proto.DispatchRequest{MsgId: msgID, Payload: payload})
	// return err

	return fmt.Errorf("protobuf code generation required")
}

// CloseEngine closes and forgets the connection to engineID, if any.
// Called when discovery reports the engine gone.
func (c *EngineGRPCClient) CloseEngine(engineID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[engineID]
	if !ok {
		return nil
	}
	delete(c.conns, engineID)
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection to %s: %w", engineID, err)
	}
	return nil
}

// Close closes every open connection.
func (c *EngineGRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, conn := range c.conns {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection to %s: %w", id, err)
		}
		delete(c.conns, id)
	}
	return nil
}
