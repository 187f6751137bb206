package main

import (
	"google.golang.org/grpc"

	"github.com/gbasilveira/taskscheduler/exampleengine"

	// Import will be available after protobuf generation:
	// proto "github.com/gbasilveira/taskscheduler/transport/proto/gen"
)

// engineGRPCServer implements the (pending-codegen) EngineService gRPC
// server. Dispatch hands an incoming payload to eng, which runs it
// asynchronously and reports its result on eng.Out. Placeholder in the
// same pending-protobuf shape as the teacher's own
// orchestrator/transport/grpc_transport.go and this file's previous,
// workflow-RPC-shaped contents.
type engineGRPCServer struct {
	// proto.UnimplementedEngineServiceServer
	engine *exampleengine.Engine
}

func newEngineGRPCServer(eng *exampleengine.Engine) *engineGRPCServer {
	return &engineGRPCServer{engine: eng}
}

func registerEngineServer(grpcServer *grpc.Server, eng *exampleengine.Engine) {
	_ = newEngineGRPCServer(eng)
	// Uncomment after running ./generate-proto.sh:
	// proto.RegisterEngineServiceServer(grpcServer, newEngineGRPCServer(eng))
}

// TODO: Implement against generated proto types after ./generate-proto.sh:
//
// func (s *engineGRPCServer) Dispatch(ctx context.Context, req *proto.DispatchRequest) (*proto.DispatchResponse, error) {
// 	select {
// 	case s.engine.In <- scheduler.Dispatch{MsgID: scheduler.MsgID(req.MsgId), Payload: req.Payload}:
// 		return &proto.DispatchResponse{Accepted: true}, nil
// 	default:
// 		return &proto.DispatchResponse{Accepted: false}, fmt.Errorf("engine %s input queue full", s.engine.ID)
// 	}
// }
//
// func (s *engineGRPCServer) HealthCheck(ctx context.Context, req *proto.HealthCheckRequest) (*proto.HealthCheckResponse, error) {
// 	return &proto.HealthCheckResponse{Healthy: true, Capacity: int32(s.engine.Capacity)}, nil
// }
