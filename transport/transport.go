// Package transport carries submissions, dispatches, results, and engine
// up/down notifications between the scheduler and the outside world. It is
// grounded on orchestrator/transport/transport.go, trimmed of the
// workflow-RPC-specific Connection surface (ExecuteWorkflow,
// ExecuteSubWorkflow, StreamEvents, ...): the scheduler only needs
// dispatch/result/registration, not general workflow RPC semantics.
package transport

import (
	"context"
	"time"
)

// EngineInfo describes one discovered engine. Grounded on
// orchestrator/transport/transport.go's EngineInfo.
type EngineInfo struct {
	ID       string
	Address  string
	Port     int
	Capacity int
	Metadata map[string]string
	LastSeen time.Time
}

// ServiceDiscovery discovers the live engine set and reports changes to it.
// Grounded on orchestrator/transport/transport.go's ServiceDiscovery,
// unchanged in shape since engine discovery is domain-agnostic.
type ServiceDiscovery interface {
	// Discover starts discovering engines and streams successive full
	// snapshots of the live set.
	Discover(ctx context.Context) (<-chan []*EngineInfo, error)

	// Watch blocks, invoking onChange with the current engine set every
	// time it detects a change, until ctx is canceled.
	Watch(ctx context.Context, onChange func([]*EngineInfo)) error

	// Close stops discovery.
	Close() error
}

// Dispatcher delivers a dispatched task's framed payload to the engine that
// was chosen to run it. Implementations own the wire format (gRPC, in
// process channel, ...); the scheduler only ever calls this with the
// engine id and opaque bytes it was given at submission time.
type Dispatcher interface {
	Dispatch(ctx context.Context, engineID, msgID string, payload []byte) error
}

// ResultSink is the inbound side a Dispatcher's engine-facing transport
// feeds back into: every apply-reply or dependency-unmet notification an
// engine reports arrives here and is handed to the scheduler via
// scheduler.Scheduler.ReportResult.
type ResultSink interface {
	ReportResult(ctx context.Context, engineID, msgID string, success, dependenciesMet bool, payload []byte) error
}
