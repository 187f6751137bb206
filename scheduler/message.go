package scheduler

import (
	"time"

	"github.com/gbasilveira/taskscheduler/dependency"
)

// DependencySpec is the wire-level description of a Dependency, decoded
// from submission metadata. Grounded on spec.md §6's metadata table
// (after/follow carry ids plus all/success/failure flags).
type DependencySpec struct {
	IDs     []string
	All     bool
	Success bool
	Failure bool
}

// toDependency converts a wire-level spec into the internal predicate,
// applying the documented defaults (All=true, Success=true, Failure=false)
// when the spec is the zero value but IDs are present.
func (s *DependencySpec) toDependency() dependency.Dependency {
	if s == nil {
		return dependency.Dependency{}
	}
	d := dependency.Dependency{IDs: dependency.NewSet(s.IDs...), All: s.All, Success: s.Success, Failure: s.Failure}
	if len(d.IDs) > 0 && !d.Success && !d.Failure {
		d.All = true
		d.Success = true
	}
	return d
}

// Submission is what a client hands the scheduler: an opaque payload plus
// the placement/dependency/retry metadata spec.md §6 defines. Grounded on
// the shape of orchestrator/transport/transport.go's WorkflowRequest,
// narrowed from workflow-execution fields to task-dispatch fields.
type Submission struct {
	MsgID    MsgID
	ClientID string
	Payload  []byte

	Targets []EngineID
	After   *DependencySpec
	Follow  *DependencySpec
	Timeout time.Duration
	Retries int

	// AffinityKey optionally requests sticky placement via
	// scheduler.AffinityRouter; see scheduler/sticky.go.
	AffinityKey string
}

// Dispatch is what the scheduler hands a transport to deliver to an
// engine.
type Dispatch struct {
	MsgID   MsgID
	Engine  EngineID
	Payload []byte
}

// Result is what a transport hands the scheduler after an engine finishes
// (or refuses) a dispatched task.
type Result struct {
	MsgID           MsgID
	Engine          EngineID
	Success         bool
	DependenciesMet bool
	Payload         []byte
	// ErrorKind is set only for scheduler-synthesized failures (a stranded
	// engine's tasks); organic engine failures leave it empty and convey
	// their own error detail in Payload.
	ErrorKind ErrorKind
}

// Reply is what the scheduler hands a transport to relay back to the
// client that submitted MsgID.
type Reply struct {
	MsgID       MsgID
	ClientID    string
	Engine      EngineID
	Success     bool
	ErrorKind   ErrorKind
	Err         error
	Payload     []byte
	CompletedAt time.Time
}
