package scheduler

import (
	"time"

	"github.com/gbasilveira/taskscheduler/dependency"
)

// MsgID identifies a single submitted task end to end: submission,
// dispatch, result, and any dependency that names it.
type MsgID string

// EngineID identifies a compute engine registered with the scheduler.
type EngineID string

// Job is the scheduler's internal record for a submitted task while it is
// unresolved: parked on the waiting queue, pending on an engine, or both in
// sequence across retries. It is grounded on the `Job` class in
// task_scheduler.py.
type Job struct {
	MsgID     MsgID
	ClientID  string
	Payload   []byte
	After     dependency.Dependency
	Follow    dependency.Dependency
	Targets   dependency.Set
	Blacklist dependency.Set
	Timeout   time.Duration
	Submitted time.Time

	// Removed marks this Job as a tombstone: it has been popped out of the
	// waiting queue logically (fail_unreachable, successful dispatch) but a
	// stale copy may still sit in the queue slice until it is scanned past.
	Removed bool

	// TimeoutID is bumped every time the job is (re)parked with an active
	// timeout so that a timer firing for a stale round can recognize
	// itself as obsolete and do nothing.
	TimeoutID uint64
}

// Dependents returns the set of ids this job is itself waiting on: the
// union of After and Follow, used to index the reverse dependency graph.
func (j *Job) Dependents() dependency.Set {
	out := make(dependency.Set, len(j.After.IDs)+len(j.Follow.IDs))
	for id := range j.After.IDs {
		out[id] = struct{}{}
	}
	for id := range j.Follow.IDs {
		out[id] = struct{}{}
	}
	return out
}
