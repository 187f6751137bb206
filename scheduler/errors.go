package scheduler

import "errors"

// ErrorKind classifies why the scheduler itself failed a task, as opposed
// to an application-level failure reported by an engine. Grounded on
// task_scheduler.py's error.InvalidDependency / error.ImpossibleDependency /
// error.TaskTimeout / EngineError, and spec.md §7.
type ErrorKind string

const (
	// KindInvalidDependency: a submission named an after/follow id that
	// the scheduler has never heard of and cannot ever resolve.
	KindInvalidDependency ErrorKind = "InvalidDependency"
	// KindImpossibleDependency: the dependency named ids that did exist
	// but have already finished in a way that can never satisfy it (or
	// placement constraints were exhausted).
	KindImpossibleDependency ErrorKind = "ImpossibleDependency"
	// KindTaskTimeout: the task's timeout elapsed while still parked on
	// the waiting queue.
	KindTaskTimeout ErrorKind = "TaskTimeout"
	// KindEngineError: the engine running the task vanished
	// (unregistered) before reporting a result.
	KindEngineError ErrorKind = "EngineError"
)

var (
	ErrInvalidDependency    = errors.New("invalid dependency")
	ErrImpossibleDependency = errors.New("impossible dependency")
	ErrTaskTimeout          = errors.New("task timed out")
	ErrEngineError          = errors.New("engine error")
)

// errForKind maps a kind back to its sentinel error, for constructing
// Reply.Err values.
func errForKind(kind ErrorKind) error {
	switch kind {
	case KindInvalidDependency:
		return ErrInvalidDependency
	case KindImpossibleDependency:
		return ErrImpossibleDependency
	case KindTaskTimeout:
		return ErrTaskTimeout
	case KindEngineError:
		return ErrEngineError
	default:
		return nil
	}
}
