// Package trigger adapts external event sources (a cron schedule, an HTTP
// endpoint) into task submissions against a scheduler.Scheduler. Grounded
// on orchestrator/trigger.go's Trigger/BaseTrigger shape, retargeted from
// "execute a workflow" to "submit a task".
package trigger

import (
	"context"

	"github.com/gbasilveira/taskscheduler/scheduler"
)

// Submitter is the narrow slice of scheduler.Scheduler a trigger needs.
// Grounded on orchestrator/trigger.go's WorkflowExecutor interface.
type Submitter interface {
	Submit(ctx context.Context, sub scheduler.Submission) error
}

// Trigger represents an event source that submits tasks when it fires.
type Trigger interface {
	// ID returns the unique identifier for this trigger.
	ID() string

	// Start begins listening for trigger events.
	Start(ctx context.Context, submitter Submitter) error

	// Stop stops the trigger from listening for events.
	Stop() error

	// IsActive returns whether the trigger is currently active.
	IsActive() bool

	// Type returns the type of trigger (e.g., "cron", "http").
	Type() string
}

// BaseTrigger provides common bookkeeping for all triggers.
type BaseTrigger struct {
	id          string
	active      bool
	triggerType string
}

// NewBaseTrigger creates a new base trigger.
func NewBaseTrigger(id, triggerType string) *BaseTrigger {
	return &BaseTrigger{
		id:          id,
		triggerType: triggerType,
	}
}

// ID returns the trigger's ID.
func (bt *BaseTrigger) ID() string {
	return bt.id
}

// Type returns the trigger's type.
func (bt *BaseTrigger) Type() string {
	return bt.triggerType
}

// IsActive returns whether the trigger is active.
func (bt *BaseTrigger) IsActive() bool {
	return bt.active
}

func (bt *BaseTrigger) setActive(active bool) {
	bt.active = active
}
