package submissionspec

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gbasilveira/taskscheduler/scheduler"
	"github.com/gbasilveira/taskscheduler/trigger"
)

// Parse decodes and validates a TaskSubmissionSpec from YAML bytes.
func Parse(data []byte) (*TaskSubmissionSpec, error) {
	var spec TaskSubmissionSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing submission spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ParseFile reads and parses a TaskSubmissionSpec from path.
func ParseFile(path string) (*TaskSubmissionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading submission spec %s: %w", path, err)
	}
	return Parse(data)
}

// toSubmission builds the scheduler.Submission a fire of this spec should
// produce. msgID is supplied by the caller (the trigger builder) since a
// recurring spec produces a fresh MsgID on every fire.
func (ts *TaskSubmissionSpec) toSubmission(msgID scheduler.MsgID) scheduler.Submission {
	def := ts.Spec
	targets := make([]scheduler.EngineID, len(def.Targets))
	for i, t := range def.Targets {
		targets[i] = scheduler.EngineID(t)
	}
	return scheduler.Submission{
		MsgID:       msgID,
		ClientID:    ts.Metadata.ID,
		Payload:     []byte(def.Payload),
		Targets:     targets,
		After:       def.After.toScheduler(),
		Follow:      def.Follow.toScheduler(),
		Timeout:     time.Duration(def.TimeoutSec) * time.Second,
		Retries:     def.Retries,
		AffinityKey: def.AffinityKey,
	}
}

func (d *DependencySpec) toScheduler() *scheduler.DependencySpec {
	if d == nil {
		return nil
	}
	return &scheduler.DependencySpec{IDs: d.IDs, All: d.All, Success: d.Success, Failure: d.Failure}
}

// LoadTrigger parses path and builds the trigger.Trigger it describes: a
// CronTrigger if spec.Trigger.Cron is set, an HTTPTrigger if
// spec.Trigger.HTTP is set. A spec with neither is rejected — LoadTrigger
// is only for the recurring/webhook-driven case; a one-shot submission is
// simpler to issue directly via scheduler.Scheduler.Submit.
func LoadTrigger(path string) (trigger.Trigger, error) {
	spec, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	if spec.Spec.Trigger == nil {
		return nil, fmt.Errorf("%s: submission has no trigger (cron or http required)", path)
	}

	switch {
	case spec.Spec.Trigger.Cron != nil:
		return buildCronTrigger(spec)
	case spec.Spec.Trigger.HTTP != nil:
		return buildHTTPTrigger(spec), nil
	default:
		return nil, fmt.Errorf("%s: trigger must set exactly one of cron or http", path)
	}
}

func buildCronTrigger(spec *TaskSubmissionSpec) (trigger.Trigger, error) {
	return trigger.NewCronTrigger(trigger.CronTriggerConfig{
		ID:       spec.Metadata.ID,
		Schedule: spec.Spec.Trigger.Cron.Schedule,
		Builder: func(fireTime time.Time, sequence uint64) scheduler.Submission {
			msgID := scheduler.MsgID(fmt.Sprintf("%s-%d", spec.Metadata.ID, sequence))
			return spec.toSubmission(msgID)
		},
	})
}

// buildHTTPTrigger wires spec's addr/path to an HTTPTrigger using the
// trigger package's default request builder: the webhook call's JSON body
// supplies the per-fire msgId/payload, while the spec only configures
// where the webhook listens.
func buildHTTPTrigger(spec *TaskSubmissionSpec) trigger.Trigger {
	return trigger.NewHTTPTrigger(trigger.HTTPTriggerConfig{
		ID:   spec.Metadata.ID,
		Addr: spec.Spec.Trigger.HTTP.Addr,
		Path: spec.Spec.Trigger.HTTP.Path,
	})
}
