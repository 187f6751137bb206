package submissionspec

import (
	"fmt"
	"regexp"
	"strings"
)

// Validate validates a TaskSubmissionSpec and returns any errors. Grounded
// on spec/validator.go's cascading WorkflowSpec.Validate.
func (ts *TaskSubmissionSpec) Validate() error {
	var errs []string

	if ts.APIVersion == "" {
		errs = append(errs, "apiVersion is required")
	} else if ts.APIVersion != "scheduler/v1" {
		errs = append(errs, fmt.Sprintf("unsupported apiVersion: %s (expected: scheduler/v1)", ts.APIVersion))
	}

	if ts.Kind == "" {
		errs = append(errs, "kind is required")
	} else if ts.Kind != "TaskSubmission" {
		errs = append(errs, fmt.Sprintf("unsupported kind: %s (expected: TaskSubmission)", ts.Kind))
	}

	if err := ts.Metadata.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("metadata: %v", err))
	}

	if err := ts.Spec.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("spec: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates SubmissionMeta.
func (sm *SubmissionMeta) Validate() error {
	if sm.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !isValidID(sm.ID) {
		return fmt.Errorf("id must be alphanumeric with hyphens and underscores only: %s", sm.ID)
	}
	return nil
}

// Validate validates TaskSubmissionDef.
func (tsd *TaskSubmissionDef) Validate() error {
	if tsd.Retries < 0 {
		return fmt.Errorf("retries must be >= 0: %d", tsd.Retries)
	}
	if tsd.TimeoutSec < 0 {
		return fmt.Errorf("timeoutSeconds must be >= 0: %d", tsd.TimeoutSec)
	}
	for _, t := range tsd.Targets {
		if t == "" {
			return fmt.Errorf("targets may not contain an empty engine id")
		}
	}
	if err := tsd.After.Validate(); err != nil {
		return fmt.Errorf("after: %v", err)
	}
	if err := tsd.Follow.Validate(); err != nil {
		return fmt.Errorf("follow: %v", err)
	}
	if tsd.Trigger != nil {
		if err := tsd.Trigger.Validate(); err != nil {
			return fmt.Errorf("trigger: %v", err)
		}
	}
	return nil
}

// Validate validates a DependencySpec, tolerating a nil receiver (an unset
// dependency is always valid).
func (d *DependencySpec) Validate() error {
	if d == nil {
		return nil
	}
	if len(d.IDs) == 0 {
		return fmt.Errorf("ids must not be empty when after/follow is present")
	}
	for _, id := range d.IDs {
		if id == "" {
			return fmt.Errorf("ids may not contain an empty entry")
		}
	}
	return nil
}

// Validate validates TriggerSpec.
func (ts *TriggerSpec) Validate() error {
	if ts.Cron != nil && ts.HTTP != nil {
		return fmt.Errorf("at most one of cron or http may be set")
	}
	if ts.Cron != nil {
		if err := ts.Cron.Validate(); err != nil {
			return fmt.Errorf("cron: %v", err)
		}
	}
	if ts.HTTP != nil {
		if err := ts.HTTP.Validate(); err != nil {
			return fmt.Errorf("http: %v", err)
		}
	}
	return nil
}

// Validate validates CronTriggerSpec.
func (cts *CronTriggerSpec) Validate() error {
	if cts.Schedule == "" {
		return fmt.Errorf("schedule is required")
	}
	parts := strings.Fields(cts.Schedule)
	if len(parts) != 6 {
		return fmt.Errorf("cron schedule must have 6 fields (seconds minutes hours day month weekday): %s", cts.Schedule)
	}
	return nil
}

// Validate validates HTTPTriggerSpec.
func (hts *HTTPTriggerSpec) Validate() error {
	if hts.Path == "" {
		return fmt.Errorf("path is required")
	}
	if !strings.HasPrefix(hts.Path, "/") {
		return fmt.Errorf("path must start with '/': %s", hts.Path)
	}
	return nil
}

// isValidID checks if an ID is valid (alphanumeric, hyphens, underscores).
func isValidID(id string) bool {
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, id)
	return matched
}
