// Package submissionspec defines the YAML-declarative shape of a recurring
// or webhook-driven task submission, and converts it into a
// scheduler.Submission plus its owning trigger. Grounded on
// spec/workflow_spec.go's WorkflowSpec, narrowed from a multi-node workflow
// graph to a single submission's placement/dependency/retry metadata — the
// scheduler's dependency graph already spans submissions, so a declarative
// spec only ever describes one.
package submissionspec

// TaskSubmissionSpec represents the root YAML structure for a declarative
// task submission.
type TaskSubmissionSpec struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   SubmissionMeta   `yaml:"metadata"`
	Spec       TaskSubmissionDef `yaml:"spec"`
}

// SubmissionMeta contains submission metadata.
type SubmissionMeta struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

// TaskSubmissionDef contains the actual submission specification.
type TaskSubmissionDef struct {
	Payload     string           `yaml:"payload"`
	After       *DependencySpec  `yaml:"after,omitempty"`
	Follow      *DependencySpec  `yaml:"follow,omitempty"`
	Targets     []string         `yaml:"targets,omitempty"`
	Retries     int              `yaml:"retries,omitempty"`
	TimeoutSec  int              `yaml:"timeoutSeconds,omitempty"`
	AffinityKey string           `yaml:"affinityKey,omitempty"`
	Trigger     *TriggerSpec     `yaml:"trigger,omitempty"`
}

// DependencySpec mirrors scheduler.DependencySpec at the YAML layer.
type DependencySpec struct {
	IDs     []string `yaml:"ids"`
	All     bool     `yaml:"all,omitempty"`
	Success bool     `yaml:"success,omitempty"`
	Failure bool     `yaml:"failure,omitempty"`
}

// TriggerSpec defines how a submission is re-fired. Exactly one of Cron or
// HTTP should be set; LoadTrigger rejects a spec with neither.
type TriggerSpec struct {
	Cron *CronTriggerSpec `yaml:"cron,omitempty"`
	HTTP *HTTPTriggerSpec `yaml:"http,omitempty"`
}

// CronTriggerSpec defines cron trigger configuration.
type CronTriggerSpec struct {
	Schedule string `yaml:"schedule"` // 6-field cron expression with seconds
}

// HTTPTriggerSpec defines HTTP trigger configuration.
type HTTPTriggerSpec struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}
