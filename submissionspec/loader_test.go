package submissionspec

import (
	"os"
	"path/filepath"
	"testing"
)

const validCronSpec = `
apiVersion: scheduler/v1
kind: TaskSubmission
metadata:
  id: nightly-report
spec:
  payload: "print('report')"
  retries: 2
  timeoutSeconds: 30
  trigger:
    cron:
      schedule: "0 0 3 * * *"
`

const validHTTPSpec = `
apiVersion: scheduler/v1
kind: TaskSubmission
metadata:
  id: webhook-ingest
spec:
  payload: "print('ingest')"
  trigger:
    http:
      addr: ":8081"
      path: "/ingest"
`

func TestParseValidSpec(t *testing.T) {
	spec, err := Parse([]byte(validCronSpec))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if spec.Metadata.ID != "nightly-report" {
		t.Fatalf("Metadata.ID = %s, want nightly-report", spec.Metadata.ID)
	}
	if spec.Spec.Trigger == nil || spec.Spec.Trigger.Cron == nil {
		t.Fatalf("Spec.Trigger.Cron not populated: %+v", spec.Spec.Trigger)
	}
}

func TestParseRejectsWrongAPIVersion(t *testing.T) {
	bad := `
apiVersion: v2
kind: TaskSubmission
metadata:
  id: x
spec:
  payload: "p"
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("Parse accepted an unsupported apiVersion")
	}
}

func TestParseRejectsMissingID(t *testing.T) {
	bad := `
apiVersion: scheduler/v1
kind: TaskSubmission
metadata:
  id: ""
spec:
  payload: "p"
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("Parse accepted an empty metadata.id")
	}
}

func TestParseRejectsBothCronAndHTTP(t *testing.T) {
	bad := `
apiVersion: scheduler/v1
kind: TaskSubmission
metadata:
  id: x
spec:
  payload: "p"
  trigger:
    cron:
      schedule: "0 0 3 * * *"
    http:
      addr: ":8080"
      path: "/x"
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("Parse accepted a trigger with both cron and http set")
	}
}

func TestToSubmissionCarriesDependencyAndRetryFields(t *testing.T) {
	spec, err := Parse([]byte(`
apiVersion: scheduler/v1
kind: TaskSubmission
metadata:
  id: downstream
spec:
  payload: "p"
  retries: 3
  timeoutSeconds: 10
  after:
    ids: ["upstream"]
    all: true
    success: true
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sub := spec.toSubmission("downstream-1")
	if sub.Retries != 3 {
		t.Fatalf("Retries = %d, want 3", sub.Retries)
	}
	if sub.After == nil || len(sub.After.IDs) != 1 || sub.After.IDs[0] != "upstream" {
		t.Fatalf("After = %+v, want one id 'upstream'", sub.After)
	}
	if sub.Timeout.Seconds() != 10 {
		t.Fatalf("Timeout = %v, want 10s", sub.Timeout)
	}
}

func TestLoadTriggerBuildsCronTrigger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nightly.yaml")
	if err := os.WriteFile(path, []byte(validCronSpec), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	trig, err := LoadTrigger(path)
	if err != nil {
		t.Fatalf("LoadTrigger: %v", err)
	}
	if trig.ID() != "nightly-report" {
		t.Fatalf("trigger ID = %s, want nightly-report", trig.ID())
	}
}

func TestLoadTriggerBuildsHTTPTrigger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webhook.yaml")
	if err := os.WriteFile(path, []byte(validHTTPSpec), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	trig, err := LoadTrigger(path)
	if err != nil {
		t.Fatalf("LoadTrigger: %v", err)
	}
	if trig.ID() != "webhook-ingest" {
		t.Fatalf("trigger ID = %s, want webhook-ingest", trig.ID())
	}
}

func TestLoadTriggerRejectsSpecWithoutTrigger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oneshot.yaml")
	data := `
apiVersion: scheduler/v1
kind: TaskSubmission
metadata:
  id: oneshot
spec:
  payload: "p"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadTrigger(path); err == nil {
		t.Fatal("LoadTrigger accepted a spec with no trigger")
	}
}
