package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gbasilveira/taskscheduler/scheduler"
)

// HTTPTrigger submits a task in response to an HTTP POST. Grounded on
// orchestrator/http_trigger.go's HTTPTrigger, retargeted from
// ExecuteWorkflow's blocking request/response to Submit's fire-and-forget
// enqueue: the scheduler relays an eventual outcome asynchronously via its
// reply channel, not as this handler's HTTP response.
type HTTPTrigger struct {
	*BaseTrigger
	addr    string
	path    string
	builder func(r *http.Request, body *submissionRequest) (scheduler.Submission, error)
	server  *http.Server
	mux     *http.ServeMux
	mu      sync.Mutex
}

// HTTPTriggerConfig configures an HTTP trigger.
type HTTPTriggerConfig struct {
	ID   string
	Addr string // e.g. ":8080"
	Path string // e.g. "/submit"

	// Builder turns a decoded request body into a Submission. If nil,
	// defaultBuilder is used.
	Builder func(r *http.Request, body *submissionRequest) (scheduler.Submission, error)
}

// submissionRequest is the JSON shape accepted by the default builder.
type submissionRequest struct {
	MsgID       string   `json:"msgId"`
	ClientID    string   `json:"clientId"`
	Payload     string   `json:"payload"`
	Targets     []string `json:"targets,omitempty"`
	Retries     int      `json:"retries,omitempty"`
	TimeoutSec  int      `json:"timeoutSeconds,omitempty"`
	AffinityKey string   `json:"affinityKey,omitempty"`
	After       *depSpec `json:"after,omitempty"`
	Follow      *depSpec `json:"follow,omitempty"`
}

type depSpec struct {
	IDs     []string `json:"ids"`
	All     bool     `json:"all,omitempty"`
	Success bool     `json:"success,omitempty"`
	Failure bool     `json:"failure,omitempty"`
}

func (d *depSpec) toScheduler() *scheduler.DependencySpec {
	if d == nil {
		return nil
	}
	return &scheduler.DependencySpec{IDs: d.IDs, All: d.All, Success: d.Success, Failure: d.Failure}
}

func defaultBuilder(_ *http.Request, body *submissionRequest) (scheduler.Submission, error) {
	if body.MsgID == "" {
		return scheduler.Submission{}, fmt.Errorf("msgId is required")
	}
	targets := make([]scheduler.EngineID, len(body.Targets))
	for i, t := range body.Targets {
		targets[i] = scheduler.EngineID(t)
	}
	return scheduler.Submission{
		MsgID:       scheduler.MsgID(body.MsgID),
		ClientID:    body.ClientID,
		Payload:     []byte(body.Payload),
		Targets:     targets,
		After:       body.After.toScheduler(),
		Follow:      body.Follow.toScheduler(),
		Timeout:     time.Duration(body.TimeoutSec) * time.Second,
		Retries:     body.Retries,
		AffinityKey: body.AffinityKey,
	}, nil
}

// NewHTTPTrigger creates a new HTTP trigger.
func NewHTTPTrigger(config HTTPTriggerConfig) *HTTPTrigger {
	builder := config.Builder
	if builder == nil {
		builder = defaultBuilder
	}
	return &HTTPTrigger{
		BaseTrigger: NewBaseTrigger(config.ID, "http"),
		addr:        config.Addr,
		path:        config.Path,
		builder:     builder,
		mux:         http.NewServeMux(),
	}
}

// Start begins the HTTP trigger server.
func (ht *HTTPTrigger) Start(ctx context.Context, submitter Submitter) error {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	if ht.active {
		return fmt.Errorf("HTTP trigger %s is already active", ht.id)
	}

	ht.mux.HandleFunc(ht.path, func(w http.ResponseWriter, r *http.Request) {
		ht.handleRequest(w, r, submitter)
	})
	ht.server = &http.Server{Addr: ht.addr, Handler: ht.mux}
	ht.setActive(true)

	go func() {
		fmt.Printf("HTTP trigger %s listening on %s%s\n", ht.id, ht.addr, ht.path)
		if err := ht.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP trigger %s error: %v\n", ht.id, err)
			ht.setActive(false)
		}
	}()

	go func() {
		<-ctx.Done()
		ht.Stop()
	}()

	return nil
}

// Stop stops the HTTP trigger server.
func (ht *HTTPTrigger) Stop() error {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	if !ht.active {
		return nil
	}
	if ht.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ht.server.Shutdown(shutdownCtx)
	}
	ht.setActive(false)
	return nil
}

func (ht *HTTPTrigger) handleRequest(w http.ResponseWriter, r *http.Request, submitter Submitter) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	sub, err := ht.builder(r, &body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	submitCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp := map[string]interface{}{
		"trigger_id": ht.id,
		"msg_id":     sub.MsgID,
	}
	if err := submitter.Submit(submitCtx, sub); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		resp["accepted"] = false
		resp["error"] = err.Error()
		json.NewEncoder(w).Encode(resp)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	resp["accepted"] = true
	json.NewEncoder(w).Encode(resp)
}
