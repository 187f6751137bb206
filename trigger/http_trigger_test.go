package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestHTTPTriggerAcceptsSubmission(t *testing.T) {
	ht := NewHTTPTrigger(HTTPTriggerConfig{
		ID:   "webhook",
		Addr: "127.0.0.1:18080",
		Path: "/submit",
	})

	sub := &fakeSubmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ht.Start(ctx, sub); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ht.Stop()

	waitForListener(t, "http://127.0.0.1:18080/submit")

	body, _ := json.Marshal(map[string]interface{}{
		"msgId":   "http-task-1",
		"payload": "print('hi')",
	})
	resp, err := http.Post("http://127.0.0.1:18080/submit", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if sub.count() != 1 {
		t.Fatalf("submissions recorded = %d, want 1", sub.count())
	}
}

func TestHTTPTriggerRejectsMissingMsgID(t *testing.T) {
	ht := NewHTTPTrigger(HTTPTriggerConfig{
		ID:   "webhook2",
		Addr: "127.0.0.1:18081",
		Path: "/submit",
	})
	sub := &fakeSubmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ht.Start(ctx, sub); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ht.Stop()

	waitForListener(t, "http://127.0.0.1:18081/submit")

	body, _ := json.Marshal(map[string]interface{}{"payload": "x"})
	resp, err := http.Post("http://127.0.0.1:18081/submit", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if sub.count() != 0 {
		t.Fatalf("submissions recorded = %d, want 0", sub.count())
	}
}

func TestHTTPTriggerRejectsNonPost(t *testing.T) {
	ht := NewHTTPTrigger(HTTPTriggerConfig{
		ID:   "webhook3",
		Addr: "127.0.0.1:18082",
		Path: "/submit",
	})
	sub := &fakeSubmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ht.Start(ctx, sub); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ht.Stop()

	waitForListener(t, "http://127.0.0.1:18082/submit")

	resp, err := http.Get("http://127.0.0.1:18082/submit")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func waitForListener(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if resp, err := http.Get(url); err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
