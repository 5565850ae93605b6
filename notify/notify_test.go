package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/veillant/huntd/hunter"
)

var testMission = &hunter.Mission{
	Type: hunter.TypeText,
	URL:  "https://example.org/page",
}

func TestStdout_ChangeEvent(t *testing.T) {
	// WHAT: A change notification becomes one JSON line with mission info.
	var buf bytes.Buffer
	s := NewStdout(&buf)

	if err := s.NotifyChange(context.Background(), "tg1", testMission, true); err != nil {
		t.Fatalf("notify: %v", err)
	}

	var e map[string]any
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("output not JSON: %v (%q)", err, buf.String())
	}
	if e["kind"] != "change" || e["issuer"] != "tg1" || e["url"] != testMission.URL {
		t.Errorf("event: %+v", e)
	}
	if e["id"] == "" {
		t.Error("missing event id")
	}
}

func TestStdout_UnchangedIsSilent(t *testing.T) {
	// WHAT: changed=false produces no output.
	// WHY: Only actual changes reach the user.
	var buf bytes.Buffer
	s := NewStdout(&buf)

	if err := s.NotifyChange(context.Background(), "tg1", testMission, false); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestStdout_ErrorEvent(t *testing.T) {
	// WHAT: Error reports carry the evaluation error text.
	// WHY: The user needs enough detail to fix the mission.
	var buf bytes.Buffer
	s := NewStdout(&buf)

	evalErr := &hunter.FetchError{URL: testMission.URL, Err: errors.New("timeout")}
	if err := s.NotifyError(context.Background(), "tg1", testMission, evalErr); err != nil {
		t.Fatalf("notify: %v", err)
	}

	var e map[string]any
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatal(err)
	}
	if e["kind"] != "error" {
		t.Errorf("kind: got %v", e["kind"])
	}
	if e["error"] == "" {
		t.Error("missing error text")
	}
}

func TestWebhook_Delivers(t *testing.T) {
	// WHAT: The webhook POSTs the event envelope as JSON.
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e map[string]any
		json.NewDecoder(r.Body).Decode(&e)
		got.Store(e)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	if err := w.NotifyChange(context.Background(), "tg1", testMission, true); err != nil {
		t.Fatalf("notify: %v", err)
	}

	e, _ := got.Load().(map[string]any)
	if e == nil || e["kind"] != "change" || e["missionType"] != "txt" {
		t.Errorf("delivered event: %+v", e)
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	// WHAT: Transient 5xx responses are retried with backoff.
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithRetries(2))
	if err := w.NotifyError(context.Background(), "tg1", testMission, errors.New("x")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("attempts: got %d, want 2", hits.Load())
	}
}

func TestWebhook_ExhaustedRetriesFail(t *testing.T) {
	// WHAT: Permanent failure is reported after the retry budget.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithRetries(1))
	if err := w.NotifyChange(context.Background(), "tg1", testMission, true); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}
