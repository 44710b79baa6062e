package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumenlabs/lumen/internal/config"
	"github.com/lumenlabs/lumen/internal/search"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(slog.Default(), config.JobRunnerConfig{
		BaseURL:        srv.URL,
		TimeoutSeconds: 2,
		DefaultModel:   "sonar-large",
	})
}

func TestSubmitReturnsHandle(t *testing.T) {
	t.Parallel()
	var got SubmitRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode submission: %v", err)
		}
		w.Write([]byte(`{"job_handle": "job-123"}`))
	})

	handle, err := client.Submit(context.Background(), SubmitRequest{
		Query:     "Explain quantum entanglement",
		Results:   []search.SourceItem{{Title: "t"}},
		MessageID: "msg-1",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if handle != "job-123" {
		t.Errorf("handle = %q, want job-123", handle)
	}
	if got.Model != "sonar-large" {
		t.Errorf("Model = %q, want default applied", got.Model)
	}
	if got.UseDirectModel {
		t.Error("UseDirectModel = true, want false")
	}
}

func TestSubmitNilResultsSerializeAsEmptyArray(t *testing.T) {
	t.Parallel()
	var raw map[string]json.RawMessage
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("decode submission: %v", err)
		}
		w.Write([]byte(`{"job_handle": "job-1"}`))
	})
	if _, err := client.Submit(context.Background(), SubmitRequest{Query: "q", UseDirectModel: true}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if string(raw["results"]) != "[]" {
		t.Errorf("results = %s, want []", raw["results"])
	}
}

func TestSubmitMissingHandleIsFatal(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	_, err := client.Submit(context.Background(), SubmitRequest{Query: "q"})
	if !errors.Is(err, ErrNoHandle) {
		t.Fatalf("err = %v, want ErrNoHandle", err)
	}
}

func TestStatusStates(t *testing.T) {
	t.Parallel()
	for _, state := range []State{StateRunning, StateCompleted, StateFailed} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"state": "` + string(state) + `"}`))
		})
		got, err := client.Status(context.Background(), "job-1")
		if err != nil {
			t.Fatalf("Status(%s) error = %v", state, err)
		}
		if got != state {
			t.Errorf("Status() = %q, want %q", got, state)
		}
	}
}

func TestStatusClassifiesMalformedRequest(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad handle", http.StatusBadRequest)
	})
	_, err := client.Status(context.Background(), "job-1")
	if !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("err = %v, want ErrMalformedRequest", err)
	}
}

func TestStatusServerErrorIsTransient(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "flaky", http.StatusBadGateway)
	})
	_, err := client.Status(context.Background(), "job-1")
	if err == nil {
		t.Fatal("Status() error = nil, want transient error")
	}
	if errors.Is(err, ErrMalformedRequest) {
		t.Fatal("5xx must not classify as malformed request")
	}
}

func TestStateTerminal(t *testing.T) {
	t.Parallel()
	if StateRunning.Terminal() {
		t.Error("running must not be terminal")
	}
	if !StateCompleted.Terminal() || !StateFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
}
