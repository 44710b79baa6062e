package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/lumenlabs/lumen/internal/conversation"
	"github.com/lumenlabs/lumen/internal/jobs"
	"github.com/lumenlabs/lumen/internal/orchestrator"
	"github.com/lumenlabs/lumen/internal/queryrouter"
)

type fakeSubmitter struct {
	result orchestrator.SubmitResult
	err    error
	last   orchestrator.SubmitInput
	calls  int
}

func (f *fakeSubmitter) Submit(ctx context.Context, in orchestrator.SubmitInput) (orchestrator.SubmitResult, error) {
	f.calls++
	f.last = in
	if f.err != nil {
		return orchestrator.SubmitResult{}, f.err
	}
	return f.result, nil
}

func postJSON(t *testing.T, e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newQueryEcho(sub *fakeSubmitter) *echo.Echo {
	e := echo.New()
	NewQueryHandler(slog.Default(), sub).Register(e)
	return e
}

func TestSubmitAccepted(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{result: orchestrator.SubmitResult{
		Conversation: conversation.Conversation{ID: "conv-1"},
		Message:      conversation.Message{ID: "m-1"},
		Path:         queryrouter.PathSearch,
		JobHandle:    "job-1",
	}}
	e := newQueryEcho(sub)

	rec := postJSON(t, e, "/queries", `{"query":"explain quantum entanglement","mode":"search"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["job_handle"] != "job-1" {
		t.Errorf("job_handle = %v", resp["job_handle"])
	}
	if sub.last.Text != "explain quantum entanglement" {
		t.Errorf("submitted text = %q", sub.last.Text)
	}
}

func TestSubmitRejectsEmpty(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	e := newQueryEcho(sub)

	rec := postJSON(t, e, "/queries", `{"query":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if sub.calls != 0 {
		t.Error("empty submission reached the pipeline")
	}
}

func TestSubmitRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	e := newQueryEcho(&fakeSubmitter{})
	rec := postJSON(t, e, "/queries", `{"query":"q","mode":"turbo"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitNoHandleIsBadGateway(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{err: fmt.Errorf("start generation: %w", jobs.ErrNoHandle)}
	e := newQueryEcho(sub)

	rec := postJSON(t, e, "/queries", `{"query":"q"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestSubmitFilesOnlyIsAccepted(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{result: orchestrator.SubmitResult{Path: queryrouter.PathFileAnalysis}}
	e := newQueryEcho(sub)

	rec := postJSON(t, e, "/queries", `{"files":[{"file_name":"report.pdf","path":"uploads/report.pdf"}]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(sub.last.Files) != 1 {
		t.Errorf("files = %+v, want the upload", sub.last.Files)
	}
}
