package guard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opteryx-app/worker-go/internal/jobstore"
)

type fakeSubmitter struct {
	created []*jobstore.Job
	err     error
}

func (f *fakeSubmitter) Create(ctx context.Context, job *jobstore.Job) error {
	f.created = append(f.created, job)
	return f.err
}

type fakeProcessor struct {
	summary jobstore.Summary
	err     error
	handles []string
}

func (f *fakeProcessor) Process(ctx context.Context, handle string) (jobstore.Summary, error) {
	f.handles = append(f.handles, handle)
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func submit(t *testing.T, h http.Handler, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submit", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitHandler_HappyPath(t *testing.T) {
	sub := &fakeSubmitter{}
	proc := &fakeProcessor{summary: jobstore.Summary{"rows": float64(3), "status": "COMPLETED"}}
	h := SubmitHandler(sub, proc, quietLogger())

	rec := submit(t, h, "application/json", `{"execution_id":"job-1","sql_text":"SELECT 1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sub.created) != 1 || sub.created[0].Handle != "job-1" || sub.created[0].SQLText != "SELECT 1" {
		t.Fatalf("unexpected created jobs: %+v", sub.created)
	}
	if len(proc.handles) != 1 || proc.handles[0] != "job-1" {
		t.Fatalf("unexpected processed handles: %v", proc.handles)
	}
	var got jobstore.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if got["status"] != "COMPLETED" {
		t.Fatalf("unexpected summary: %v", got)
	}
}

func TestSubmitHandler_GeneratesHandle(t *testing.T) {
	sub := &fakeSubmitter{}
	proc := &fakeProcessor{summary: jobstore.Summary{}}
	h := SubmitHandler(sub, proc, quietLogger())

	rec := submit(t, h, "application/json", `{"sql_text":"SELECT 1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if len(sub.created) != 1 || sub.created[0].Handle == "" {
		t.Fatalf("want a generated handle, got %+v", sub.created)
	}
	if proc.handles[0] != sub.created[0].Handle {
		t.Fatalf("processor handle %q != created handle %q", proc.handles[0], sub.created[0].Handle)
	}
}

func TestSubmitHandler_UnsupportedMediaType(t *testing.T) {
	h := SubmitHandler(&fakeSubmitter{}, &fakeProcessor{}, quietLogger())
	for _, ct := range []string{"", "text/plain", "application/xml"} {
		rec := submit(t, h, ct, `{"sql_text":"SELECT 1"}`)
		if rec.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("content-type %q: want 415, got %d", ct, rec.Code)
		}
	}
}

func TestSubmitHandler_BadJSON(t *testing.T) {
	h := SubmitHandler(&fakeSubmitter{}, &fakeProcessor{}, quietLogger())
	rec := submit(t, h, "application/json", `{"sql_text":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestSubmitHandler_UnknownHandle(t *testing.T) {
	proc := &fakeProcessor{err: jobstore.ErrJobNotFound}
	h := SubmitHandler(&fakeSubmitter{}, proc, quietLogger())

	rec := submit(t, h, "application/json", `{"execution_id":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestSubmitHandler_ExecutionFailure(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("backend unreachable")}
	h := SubmitHandler(&fakeSubmitter{}, proc, quietLogger())

	rec := submit(t, h, "application/json", `{"execution_id":"job-1","sql_text":"SELECT 1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
	// Generic message only; backend detail stays in the logs.
	if strings.Contains(rec.Body.String(), "backend unreachable") {
		t.Fatalf("error detail leaked: %s", rec.Body.String())
	}
}
