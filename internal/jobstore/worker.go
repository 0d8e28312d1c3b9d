package jobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/opteryx-app/worker-go/internal/logctx"
)

// Records is the slice of Store the processor needs; tests substitute an
// in-memory fake.
type Records interface {
	Get(ctx context.Context, handle string) (*Job, error)
	SetStatus(ctx context.Context, handle string, status Status, errMsg string) error
}

// Summary is the execution statistics payload returned by the engine.
type Summary map[string]any

// Executor runs a statement and returns its execution summary. The engine
// behind it (in-process or a remote data service) is not this package's
// concern.
type Executor interface {
	Execute(ctx context.Context, sql string) (Summary, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, sql string) (Summary, error)

func (f ExecutorFunc) Execute(ctx context.Context, sql string) (Summary, error) {
	return f(ctx, sql)
}

// Processor drives a job through its lifecycle: load, mark EXECUTING, run
// the statement, mark COMPLETED or FAILED with the error captured on the
// record.
type Processor struct {
	records Records
	exec    Executor
	log     *slog.Logger
}

// NewProcessor wires a processor. log may be nil.
func NewProcessor(records Records, exec Executor, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{records: records, exec: exec, log: log}
}

// Process runs the job identified by handle. Errors during execution are
// persisted on the record before being returned.
func (p *Processor) Process(ctx context.Context, handle string) (Summary, error) {
	job, err := p.records.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	ctx = logctx.WithJobData(ctx, &logctx.JobData{Handle: handle, Status: string(job.Status)})

	if job.SQLText == "" {
		_ = p.records.SetStatus(ctx, handle, StatusFailed, "missing sqlText")
		return nil, errors.New("jobstore: job has no sqlText")
	}

	if err := p.records.SetStatus(ctx, handle, StatusExecuting, ""); err != nil {
		return nil, fmt.Errorf("mark executing: %w", err)
	}
	p.log.InfoContext(ctx, "job.execute.start")

	summary, err := p.exec.Execute(ctx, job.SQLText)
	if err != nil {
		_ = p.records.SetStatus(ctx, handle, StatusFailed, err.Error())
		p.log.ErrorContext(ctx, "job.execute.fail", slog.String("err", err.Error()))
		return nil, err
	}

	if err := p.records.SetStatus(ctx, handle, StatusCompleted, ""); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	p.log.InfoContext(ctx, "job.execute.ok")
	return summary, nil
}

// HTTPExecutor submits statements to the data service's query endpoint.
type HTTPExecutor struct {
	queryURL string
	client   *http.Client
}

// NewHTTPExecutor builds an executor that POSTs statements to
// baseURL/api/v1/query with the given per-request timeout.
func NewHTTPExecutor(baseURL string, timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPExecutor{
		queryURL: strings.TrimRight(baseURL, "/") + "/api/v1/query",
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, sql string) (Summary, error) {
	body, err := json.Marshal(map[string]string{"sql": sql})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.queryURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("query failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var summary Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return summary, nil
}
