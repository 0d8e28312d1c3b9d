package guard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/opteryx-app/worker-go/internal/jobstore"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// HealthHandler answers liveness probes. Unguarded.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", jsonMediaType.String())
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	})
}

// JobSubmitter creates job records; JobProcessor runs them. Both are
// satisfied by the jobstore types and by fakes in tests.
type JobSubmitter interface {
	Create(ctx context.Context, job *jobstore.Job) error
}

type JobProcessor interface {
	Process(ctx context.Context, handle string) (jobstore.Summary, error)
}

type submitRequest struct {
	ExecutionID string `json:"execution_id"`
	SQLText     string `json:"sql_text"`
}

// SubmitHandler accepts a statement job and responds with its execution
// summary. Wrap it with Guard.Require; it assumes the request already
// carries a verified principal.
func SubmitHandler(store JobSubmitter, proc JobProcessor, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ctype, err := contenttype.GetMediaType(r)
		if err != nil || !ctype.Matches(jsonMediaType) {
			writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			log.WarnContext(ctx, "submit.content_type.unsupported")
			return
		}

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			log.WarnContext(ctx, "submit.decode.fail", slog.String("err", err.Error()))
			return
		}
		if req.ExecutionID == "" {
			req.ExecutionID = uuid.NewString()
		}

		if req.SQLText != "" {
			if err := store.Create(ctx, &jobstore.Job{Handle: req.ExecutionID, SQLText: req.SQLText}); err != nil {
				writeJSONError(w, http.StatusInternalServerError, "job submission failed")
				log.ErrorContext(ctx, "submit.create.fail", slog.String("err", err.Error()))
				return
			}
		}

		summary, err := proc.Process(ctx, req.ExecutionID)
		if err != nil {
			if errors.Is(err, jobstore.ErrJobNotFound) {
				writeJSONError(w, http.StatusNotFound, "no job found for handle")
				log.InfoContext(ctx, "submit.job.miss", slog.String("handle", req.ExecutionID))
				return
			}
			writeJSONError(w, http.StatusInternalServerError, "statement execution failed")
			log.ErrorContext(ctx, "submit.execute.fail", slog.String("err", err.Error()))
			return
		}

		w.Header().Set("Content-Type", jsonMediaType.String())
		_ = json.NewEncoder(w).Encode(summary)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}
