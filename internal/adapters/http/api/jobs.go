package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/logger"
)

// JobSubmitter queues ingestion jobs and reports on past runs.
type JobSubmitter interface {
	Submit(ctx context.Context, kind model.JobKind, maxPages int) (model.Job, error)
	LastSyncRun(ctx context.Context) (model.SyncRun, error)
}

// JobsHandler accepts job requests and exposes the sync audit trail.
type JobsHandler struct {
	jobs   JobSubmitter
	logger logger.Logger
}

// NewJobsHandler creates job handlers.
func NewJobsHandler(jobs JobSubmitter) *JobsHandler {
	return &JobsHandler{jobs: jobs, logger: logger.Nop()}
}

// syncRequest mirrors the OpenAPI schema for POST /api/v1/sync.
type syncRequest struct {
	MaxPages int `json:"max_pages"`
}

type jobResponse struct {
	JobID       string    `json:"job_id"`
	Kind        string    `json:"kind"`
	RequestedAt time.Time `json:"requested_at"`
}

type runResponse struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Pages      int       `json:"pages"`
	Stored     int       `json:"stored"`
	Known      int       `json:"known"`
	Skipped    int       `json:"skipped"`
	StopReason string    `json:"stop_reason"`
	Error      string    `json:"error,omitempty"`
}

// HandleSync handles POST /api/v1/sync. The body is optional.
func (h *JobsHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid JSON body", ErrBadRequest))
		return
	}
	if req.MaxPages < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: max_pages must not be negative", ErrBadRequest))
		return
	}
	h.submit(w, r, model.JobSync, req.MaxPages)
}

// HandleBackfill handles POST /api/v1/backfill/{target}.
func (h *JobsHandler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	var kind model.JobKind
	switch target := chi.URLParam(r, "target"); target {
	case "attackers":
		kind = model.JobBackfillAttackers
	case "corporations":
		kind = model.JobBackfillCorporations
	default:
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%w: %q", ErrUnknownTarget, target))
		return
	}
	h.submit(w, r, kind, 0)
}

func (h *JobsHandler) submit(w http.ResponseWriter, r *http.Request, kind model.JobKind, maxPages int) {
	job, err := h.jobs.Submit(r.Context(), kind, maxPages)
	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "job submit failed", logger.String("kind", string(kind)), logger.Error(err))
		}
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{JobID: job.ID, Kind: string(job.Kind), RequestedAt: job.RequestedAt})
}

// HandleLastRun handles GET /api/v1/sync/runs/last.
func (h *JobsHandler) HandleLastRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.jobs.LastSyncRun(r.Context())
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		ID:         run.ID,
		Mode:       run.Mode,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Pages:      run.Pages,
		Stored:     run.Stored,
		Known:      run.Known,
		Skipped:    run.Skipped,
		StopReason: run.StopReason,
		Error:      run.Error,
	})
}
