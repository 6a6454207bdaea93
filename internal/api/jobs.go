package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/jobs"
)

type JobRequest struct {
	Queue   string         `json:"queue"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
	DelayMs int64          `json:"delayMs"`
	JobID   string         `json:"jobId"`
}

// EnqueueJob handles POST /v1/jobs
func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if !h.decode(w, r, &req) {
		return
	}

	queue := jobs.Queue(req.Queue)
	if !queue.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid queue", "queue must be badge, scoring or default")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing name", "name is required")
		return
	}
	if req.DelayMs < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid delayMs", "delayMs must be >= 0")
		return
	}

	job, err := h.deps.Jobs.Enqueue(r.Context(), queue, req.Name, req.Payload, jobs.EnqueueOptions{
		Delay: time.Duration(req.DelayMs) * time.Millisecond,
		JobID: req.JobID,
	})
	if err != nil {
		h.logger.Error("failed to enqueue job",
			zap.Error(err),
			zap.String("queue", req.Queue),
			zap.String("job", req.Name),
		)
		h.writeError(w, http.StatusServiceUnavailable, "enqueue_error", "Failed to enqueue job", "")
		return
	}

	h.writeJSON(w, http.StatusAccepted, job)
}

// SchedulerState handles GET /v1/scheduler
func (h *Handler) SchedulerState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"state": h.deps.Scheduler.State(),
	})
}
