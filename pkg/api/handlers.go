package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/samet-stack/ironforge/pkg/job"
	"github.com/samet-stack/ironforge/pkg/queue"
)

// createJobRequest is the POST /jobs body.
type createJobRequest struct {
	Kind       string            `json:"kind"`
	Payload    json.RawMessage   `json:"payload"`
	Priority   *job.Priority     `json:"priority,omitempty"`
	MaxRetries *uint8            `json:"max_retries,omitempty"`
	TimeoutMS  *uint64           `json:"timeout_ms,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type createJobResponse struct {
	ID        uuid.UUID  `json:"id"`
	Status    job.Status `json:"status"`
	CreatedAt string     `json:"created_at"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}

	j := job.New(req.Kind, req.Payload)
	if req.Priority != nil && req.Priority.Valid() {
		j.Priority = *req.Priority
	}
	if req.MaxRetries != nil {
		j.MaxRetries = *req.MaxRetries
	}
	if req.TimeoutMS != nil {
		j.TimeoutMS = *req.TimeoutMS
	}
	if req.Metadata != nil {
		j.Metadata = req.Metadata
	}

	ctx, cancel := s.withTimeout(r)
	defer cancel()

	if err := s.backend.Enqueue(ctx, j); err != nil {
		s.logger.Error().Err(err).Msg("enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	if s.recorder != nil {
		s.recorder.JobSubmitted(j.Kind, string(j.Priority))
	}

	writeJSON(w, http.StatusCreated, createJobResponse{
		ID:        j.ID,
		Status:    j.Status,
		CreatedAt: j.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()

	j, err := s.backend.Get(ctx, id)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case err != nil:
		s.logger.Error().Err(err).Msg("get job failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
	default:
		writeJSON(w, http.StatusOK, j)
	}
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()

	j, err := s.backend.Get(ctx, id)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("get job failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	if j.Status != job.Queued {
		writeError(w, http.StatusConflict, "job is not in queued state")
		return
	}

	if err := s.backend.Delete(ctx, id); err != nil {
		s.logger.Error().Err(err).Msg("delete job failed")
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type retryJobRequest struct {
	ResetRetryCount bool `json:"reset_retry_count"`
}

type retryJobResponse struct {
	Message    string    `json:"message"`
	JobID      uuid.UUID `json:"job_id"`
	RetryCount uint8     `json:"retry_count"`
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req retryJobRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	ctx, cancel := s.withTimeout(r)
	defer cancel()

	j, err := s.backend.Get(ctx, id)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("get job failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	// The state machine never parks a job in Failed, but the retry
	// endpoint still honors it for forward compatibility.
	if j.Status != job.Failed && j.Status != job.DeadLetter {
		writeError(w, http.StatusConflict, "job is not failed or dead-lettered")
		return
	}

	if req.ResetRetryCount {
		j.RetryCount = 0
	}
	j.Status = job.Queued

	if err := s.backend.Enqueue(ctx, j); err != nil {
		s.logger.Error().Err(err).Msg("retry enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to retry job")
		return
	}

	writeJSON(w, http.StatusOK, retryJobResponse{
		Message:    "job re-enqueued",
		JobID:      j.ID,
		RetryCount: j.RetryCount,
	})
}

type statsResponse struct {
	QueueDepth int64 `json:"queue_depth"`
	DLQDepth   int64 `json:"dlq_depth"`
	ActiveJobs int64 `json:"active_jobs"`
	TotalJobs  int64 `json:"total_jobs"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r)
	defer cancel()

	stats, err := s.backend.GetStats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("get stats failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}
	if s.recorder != nil {
		s.recorder.SetQueueDepth(float64(stats.QueueDepth))
		s.recorder.SetDLQDepth(float64(stats.DLQDepth))
		s.recorder.SetActiveJobs(float64(stats.ActiveJobs))
	}

	writeJSON(w, http.StatusOK, statsResponse{
		QueueDepth: stats.QueueDepth,
		DLQDepth:   stats.DLQDepth,
		ActiveJobs: stats.ActiveJobs,
		TotalJobs:  stats.QueueDepth + stats.ActiveJobs,
	})
}
