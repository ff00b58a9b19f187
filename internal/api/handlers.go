package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"reviewbot/internal/infra"
	"reviewbot/internal/jobs"
	"reviewbot/internal/tasks"
)

// TaskEnqueuer enqueues review tasks onto the queue backend.
type TaskEnqueuer interface {
	EnqueueReviewTask(payload tasks.ReviewTaskPayload) (*asynq.TaskInfo, error)
}

// ReviewRunner executes a review synchronously. Used as the in-process
// fallback when no queue backend is configured.
type ReviewRunner interface {
	RunReview(ctx context.Context, payload tasks.ReviewTaskPayload) error
}

// JobRepo persists webhook-created review jobs.
type JobRepo interface {
	Create(ctx context.Context, projectID, mrIID int64) (uuid.UUID, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errText string) error
	Get(ctx context.Context, id uuid.UUID) (*jobs.ReviewJob, error)
	List(ctx context.Context, limit int) ([]jobs.ReviewJob, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	logger   *zap.Logger
	config   *infra.Config
	enqueuer TaskEnqueuer
	runner   ReviewRunner
	jobRepo  JobRepo
	validate *validator.Validate
}

// NewHandlers creates the handler set. enqueuer may be nil when Redis is
// not configured; reviews then run on a background goroutine via runner.
func NewHandlers(logger *zap.Logger, config *infra.Config, enqueuer TaskEnqueuer, runner ReviewRunner, jobRepo JobRepo) *Handlers {
	return &Handlers{
		logger:   logger,
		config:   config,
		enqueuer: enqueuer,
		runner:   runner,
		jobRepo:  jobRepo,
		validate: validator.New(),
	}
}

// webhookPayload is the subset of the GitLab merge request event we act on.
type webhookPayload struct {
	ObjectKind string `json:"object_kind"`
	Project    struct {
		ID int64 `json:"id"`
	} `json:"project"`
	ObjectAttributes struct {
		IID    int64  `json:"iid"`
		Action string `json:"action"`
	} `json:"object_attributes"`
}

// reviewRequest is validated before a review is dispatched.
type reviewRequest struct {
	ProjectID int64 `validate:"required,gt=0"`
	MRIID     int64 `validate:"required,gt=0"`
}

// reviewableActions are the merge request actions that trigger a review.
// close, merge and approval events are ignored.
var reviewableActions = map[string]bool{
	"open":   true,
	"update": true,
	"reopen": true,
}

// Health reports service status and the configured models.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"model":       h.config.Ollama.LLMModel,
		"embed_model": h.config.Ollama.EmbedModel,
	})
}

// Webhook receives GitLab merge request events and dispatches reviews.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	if secret := h.config.GitLab.WebhookSecret; secret != "" {
		if r.Header.Get("X-Gitlab-Token") != secret {
			h.logger.Warn("Webhook request with invalid token")
			h.writeError(w, http.StatusUnauthorized, "Invalid webhook token")
			return
		}
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Error("Failed to parse webhook payload", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if payload.ObjectKind != "merge_request" {
		h.writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": "not a merge_request event",
		})
		return
	}

	action := payload.ObjectAttributes.Action
	if !reviewableActions[action] {
		h.writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": fmt.Sprintf("action '%s' not reviewable", action),
		})
		return
	}

	req := reviewRequest{
		ProjectID: payload.Project.ID,
		MRIID:     payload.ObjectAttributes.IID,
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Missing project_id or mr_iid")
		return
	}

	h.logger.Info("Merge request review requested",
		zap.Int64("project_id", req.ProjectID),
		zap.Int64("mr_iid", req.MRIID),
		zap.String("action", action),
	)

	jobID := ""
	var jobUUID uuid.UUID
	hasJob := false
	if h.jobRepo != nil {
		id, err := h.jobRepo.Create(r.Context(), req.ProjectID, req.MRIID)
		if err == nil {
			jobUUID = id
			jobID = id.String()
			hasJob = true
		}
	}

	taskPayload := tasks.ReviewTaskPayload{
		ProjectID: req.ProjectID,
		MRIID:     req.MRIID,
		JobID:     jobID,
	}

	if err := h.dispatch(taskPayload); err != nil {
		h.logger.Error("Failed to dispatch review", zap.Error(err))
		// The job row was created as queued; without this it would sit
		// there forever with nothing to reap it.
		if hasJob {
			if markErr := h.jobRepo.MarkFailed(r.Context(), jobUUID, "dispatch failed: "+err.Error()); markErr != nil {
				h.logger.Warn("Failed to record dispatch failure", zap.Error(markErr))
			}
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to dispatch review")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "accepted",
		"project_id": req.ProjectID,
		"mr_iid":     req.MRIID,
	})
}

// dispatch enqueues the review, or runs it on a goroutine when no queue
// backend is configured.
func (h *Handlers) dispatch(payload tasks.ReviewTaskPayload) error {
	if h.enqueuer != nil {
		_, err := h.enqueuer.EnqueueReviewTask(payload)
		return err
	}
	if h.runner == nil {
		return fmt.Errorf("no review dispatcher configured")
	}
	go func() {
		if err := h.runner.RunReview(context.Background(), payload); err != nil {
			h.logger.Error("Background review failed", zap.Error(err))
		}
	}()
	return nil
}

// ListJobs returns recent review jobs.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobRepo == nil {
		h.writeError(w, http.StatusNotFound, "Job tracking not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	list, err := h.jobRepo.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if list == nil {
		list = []jobs.ReviewJob{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

// GetJob returns one review job by id.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobRepo == nil {
		h.writeError(w, http.StatusNotFound, "Job tracking not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid job id")
		return
	}

	job, err := h.jobRepo.Get(r.Context(), id)
	if err != nil {
		if err == jobs.ErrNotFound {
			h.writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
