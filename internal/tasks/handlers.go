package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"reviewbot/internal/gitlab"
	"reviewbot/internal/metrics"
	"reviewbot/internal/review"
)

// DiffFetcher retrieves merge request diffs from the code host.
type DiffFetcher interface {
	GetMRDiffText(ctx context.Context, projectID, mrIID int) (string, error)
}

// ReviewPoster publishes review comments back to the merge request.
type ReviewPoster interface {
	PostReview(ctx context.Context, projectID, mrIID int, comments []review.Comment) (*gitlab.PostReviewResult, error)
}

// CodeReviewer produces review comments for a raw diff.
type CodeReviewer interface {
	Review(ctx context.Context, diffText string) ([]review.Comment, error)
}

// JobStore records review job state transitions.
type JobStore interface {
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, commentCount, inlinePosted int, summaryPosted bool) error
	MarkFailed(ctx context.Context, id uuid.UUID, errText string) error
}

// TaskHandler processes review tasks.
type TaskHandler struct {
	logger   *zap.Logger
	fetcher  DiffFetcher
	reviewer CodeReviewer
	poster   ReviewPoster
	jobs     JobStore
	maxLines int
}

// NewTaskHandler creates a task handler. jobs may be nil when review job
// persistence is not configured.
func NewTaskHandler(logger *zap.Logger, fetcher DiffFetcher, reviewer CodeReviewer, poster ReviewPoster, jobs JobStore, maxDiffLines int) *TaskHandler {
	return &TaskHandler{
		logger:   logger,
		fetcher:  fetcher,
		reviewer: reviewer,
		poster:   poster,
		jobs:     jobs,
		maxLines: maxDiffLines,
	}
}

// HandleReviewTask runs the full review pipeline for one merge request.
func (h *TaskHandler) HandleReviewTask(ctx context.Context, t *asynq.Task) error {
	var payload ReviewTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal review task payload: %w", err)
	}
	return h.RunReview(ctx, payload)
}

// RunReview executes the review pipeline directly. It is shared by the
// Asynq handler and the in-process fallback used when Redis is not
// configured.
func (h *TaskHandler) RunReview(ctx context.Context, payload ReviewTaskPayload) error {
	start := time.Now()
	logger := h.logger.With(
		zap.Int64("project_id", payload.ProjectID),
		zap.Int64("mr_iid", payload.MRIID),
		zap.String("job_id", payload.JobID),
	)
	logger.Info("Starting merge request review")

	jobID, hasJob := h.parseJobID(payload.JobID)
	if hasJob {
		if err := h.jobs.MarkRunning(ctx, jobID); err != nil {
			logger.Warn("Failed to record job start", zap.Error(err))
		}
	}

	comments, posted, err := h.runPipeline(ctx, logger, payload)
	if err != nil {
		metrics.RecordReview("failed", time.Since(start))
		if hasJob {
			if markErr := h.jobs.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
				logger.Warn("Failed to record job failure", zap.Error(markErr))
			}
		}
		logger.Error("Merge request review failed", zap.Error(err))
		return err
	}

	metrics.RecordReview("completed", time.Since(start))
	for _, c := range comments {
		metrics.RecordComment(string(c.Severity))
	}
	if hasJob {
		inline, summary := 0, false
		if posted != nil {
			inline, summary = posted.PostedInline, posted.PostedSummary
		}
		if err := h.jobs.MarkCompleted(ctx, jobID, len(comments), inline, summary); err != nil {
			logger.Warn("Failed to record job completion", zap.Error(err))
		}
	}

	logger.Info("Merge request review completed",
		zap.Int("comments", len(comments)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (h *TaskHandler) runPipeline(ctx context.Context, logger *zap.Logger, payload ReviewTaskPayload) ([]review.Comment, *gitlab.PostReviewResult, error) {
	projectID := int(payload.ProjectID)
	mrIID := int(payload.MRIID)

	diffText, err := h.fetcher.GetMRDiffText(ctx, projectID, mrIID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch merge request diff: %w", err)
	}
	if strings.TrimSpace(diffText) == "" {
		logger.Info("Merge request has no diff, skipping review")
		return nil, nil, nil
	}

	if h.maxLines > 0 {
		if lines := strings.Count(diffText, "\n") + 1; lines > h.maxLines {
			logger.Info("Diff exceeds size limit, skipping review",
				zap.Int("lines", lines), zap.Int("limit", h.maxLines))
			return nil, nil, nil
		}
	}

	comments, err := h.reviewer.Review(ctx, diffText)
	if err != nil {
		return nil, nil, fmt.Errorf("review diff: %w", err)
	}

	result, err := h.poster.PostReview(ctx, projectID, mrIID, comments)
	if err != nil {
		return nil, nil, fmt.Errorf("post review: %w", err)
	}
	if len(result.Errors) > 0 {
		logger.Warn("Some inline comments could not be posted",
			zap.Strings("errors", result.Errors))
	}

	return comments, result, nil
}

func (h *TaskHandler) parseJobID(raw string) (uuid.UUID, bool) {
	if h.jobs == nil || raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("Invalid job id in task payload", zap.String("job_id", raw))
		return uuid.Nil, false
	}
	return id, true
}
