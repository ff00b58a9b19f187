package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Job statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a review job does not exist.
var ErrNotFound = errors.New("review job not found")

// ReviewJob tracks one webhook-triggered review from enqueue to completion.
type ReviewJob struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     int64      `json:"project_id"`
	MRIID         int64      `json:"mr_iid"`
	Status        string     `json:"status"`
	CommentCount  int        `json:"comment_count"`
	InlinePosted  int        `json:"inline_posted"`
	SummaryPosted bool       `json:"summary_posted"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Repo persists review jobs.
type Repo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepo creates a review job repository.
func NewRepo(pool *pgxpool.Pool, logger *zap.Logger) *Repo {
	return &Repo{
		pool:   pool,
		logger: logger,
	}
}

// Create inserts a new job in the queued state and returns its id.
func (r *Repo) Create(ctx context.Context, projectID, mrIID int64) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx,
		"INSERT INTO review_jobs (id, project_id, mr_iid, status) VALUES ($1, $2, $3, $4)",
		id, projectID, mrIID, StatusQueued,
	)
	if err != nil {
		r.logger.Error("Failed to create review job", zap.Error(err),
			zap.Int64("project_id", projectID), zap.Int64("mr_iid", mrIID))
		return uuid.Nil, err
	}
	return id, nil
}

// MarkRunning transitions a job to the running state.
func (r *Repo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE review_jobs SET status = $1, started_at = NOW() WHERE id = $2",
		StatusRunning, id,
	)
	if err != nil {
		r.logger.Error("Failed to mark review job running", zap.Error(err), zap.String("job_id", id.String()))
		return err
	}
	return nil
}

// MarkCompleted records a successful review along with how many comments
// were produced and how many made it onto the merge request.
func (r *Repo) MarkCompleted(ctx context.Context, id uuid.UUID, commentCount, inlinePosted int, summaryPosted bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE review_jobs
		 SET status = $1, comment_count = $2, inline_posted = $3, summary_posted = $4, finished_at = NOW()
		 WHERE id = $5`,
		StatusCompleted, commentCount, inlinePosted, summaryPosted, id,
	)
	if err != nil {
		r.logger.Error("Failed to mark review job completed", zap.Error(err), zap.String("job_id", id.String()))
		return err
	}
	return nil
}

// MarkFailed records a failed review with its error text.
func (r *Repo) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE review_jobs SET status = $1, error = $2, finished_at = NOW() WHERE id = $3",
		StatusFailed, errText, id,
	)
	if err != nil {
		r.logger.Error("Failed to mark review job failed", zap.Error(err), zap.String("job_id", id.String()))
		return err
	}
	return nil
}

// Get returns a single job by id.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*ReviewJob, error) {
	var job ReviewJob
	err := r.pool.QueryRow(ctx,
		`SELECT id, project_id, mr_iid, status, comment_count, inline_posted, summary_posted,
		        COALESCE(error, ''), created_at, started_at, finished_at
		 FROM review_jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.ProjectID, &job.MRIID, &job.Status, &job.CommentCount,
		&job.InlinePosted, &job.SummaryPosted, &job.Error, &job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get review job", zap.Error(err), zap.String("job_id", id.String()))
		return nil, err
	}
	return &job, nil
}

// List returns the most recent jobs, newest first.
func (r *Repo) List(ctx context.Context, limit int) ([]ReviewJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, project_id, mr_iid, status, comment_count, inline_posted, summary_posted,
		        COALESCE(error, ''), created_at, started_at, finished_at
		 FROM review_jobs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		r.logger.Error("Failed to list review jobs", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []ReviewJob
	for rows.Next() {
		var job ReviewJob
		if err := rows.Scan(&job.ID, &job.ProjectID, &job.MRIID, &job.Status, &job.CommentCount,
			&job.InlinePosted, &job.SummaryPosted, &job.Error, &job.CreatedAt, &job.StartedAt, &job.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}
