package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskClient wraps the Asynq client for task enqueueing.
type TaskClient struct {
	client *asynq.Client
	logger *zap.Logger
}

// NewTaskClient creates a task client connected to Redis.
func NewTaskClient(redisAddr string, logger *zap.Logger) *TaskClient {
	redisOpt := asynq.RedisClientOpt{
		Addr: redisAddr,
	}

	return &TaskClient{
		client: asynq.NewClient(redisOpt),
		logger: logger,
	}
}

// Close closes the task client.
func (c *TaskClient) Close() error {
	return c.client.Close()
}

// EnqueueReviewTask enqueues a merge request review. Reviews are never
// retried: a half-posted review would duplicate comments on retry.
func (c *TaskClient) EnqueueReviewTask(payload ReviewTaskPayload) (*asynq.TaskInfo, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review task payload: %w", err)
	}

	task := asynq.NewTask(TypeReviewTask, payloadBytes)

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(30 * time.Minute),
		asynq.Queue(QueueDefault),
	}

	taskInfo, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue review task: %w", err)
	}

	c.logger.Info("Review task enqueued",
		zap.String("task_id", taskInfo.ID),
		zap.Int64("project_id", payload.ProjectID),
		zap.Int64("mr_iid", payload.MRIID),
	)

	return taskInfo, nil
}
