package workers

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"reviewbot/internal/tasks"
)

// AsynqServer wraps the Asynq server for review task processing.
type AsynqServer struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	logger  *zap.Logger
	handler *tasks.TaskHandler
}

// NewAsynqServer creates an Asynq server consuming review tasks.
func NewAsynqServer(redisAddr string, concurrency int, logger *zap.Logger, handler *tasks.TaskHandler) *AsynqServer {
	redisOpt := asynq.RedisClientOpt{
		Addr: redisAddr,
	}

	if concurrency <= 0 {
		concurrency = 10
	}

	config := asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			tasks.QueueCritical: 6,
			tasks.QueueDefault:  3,
			tasks.QueueLow:      1,
		},
		StrictPriority: true,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("Task processing error",
				zap.String("task_type", task.Type()),
				zap.Error(err),
			)
		}),
	}

	server := asynq.NewServer(redisOpt, config)
	mux := asynq.NewServeMux()

	return &AsynqServer{
		server:  server,
		mux:     mux,
		logger:  logger,
		handler: handler,
	}
}

// RegisterHandlers registers task handlers.
func (s *AsynqServer) RegisterHandlers() {
	s.mux.HandleFunc(tasks.TypeReviewTask, s.handler.HandleReviewTask)
}

// Start starts the Asynq server and blocks until the context is cancelled.
func (s *AsynqServer) Start(ctx context.Context) error {
	s.logger.Info("Starting Asynq server")

	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start Asynq server: %w", err)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Stop gracefully stops the Asynq server.
func (s *AsynqServer) Stop() {
	s.logger.Info("Stopping Asynq server")
	s.server.Shutdown()
}
