package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/userdirectory/internal/jobs"
	"github.com/odyssey-erp/userdirectory/internal/useractions"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskUsersFetch runs one user list or details fetch for a visitor.
	TaskUsersFetch = "users:fetch"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NewUsersFetchTask constructs an Asynq task carrying job.
func NewUsersFetchTask(job useractions.Job) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUsersFetch, data), nil
}

// Executor runs a fetch job and dispatches its outcome.
type Executor interface {
	Execute(ctx context.Context, job useractions.Job) error
}

// UsersFetchJob processes TaskUsersFetch tasks.
type UsersFetchJob struct {
	Executor Executor
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewUsersFetchJob wires dependencies for the fetch handler.
func NewUsersFetchJob(executor Executor, logger *slog.Logger, metrics *jobmetrics.Metrics) *UsersFetchJob {
	return &UsersFetchJob{Executor: executor, Logger: logger, Metrics: metrics}
}

// Handle decodes the job and runs it. Malformed payloads and unknown kinds are
// not retried.
func (j *UsersFetchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Executor == nil {
		return errors.New("users fetch: handler not configured")
	}
	var job useractions.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("users fetch: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if job.Key == "" {
		return fmt.Errorf("users fetch: missing state key: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskUsersFetch)
	err := j.Executor.Execute(ctx, job)
	if errors.Is(err, useractions.ErrUnknownJob) {
		j.logger().Warn("skip users fetch", slog.String("kind", string(job.Kind)))
		return tracker.End(fmt.Errorf("%w: %w", err, asynq.SkipRetry))
	}
	if err != nil {
		j.logger().Error("users fetch", slog.String("kind", string(job.Kind)), slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *UsersFetchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskUsersFetch))
	}
	return slog.Default().With(slog.String("job", TaskUsersFetch))
}

func (j *UsersFetchJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
