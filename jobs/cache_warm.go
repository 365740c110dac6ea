package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/userdirectory/internal/jobs"
	"github.com/odyssey-erp/userdirectory/internal/users"
)

// TaskUsersCacheWarm pre-populates the user details cache.
const TaskUsersCacheWarm = "users:cache-warm"

// CacheWarmPayload bounds how many users are warmed.
type CacheWarmPayload struct {
	Limit int `json:"limit"`
}

// NewCacheWarmTask builds a warmup task for the first limit users.
func NewCacheWarmTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(CacheWarmPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUsersCacheWarm, body, asynq.Queue(QueueDefault)), nil
}

// UsersReader is the part of the users service the warmup needs.
type UsersReader interface {
	ListUsers(ctx context.Context, filter users.Filter) ([]users.User, error)
	Get(ctx context.Context, id int64) (users.Details, error)
}

// CacheWarmJob loads the details of listed users so the first modal opens hit
// the cache.
type CacheWarmJob struct {
	Users   UsersReader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheWarmJob wires dependencies for the warmup handler.
func NewCacheWarmJob(reader UsersReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmJob {
	return &CacheWarmJob{Users: reader, Logger: logger, Metrics: metrics}
}

// Handle processes cache warmup tasks.
func (j *CacheWarmJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Users == nil {
		return errors.New("users cache warm: handler not configured")
	}
	var payload CacheWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 100
	}

	tracker := j.metrics().Track(TaskUsersCacheWarm)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("limit", payload.Limit))
	start := time.Now()

	list, err := j.Users.ListUsers(ctx, users.Filter{})
	if err != nil {
		logger.Error("list users for warmup", slog.Any("error", err))
		return err
	}
	warmed := 0
	for _, u := range list {
		if warmed >= payload.Limit {
			break
		}
		userCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := j.Users.Get(userCtx, u.ID)
		cancel()
		if err != nil {
			logger.Error("warm user details", slog.Int64("user_id", u.ID), slog.Any("error", err))
			return err
		}
		warmed++
	}

	logger.Info("completed users cache warmup", slog.Int("users", warmed), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *CacheWarmJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskUsersCacheWarm))
	}
	return slog.Default().With(slog.String("job", TaskUsersCacheWarm))
}

func (j *CacheWarmJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
