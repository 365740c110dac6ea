// Package useractions contains the action creators behind the user list:
// each one records the request in the store, fetches from the users service
// and records the outcome.
package useractions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/userdirectory/internal/shared"
	"github.com/odyssey-erp/userdirectory/internal/userstate"
	"github.com/odyssey-erp/userdirectory/internal/users"
)

// ErrUnknownJob is returned by Execute for job kinds it cannot run.
var ErrUnknownJob = errors.New("useractions: unknown job kind")

// JobKind identifies the fetch a Job performs.
type JobKind string

const (
	JobListUsers   JobKind = "list_users"
	JobUserDetails JobKind = "user_details"
)

// Job is one fetch to run against the users service. Key selects the
// visitor state the outcome is dispatched to.
type Job struct {
	Key    string       `json:"key"`
	Kind   JobKind      `json:"kind"`
	Filter users.Filter `json:"filter"`
	User   users.User   `json:"user"`
}

// UsersService is the data source the action creators fetch from.
type UsersService interface {
	ValidateFilter(filter users.Filter) error
	ListUsers(ctx context.Context, filter users.Filter) ([]users.User, error)
	UserDetails(ctx context.Context, user users.User) (users.Details, error)
}

// Runner executes or schedules a Job.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// Recorder counts action outcomes.
type Recorder interface {
	RecordAction(action, outcome string)
}

// Creator implements getUsers and getUserDetails.
type Creator struct {
	service UsersService
	store   userstate.Store
	runner  Runner
	logger  *slog.Logger
	metrics Recorder
}

// NewCreator builds a Creator that runs fetches inline until SetRunner is
// called. metrics may be nil.
func NewCreator(service UsersService, store userstate.Store, logger *slog.Logger, metrics Recorder) *Creator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Creator{service: service, store: store, logger: logger, metrics: metrics}
}

// SetRunner routes fetches through r, typically a job queue.
func (c *Creator) SetRunner(r Runner) {
	c.runner = r
}

// GetUsers requests the user list for key, optionally filtered.
func (c *Creator) GetUsers(ctx context.Context, key string, filter users.Filter) error {
	if err := c.service.ValidateFilter(filter); err != nil {
		c.record("get_users", "rejected")
		_, dErr := c.store.Dispatch(ctx, key, userstate.UsersFailed(shared.UserSafeMessage(err)))
		return dErr
	}
	if _, err := c.store.Dispatch(ctx, key, userstate.UsersStarted()); err != nil {
		return err
	}
	return c.run(ctx, Job{Key: key, Kind: JobListUsers, Filter: filter})
}

// GetUserDetails requests the details of user for key.
func (c *Creator) GetUserDetails(ctx context.Context, key string, user users.User) error {
	if _, err := c.store.Dispatch(ctx, key, userstate.DetailsStarted()); err != nil {
		return err
	}
	return c.run(ctx, Job{Key: key, Kind: JobUserDetails, User: user})
}

// Execute performs the fetch described by job and dispatches its outcome.
// Fetch failures end up in the state and are not returned.
func (c *Creator) Execute(ctx context.Context, job Job) error {
	switch job.Kind {
	case JobListUsers:
		list, err := c.service.ListUsers(ctx, job.Filter)
		if err != nil {
			c.logger.Error("get users failed", slog.Any("error", err), slog.String("field", job.Filter.Field))
			c.record("get_users", "failed")
			_, dErr := c.store.Dispatch(ctx, job.Key, userstate.UsersFailed(shared.UserSafeMessage(err)))
			return dErr
		}
		c.record("get_users", "succeeded")
		_, err = c.store.Dispatch(ctx, job.Key, userstate.UsersLoaded(list))
		return err
	case JobUserDetails:
		details, err := c.service.UserDetails(ctx, job.User)
		if err != nil {
			c.logger.Error("get user details failed", slog.Any("error", err), slog.Int64("user_id", job.User.ID))
			c.record("get_user_details", "failed")
			_, dErr := c.store.Dispatch(ctx, job.Key, userstate.DetailsFailed(shared.UserSafeMessage(err)))
			return dErr
		}
		c.record("get_user_details", "succeeded")
		_, err = c.store.Dispatch(ctx, job.Key, userstate.DetailsLoaded(details))
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, job.Kind)
	}
}

func (c *Creator) run(ctx context.Context, job Job) error {
	if c.runner == nil {
		return c.Execute(ctx, job)
	}
	if err := c.runner.Run(ctx, job); err != nil {
		c.logger.Error("schedule fetch failed", slog.Any("error", err), slog.String("kind", string(job.Kind)))
		failed := userstate.UsersFailed(shared.UserSafeMessage(err))
		action := "get_users"
		if job.Kind == JobUserDetails {
			failed = userstate.DetailsFailed(shared.UserSafeMessage(err))
			action = "get_user_details"
		}
		c.record(action, "unscheduled")
		if _, dErr := c.store.Dispatch(ctx, job.Key, failed); dErr != nil {
			return errors.Join(err, dErr)
		}
		return err
	}
	return nil
}

func (c *Creator) record(action, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordAction(action, outcome)
	}
}

// Bound is the action set bound to one visitor's state.
type Bound struct {
	creator *Creator
	key     string
}

// Bind returns the actions dispatching into the state under key.
func (c *Creator) Bind(key string) Bound {
	return Bound{creator: c, key: key}
}

// GetUsers requests the user list. The zero filter lists everyone.
func (b Bound) GetUsers(ctx context.Context, filter users.Filter) error {
	return b.creator.GetUsers(ctx, b.key, filter)
}

// GetUserDetails requests the details of user.
func (b Bound) GetUserDetails(ctx context.Context, user users.User) error {
	return b.creator.GetUserDetails(ctx, b.key, user)
}
