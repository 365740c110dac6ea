package useractions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/userdirectory/internal/shared"
	"github.com/odyssey-erp/userdirectory/internal/userstate"
	"github.com/odyssey-erp/userdirectory/internal/users"
)

type stubService struct {
	list       []users.User
	listErr    error
	details    users.Details
	detailsErr error
	lastFilter users.Filter
	lastUser   users.User
}

func (s *stubService) ValidateFilter(filter users.Filter) error {
	if filter.Field != "" && filter.Field != users.FieldName && filter.Field != users.FieldEmail {
		return shared.ErrInvalidFilter
	}
	return nil
}

func (s *stubService) ListUsers(ctx context.Context, filter users.Filter) ([]users.User, error) {
	s.lastFilter = filter
	return s.list, s.listErr
}

func (s *stubService) UserDetails(ctx context.Context, user users.User) (users.Details, error) {
	s.lastUser = user
	return s.details, s.detailsErr
}

type recordingRunner struct {
	jobs []Job
	err  error
}

func (r *recordingRunner) Run(ctx context.Context, job Job) error {
	r.jobs = append(r.jobs, job)
	return r.err
}

type countingRecorder map[string]int

func (c countingRecorder) RecordAction(action, outcome string) {
	c[action+"/"+outcome]++
}

func TestGetUsersInline(t *testing.T) {
	svc := &stubService{list: []users.User{{ID: 1, Name: "Ann", Href: "/api/users/1"}}}
	store := userstate.NewMemoryStore()
	metrics := countingRecorder{}
	creator := NewCreator(svc, store, nil, metrics)
	ctx := context.Background()

	require.NoError(t, creator.Bind("s1").GetUsers(ctx, users.Filter{Field: users.FieldName, Value: "jo"}))

	state, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, state.Loading)
	assert.Equal(t, svc.list, state.Users)
	assert.Equal(t, users.Filter{Field: users.FieldName, Value: "jo"}, svc.lastFilter)
	assert.Equal(t, 1, metrics["get_users/succeeded"])
}

func TestGetUsersFailureLandsInErrors(t *testing.T) {
	svc := &stubService{listErr: errors.New("dial tcp: connection refused")}
	store := userstate.NewMemoryStore()
	creator := NewCreator(svc, store, nil, nil)
	ctx := context.Background()

	require.NoError(t, creator.GetUsers(ctx, "s1", users.Filter{}))

	state, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, state.Loading)
	assert.Equal(t, "unable to load users, please try again", state.Errors)
}

func TestGetUsersRejectsInvalidFilter(t *testing.T) {
	svc := &stubService{}
	store := userstate.NewMemoryStore()
	runner := &recordingRunner{}
	creator := NewCreator(svc, store, nil, nil)
	creator.SetRunner(runner)
	ctx := context.Background()

	require.NoError(t, creator.GetUsers(ctx, "s1", users.Filter{Field: "password", Value: "x"}))

	state, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, shared.ErrInvalidFilter.Error(), state.Errors)
	assert.Empty(t, runner.jobs)
}

func TestGetUserDetailsPassesCachedUser(t *testing.T) {
	listed := users.User{ID: 1, Name: "Ann", Href: "/u/1"}
	svc := &stubService{details: users.Details{User: users.User{ID: 1, Name: "Ann"}, Phone: "555"}}
	store := userstate.NewMemoryStore()
	creator := NewCreator(svc, store, nil, nil)
	ctx := context.Background()

	require.NoError(t, creator.Bind("s1").GetUserDetails(ctx, listed))

	assert.Equal(t, listed, svc.lastUser)
	state, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, state.UserDetails)
	assert.Equal(t, "555", state.UserDetails.Phone)
}

func TestGetUserDetailsFailure(t *testing.T) {
	svc := &stubService{detailsErr: shared.ErrNotFound}
	store := userstate.NewMemoryStore()
	creator := NewCreator(svc, store, nil, nil)
	ctx := context.Background()

	require.NoError(t, creator.GetUserDetails(ctx, "s1", users.User{ID: 5}))

	state, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, state.UserDetails)
	assert.Equal(t, "user not found", state.Errors)
}

func TestRunnerDefersFetch(t *testing.T) {
	svc := &stubService{list: []users.User{{ID: 1}}}
	store := userstate.NewMemoryStore()
	runner := &recordingRunner{}
	creator := NewCreator(svc, store, nil, nil)
	creator.SetRunner(runner)
	ctx := context.Background()

	require.NoError(t, creator.GetUsers(ctx, "s1", users.Filter{}))

	state, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, state.Loading, "loading until the worker runs the job")
	require.Len(t, runner.jobs, 1)
	assert.Equal(t, Job{Key: "s1", Kind: JobListUsers}, runner.jobs[0])

	require.NoError(t, creator.Execute(ctx, runner.jobs[0]))
	state, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, state.Loading)
	assert.Len(t, state.Users, 1)
}

func TestRunnerFailureClearsLoading(t *testing.T) {
	store := userstate.NewMemoryStore()
	runner := &recordingRunner{err: errors.New("redis down")}
	metrics := countingRecorder{}
	creator := NewCreator(&stubService{}, store, nil, metrics)
	creator.SetRunner(runner)
	ctx := context.Background()

	err := creator.GetUserDetails(ctx, "s1", users.User{ID: 1})
	assert.EqualError(t, err, "redis down")

	state, loadErr := store.Load(ctx, "s1")
	require.NoError(t, loadErr)
	assert.False(t, state.Loading)
	assert.NotEmpty(t, state.Errors)
	assert.Equal(t, 1, metrics["get_user_details/unscheduled"])
}

func TestExecuteUnknownJob(t *testing.T) {
	creator := NewCreator(&stubService{}, userstate.NewMemoryStore(), nil, nil)
	err := creator.Execute(context.Background(), Job{Kind: "reindex"})
	assert.ErrorIs(t, err, ErrUnknownJob)
}
