package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/userdirectory/internal/shared"
)

type stubRepo struct {
	mu          sync.Mutex
	users       []User
	details     map[int64]Details
	listErr     error
	listCalls   int
	detailCalls int
	lastFilter  Filter
}

func (s *stubRepo) ListUsers(ctx context.Context, filter Filter) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	s.lastFilter = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []User
	for _, u := range s.users {
		if filter.Field == FieldName && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(filter.Value)) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *stubRepo) FindDetails(ctx context.Context, id int64) (Details, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls++
	d, ok := s.details[id]
	if !ok {
		return Details{}, shared.ErrNotFound
	}
	return d, nil
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users: []User{{ID: 1, Name: "Ann", Email: "ann@example.com"}, {ID: 2, Name: "John", Email: "john@example.com"}},
		details: map[int64]Details{
			1: {User: User{ID: 1, Name: "Ann", Email: "ann@example.com"}, Phone: "555-0100", Company: "TIVO"},
		},
	}
}

func TestValidateFilter(t *testing.T) {
	svc := NewService(newStubRepo(), nil)

	assert.NoError(t, svc.ValidateFilter(Filter{}))
	assert.NoError(t, svc.ValidateFilter(Filter{Field: FieldName, Value: "jo"}))
	assert.NoError(t, svc.ValidateFilter(Filter{Field: FieldEmail}))

	err := svc.ValidateFilter(Filter{Field: "password", Value: "x"})
	require.ErrorIs(t, err, shared.ErrInvalidFilter)
	assert.Contains(t, err.Error(), `cannot search by "password"`)

	err = svc.ValidateFilter(Filter{Value: "orphan"})
	assert.ErrorIs(t, err, shared.ErrInvalidFilter)

	err = svc.ValidateFilter(Filter{Field: FieldName, Value: strings.Repeat("a", 101)})
	require.ErrorIs(t, err, shared.ErrInvalidFilter)
	assert.Contains(t, err.Error(), "too long")
}

func TestListUsersFillsHref(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	list, err := svc.ListUsers(context.Background(), Filter{Field: FieldName, Value: "jo"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "John", list[0].Name)
	assert.Equal(t, "/api/users/2", list[0].Href)
	assert.Equal(t, Filter{Field: FieldName, Value: "jo"}, repo.lastFilter)
}

func TestListUsersRejectsInvalidFilterWithoutQuerying(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	_, err := svc.ListUsers(context.Background(), Filter{Field: "role", Value: "admin"})
	assert.ErrorIs(t, err, shared.ErrInvalidFilter)
	assert.Zero(t, repo.listCalls)
}

func TestListUsersPropagatesRepositoryError(t *testing.T) {
	repo := newStubRepo()
	repo.listErr = errors.New("connection refused")
	svc := NewService(repo, nil)

	_, err := svc.ListUsers(context.Background(), Filter{})
	assert.EqualError(t, err, "connection refused")
}

func TestUserDetailsResolvesByIDOrHref(t *testing.T) {
	svc := NewService(newStubRepo(), nil)

	d, err := svc.UserDetails(context.Background(), User{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "555-0100", d.Phone)
	assert.Equal(t, "/api/users/1", d.Href)

	d, err = svc.UserDetails(context.Background(), User{Href: "http://localhost/api/users/1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.ID)

	_, err = svc.UserDetails(context.Background(), User{Name: "nobody"})
	assert.ErrorIs(t, err, shared.ErrInvalidUser)

	_, err = svc.UserDetails(context.Background(), User{ID: 99})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUserDetailsUsesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newStubRepo()
	svc := NewService(repo, NewCache(client, 0))
	ctx := context.Background()

	first, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	second, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.detailCalls)

	require.NoError(t, svc.cache.Bump(ctx))
	_, err = svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.detailCalls)
}

func TestIDFromHref(t *testing.T) {
	id, ok := IDFromHref("/api/users/42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = IDFromHref("/u/1")
	assert.False(t, ok)
	_, ok = IDFromHref("/api/users/abc")
	assert.False(t, ok)
}

type gatedRepo struct {
	*stubRepo
	once    sync.Once
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	ctxErrs []error
}

func (g *gatedRepo) ListUsers(ctx context.Context, filter Filter) ([]User, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	g.mu.Lock()
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	g.mu.Unlock()
	return g.stubRepo.ListUsers(ctx, filter)
}

func TestListUsersSharedCallSurvivesCallerCancel(t *testing.T) {
	repo := &gatedRepo{stubRepo: newStubRepo(), started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(repo, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.ListUsers(first, Filter{})
		firstErr <- err
	}()
	<-repo.started
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		list []User
		err  error
	}
	second := make(chan result, 1)
	go func() {
		list, err := svc.ListUsers(context.Background(), Filter{})
		second <- result{list, err}
	}()
	close(repo.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.list, 2)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, err := range repo.ctxErrs {
		assert.NoError(t, err, "the repository call is not cancelled with its initiator")
	}
}
