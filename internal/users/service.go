package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/userdirectory/internal/shared"
)

// sharedListTimeout bounds a list query shared by concurrent callers.
const sharedListTimeout = 10 * time.Second

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter Filter) ([]User, error)
	FindDetails(ctx context.Context, id int64) (Details, error)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	cache    *Cache
	validate *validator.Validate
	lists    singleflight.Group
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, validate: validator.New()}
}

// ValidateFilter checks that the data source can apply filter.
func (s *Service) ValidateFilter(filter Filter) error {
	if filter.Field == "" && filter.Value != "" {
		return fmt.Errorf("%w: a field is required to search for %q", shared.ErrInvalidFilter, filter.Value)
	}
	if err := s.validate.Struct(filter); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			switch fieldErrs[0].Field() {
			case "Field":
				return fmt.Errorf("%w: cannot search by %q", shared.ErrInvalidFilter, filter.Field)
			case "Value":
				return fmt.Errorf("%w: search text is too long", shared.ErrInvalidFilter)
			}
		}
		return fmt.Errorf("%w: %v", shared.ErrInvalidFilter, err)
	}
	return nil
}

// ListUsers returns users matching filter. Concurrent identical queries share
// one repository call, which outlives the cancellation of whichever caller
// started it. Each caller still stops waiting when its own ctx is done.
func (s *Service) ListUsers(ctx context.Context, filter Filter) ([]User, error) {
	if err := s.ValidateFilter(filter); err != nil {
		return nil, err
	}
	ch := s.lists.DoChan(filter.Field+"\x00"+filter.Value, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedListTimeout)
		defer cancel()
		return s.repo.ListUsers(callCtx, filter)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	rows := res.Val.([]User)
	list := make([]User, len(rows))
	for i, u := range rows {
		u.Href = HrefFor(u.ID)
		list[i] = u
	}
	return list, nil
}

// UserDetails fetches the details of a listed user. The user's ID is used
// when set, otherwise its Href.
func (s *Service) UserDetails(ctx context.Context, user User) (Details, error) {
	id := user.ID
	if id <= 0 {
		parsed, ok := IDFromHref(user.Href)
		if !ok {
			return Details{}, fmt.Errorf("%w: missing id", shared.ErrInvalidUser)
		}
		id = parsed
	}
	return s.Get(ctx, id)
}

// Get fetches the details of the user with id.
func (s *Service) Get(ctx context.Context, id int64) (Details, error) {
	if id <= 0 {
		return Details{}, fmt.Errorf("%w: id %d", shared.ErrInvalidUser, id)
	}
	key, err := s.cache.BuildKey(ctx, "details", strconv.FormatInt(id, 10))
	if err != nil {
		return Details{}, fmt.Errorf("users: cache key: %w", err)
	}
	var d Details
	err = s.cache.FetchJSON(ctx, key, &d, func(ctx context.Context) (any, error) {
		return s.repo.FindDetails(ctx, id)
	})
	if err != nil {
		return Details{}, err
	}
	d.Href = HrefFor(d.ID)
	return d, nil
}
