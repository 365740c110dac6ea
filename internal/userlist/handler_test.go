package userlist_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/userdirectory/internal/i18n"
	"github.com/odyssey-erp/userdirectory/internal/shared"
	"github.com/odyssey-erp/userdirectory/internal/useractions"
	"github.com/odyssey-erp/userdirectory/internal/userlist"
	"github.com/odyssey-erp/userdirectory/internal/userstate"
	"github.com/odyssey-erp/userdirectory/internal/users"
	"github.com/odyssey-erp/userdirectory/internal/view"
	_ "github.com/odyssey-erp/userdirectory/testing"
)

type stubService struct {
	list        []users.User
	listErr     error
	validateErr error
	details     users.Details
	filters     []users.Filter
	detailsFor  []users.User
}

func (s *stubService) ValidateFilter(filter users.Filter) error { return s.validateErr }

func (s *stubService) ListUsers(ctx context.Context, filter users.Filter) ([]users.User, error) {
	s.filters = append(s.filters, filter)
	return s.list, s.listErr
}

func (s *stubService) UserDetails(ctx context.Context, user users.User) (users.Details, error) {
	s.detailsFor = append(s.detailsFor, user)
	return s.details, nil
}

type deferredRunner struct {
	jobs []useractions.Job
}

func (r *deferredRunner) Run(ctx context.Context, job useractions.Job) error {
	r.jobs = append(r.jobs, job)
	return nil
}

type fixture struct {
	router  http.Handler
	sess    *shared.Session
	store   *userstate.MemoryStore
	svc     *stubService
	creator *useractions.Creator
	token   string
}

// newFixture serves the page for a single visitor whose session lives for
// the whole test.
func newFixture(t *testing.T, svc *stubService) *fixture {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	catalog, err := i18n.Load("en")
	require.NoError(t, err)

	csrf := shared.NewCSRFManager("csrfsecret")
	store := userstate.NewMemoryStore()
	creator := useractions.NewCreator(svc, store, nil, nil)
	handler := userlist.NewHandler(nil, store, creator, templates, csrf, catalog)

	sess := shared.NewSession()
	token, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/users", handler.MountRoutes)
	return &fixture{router: r, sess: sess, store: store, svc: svc, creator: creator, token: token}
}

func (f *fixture) get(path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) post(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", f.token)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func seeded() *stubService {
	return &stubService{
		list: []users.User{
			{ID: 1, Name: "Ann", Email: "ann@example.com", Href: "/api/users/1"},
			{ID: 2, Name: "Jo", Email: "jo@example.com", Href: "/api/users/2"},
		},
		details: users.Details{User: users.User{ID: 1, Name: "Ann", Email: "ann@example.com"}, Phone: "555-0101"},
	}
}

func TestMountRendersList(t *testing.T) {
	f := newFixture(t, seeded())

	rr := f.get("/users")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.Contains(t, body, "<title>User list</title>")
	assert.Contains(t, body, `<meta property="og:title" content="User list">`)
	assert.Contains(t, body, `<meta name="robots" content="index, follow">`)
	assert.Contains(t, body, "ann@example.com")
	assert.Contains(t, body, `action="/users/rows/1"`)
	assert.NotContains(t, body, "/api/users/1", "rows never carry href")
	assert.NotContains(t, body, `http-equiv="refresh"`)
	assert.Equal(t, []users.Filter{{}}, f.svc.filters)
}

func TestViewDoesNotRefetch(t *testing.T) {
	f := newFixture(t, seeded())
	require.Equal(t, http.StatusOK, f.get("/users").Code)

	rr := f.get("/users/view")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Ann")
	assert.Len(t, f.svc.filters, 1)
}

func TestEmptyState(t *testing.T) {
	f := newFixture(t, &stubService{})

	rr := f.get("/users")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No user found")
	assert.NotContains(t, rr.Body.String(), "virtual-list")
}

func TestFetchErrorShowsToastOnce(t *testing.T) {
	f := newFixture(t, &stubService{listErr: errors.New("connection refused")})

	rr := f.get("/users")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `class="toast toast-error"`)
	assert.Contains(t, rr.Body.String(), "unable to load users, please try again")

	rr = f.get("/users/view")
	assert.NotContains(t, rr.Body.String(), "toast-error")
}

func TestRepeatedFetchErrorShowsToastEachTime(t *testing.T) {
	svc := &stubService{listErr: errors.New("connection refused")}
	f := newFixture(t, svc)

	rr := f.get("/users")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "toast-error")

	require.Equal(t, http.StatusSeeOther, f.post("/users/search", url.Values{"q": {"jo"}}).Code)
	require.Len(t, svc.filters, 2)

	body := f.get("/users/view").Body.String()
	assert.Contains(t, body, "No user found")
	assert.Contains(t, body, "toast-error", "a second identical failure is shown again")
	assert.Contains(t, body, "unable to load users, please try again")

	assert.NotContains(t, f.get("/users/view").Body.String(), "toast-error")
}

func TestRejectedSearchShowsToastEachTime(t *testing.T) {
	svc := seeded()
	f := newFixture(t, svc)
	require.Equal(t, http.StatusOK, f.get("/users").Code)
	svc.validateErr = fmt.Errorf("%w: search text is too long", shared.ErrInvalidFilter)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusSeeOther, f.post("/users/search", url.Values{"q": {"jo"}}).Code)
		body := f.get("/users/view").Body.String()
		assert.Contains(t, body, "toast-error", "attempt %d", i+1)
	}
	assert.Len(t, svc.filters, 1, "rejected filters never reach the service")
}

func TestSearchRedirectsAndFilters(t *testing.T) {
	f := newFixture(t, seeded())

	rr := f.post("/users/search", url.Values{"q": {"jo"}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/users/view", rr.Header().Get("Location"))
	assert.Equal(t, []users.Filter{{Field: users.FieldName, Value: "jo"}}, f.svc.filters)
}

func TestOpenAndCloseDetails(t *testing.T) {
	f := newFixture(t, seeded())
	require.Equal(t, http.StatusOK, f.get("/users").Code)

	rr := f.post("/users/rows/0", url.Values{"offset": {"60"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/users/view?offset=60", rr.Header().Get("Location"))
	require.Len(t, f.svc.detailsFor, 1)
	assert.Equal(t, "/api/users/1", f.svc.detailsFor[0].Href)

	body := f.get("/users/view").Body.String()
	assert.Contains(t, body, `role="dialog"`)
	assert.Contains(t, body, "555-0101")

	rr = f.post("/users/modal/close", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Len(t, f.svc.detailsFor, 1)
	assert.Len(t, f.svc.filters, 1)

	body = f.get("/users/view").Body.String()
	assert.NotContains(t, body, `role="dialog"`)
}

func TestOpenDetailsRejectsUnknownRow(t *testing.T) {
	f := newFixture(t, seeded())
	require.Equal(t, http.StatusOK, f.get("/users").Code)

	assert.Equal(t, http.StatusBadRequest, f.post("/users/rows/9", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.post("/users/rows/first", nil).Code)
	assert.Empty(t, f.svc.detailsFor)
}

func TestLoadingPageRefreshes(t *testing.T) {
	f := newFixture(t, seeded())
	runner := &deferredRunner{}
	f.creator.SetRunner(runner)

	rr := f.get("/users")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `http-equiv="refresh"`)
	assert.Contains(t, body, "Loading")
	require.Len(t, runner.jobs, 1)

	require.NoError(t, f.creator.Execute(context.Background(), runner.jobs[0]))
	body = f.get("/users/view").Body.String()
	assert.NotContains(t, body, `http-equiv="refresh"`)
	assert.Contains(t, body, "Ann")
}

func TestLocaleNegotiation(t *testing.T) {
	f := newFixture(t, &stubService{})

	rr := f.get("/users", "Accept-Language", "id-ID,id;q=0.9")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `<html lang="id">`)
	assert.NotContains(t, rr.Body.String(), "No user found")
}

func TestMissingSession(t *testing.T) {
	templates, err := view.NewEngine()
	require.NoError(t, err)
	catalog, err := i18n.Load("en")
	require.NoError(t, err)
	store := userstate.NewMemoryStore()
	handler := userlist.NewHandler(nil, store, useractions.NewCreator(seeded(), store, nil, nil), templates, shared.NewCSRFManager("x"), catalog)

	r := chi.NewRouter()
	r.Route("/users", handler.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
