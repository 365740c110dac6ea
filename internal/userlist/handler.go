package userlist

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/userdirectory/internal/i18n"
	"github.com/odyssey-erp/userdirectory/internal/shared"
	"github.com/odyssey-erp/userdirectory/internal/useractions"
	"github.com/odyssey-erp/userdirectory/internal/userstate"
	"github.com/odyssey-erp/userdirectory/internal/view"
)

const (
	basePath = "/users"
	viewPath = basePath + "/view"

	sessionModalKey        = "userlist.modal_open"
	sessionSeenErrorSeqKey = "userlist.seen_error_seq"
)

// Handler hosts the user list page over HTTP. Each visitor session has its
// own state, keyed by session ID.
type Handler struct {
	logger    *slog.Logger
	store     userstate.Store
	bind      func(key string) Actions
	templates *view.Engine
	csrf      *shared.CSRFManager
	catalog   *i18n.Catalog
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store userstate.Store, creator *useractions.Creator, templates *view.Engine, csrf *shared.CSRFManager, catalog *i18n.Catalog) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		store:     store,
		bind:      func(key string) Actions { return creator.Bind(key) },
		templates: templates,
		csrf:      csrf,
		catalog:   catalog,
	}
}

// MountRoutes registers the page routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.mount)
	r.Get("/view", h.show)
	r.Post("/search", h.search)
	r.Post("/rows/{index}", h.openDetails)
	r.Post("/modal/close", h.closeModal)
}

// mount renders a fresh page: local state is reset and the full list is
// requested.
func (h *Handler) mount(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	page, err := h.page(r.Context(), sess, LocalState{}, h.catalog.ForRequest(r))
	if err != nil {
		h.fail(w, "load user state", err)
		return
	}
	if err := page.Mount(r.Context()); err != nil {
		// The failure is already recorded in the state and shown on render.
		h.logger.Warn("mount user list", slog.Any("error", err))
	}
	h.render(w, r, sess, page.Local(), 0)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.render(w, r, sess, loadLocal(sess), offsetParam(r.URL.Query().Get("offset")))
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, page *Page) error {
		return page.Search(ctx, r.PostFormValue("q"))
	})
}

func (h *Handler) openDetails(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid row", http.StatusBadRequest)
		return
	}
	h.act(w, r, func(ctx context.Context, page *Page) error {
		return page.OpenUserDetails(ctx, index)
	})
}

func (h *Handler) closeModal(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, page *Page) error {
		page.CloseModal()
		return nil
	})
}

// act runs one interaction against the current page and redirects back to it.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, fn func(context.Context, *Page) error) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	page, err := h.page(r.Context(), sess, loadLocal(sess), h.catalog.ForRequest(r))
	if err != nil {
		h.fail(w, "load user state", err)
		return
	}
	if err := fn(r.Context(), page); err != nil {
		if errors.Is(err, ErrRowOutOfRange) {
			http.Error(w, "Invalid row", http.StatusBadRequest)
			return
		}
		h.logger.Warn("user list action", slog.Any("error", err))
	}
	saveLocal(sess, page.Local())

	location := viewPath
	if offset := offsetParam(r.PostFormValue("offset")); offset > 0 {
		location += "?" + url.Values{"offset": {strconv.Itoa(offset)}}.Encode()
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, sess *shared.Session, local LocalState, offset int) {
	tr := h.catalog.ForRequest(r)
	page, err := h.page(r.Context(), sess, local, tr)
	if err != nil {
		h.fail(w, "load user state", err)
		return
	}
	vm := page.View()
	page.Effects()
	saveLocal(sess, page.Local())

	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	vp := vm.List.Viewport(offset)
	data := view.TemplateData{
		Title:       vm.Head.Title,
		Lang:        tr.Lang(),
		Meta:        metaTags(vm.Head.Meta),
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data: pageData{
			View:     vm,
			Viewport: vp,
			Tr:       tr,
		},
	}
	if vm.Loading {
		data.RefreshURL = viewPath + "?" + url.Values{"offset": {strconv.Itoa(vp.Offset)}}.Encode()
	}
	if err := h.templates.Render(w, http.StatusOK, "pages/users/list.html", data); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

type pageData struct {
	View     ViewModel
	Viewport Viewport
	Tr       i18n.Printer
}

func (h *Handler) page(ctx context.Context, sess *shared.Session, local LocalState, tr Translator) (*Page, error) {
	state, err := h.store.Load(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return NewPage(state, local, h.bind(sess.ID), sessionNotifier{sess: sess}, tr), nil
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*shared.Session, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("user list without session", slog.String("path", r.URL.Path))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// sessionNotifier queues notifications as flash messages, shown as toasts.
type sessionNotifier struct {
	sess *shared.Session
}

func (n sessionNotifier) Error(message string) {
	n.sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: message})
}

func loadLocal(sess *shared.Session) LocalState {
	return LocalState{
		ModalOpen:    sess.Get(sessionModalKey) == "1",
		SeenErrorSeq: seqParam(sess.Get(sessionSeenErrorSeqKey)),
	}
}

func saveLocal(sess *shared.Session, local LocalState) {
	if local.ModalOpen {
		sess.Set(sessionModalKey, "1")
	} else {
		sess.Delete(sessionModalKey)
	}
	if local.SeenErrorSeq != 0 {
		sess.Set(sessionSeenErrorSeqKey, strconv.FormatUint(local.SeenErrorSeq, 10))
	} else {
		sess.Delete(sessionSeenErrorSeqKey)
	}
}

func metaTags(tags []MetaTag) []view.MetaTag {
	out := make([]view.MetaTag, len(tags))
	for i, t := range tags {
		out[i] = view.MetaTag{Name: t.Name, Property: t.Property, Content: t.Content}
	}
	return out
}

func offsetParam(raw string) int {
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

func seqParam(raw string) uint64 {
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return seq
}
