// Package userlist renders the user list page: a searchable, windowed list of
// users with a details modal opened by clicking a row.
package userlist

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/userdirectory/internal/userstate"
	"github.com/odyssey-erp/userdirectory/internal/users"
)

// List geometry.
const (
	ListHeight = 400
	RowHeight  = 60
)

// ErrRowOutOfRange is returned when a clicked row index has no user.
var ErrRowOutOfRange = errors.New("userlist: row index out of range")

// Actions are the bound action creators the page dispatches.
type Actions interface {
	GetUsers(ctx context.Context, filter users.Filter) error
	GetUserDetails(ctx context.Context, user users.User) error
}

// Notifier surfaces transient notifications to the visitor.
type Notifier interface {
	Error(message string)
}

// Translator resolves message keys.
type Translator interface {
	T(key string, args ...any) string
}

// LocalState is the state owned by the page itself. SeenErrorSeq is the
// failure count observed by the previous render.
type LocalState struct {
	ModalOpen    bool
	SeenErrorSeq uint64
}

// Page is one render of the user list over a state snapshot.
type Page struct {
	state    userstate.State
	local    LocalState
	actions  Actions
	notifier Notifier
	tr       Translator
}

// NewPage builds a page. Nil collaborators are replaced with no-ops.
func NewPage(state userstate.State, local LocalState, actions Actions, notifier Notifier, tr Translator) *Page {
	if actions == nil {
		actions = noopActions{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if tr == nil {
		tr = keyTranslator{}
	}
	return &Page{state: state, local: local, actions: actions, notifier: notifier, tr: tr}
}

// Local returns the page-owned state to carry into the next render.
func (p *Page) Local() LocalState {
	return p.local
}

// Mount is the on-initialize hook: it requests the unfiltered user list.
// Hosts call it once per page mount.
func (p *Page) Mount(ctx context.Context) error {
	return p.actions.GetUsers(ctx, users.Filter{})
}

// Search requests the users whose name contains text.
func (p *Page) Search(ctx context.Context, text string) error {
	return p.actions.GetUsers(ctx, users.Filter{Field: users.FieldName, Value: text})
}

// OpenUserDetails opens the modal and requests the details of the user shown
// at index.
func (p *Page) OpenUserDetails(ctx context.Context, index int) error {
	if index < 0 || index >= len(p.state.Users) {
		return ErrRowOutOfRange
	}
	p.local.ModalOpen = true
	return p.actions.GetUserDetails(ctx, p.state.Users[index])
}

// CloseModal closes the details modal. Nothing is dispatched.
func (p *Page) CloseModal() {
	p.local.ModalOpen = false
}

// Effects is the post-render hook: every failure not yet observed is notified
// once, even when its message repeats the previous one.
func (p *Page) Effects() {
	if p.state.Errors != "" && p.state.ErrorSeq != p.local.SeenErrorSeq {
		p.notifier.Error(p.state.Errors)
	}
	p.local.SeenErrorSeq = p.state.ErrorSeq
}

// MetaTag is a document head meta element.
type MetaTag struct {
	Name     string
	Property string
	Content  string
}

// Head is the document head block.
type Head struct {
	Title string
	Meta  []MetaTag
}

// Row is what a list row receives: every user field except Href, plus the
// row's index.
type Row struct {
	Index     int
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func rowFor(index int, u users.User) Row {
	return Row{
		Index:     index,
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// List is the windowed row list.
type List struct {
	Height    int
	ItemSize  int
	ItemCount int
	Rows      []Row
}

// Modal carries the details shown in the open modal.
type Modal struct {
	Details users.Details
}

// ViewModel is everything the template needs for one render.
type ViewModel struct {
	Head    Head
	Loading bool
	Modal   *Modal
	Empty   string
	List    *List
}

// View renders the current state.
func (p *Page) View() ViewModel {
	vm := ViewModel{
		Head: Head{
			Title: p.tr.T("user.listTitle"),
			Meta: []MetaTag{
				{Property: "og:title", Content: "User list"},
				{Name: "description", Content: "Get list of all users in TIVO"},
				{Name: "robots", Content: "index, follow"},
			},
		},
		Loading: p.state.Loading,
	}
	if p.local.ModalOpen && p.state.UserDetails != nil {
		vm.Modal = &Modal{Details: *p.state.UserDetails}
	}
	if len(p.state.Users) == 0 {
		vm.Empty = p.tr.T("user.noUserFound")
		return vm
	}
	rows := make([]Row, len(p.state.Users))
	for i, u := range p.state.Users {
		rows[i] = rowFor(i, u)
	}
	vm.List = &List{Height: ListHeight, ItemSize: RowHeight, ItemCount: len(rows), Rows: rows}
	return vm
}

// PositionedRow is a materialised row and its top edge relative to the
// viewport.
type PositionedRow struct {
	Row
	Top int
}

// Viewport is the part of a List visible at one scroll offset.
type Viewport struct {
	Rows        []PositionedRow
	Offset      int
	TotalHeight int
	First       int
	Last        int
	PrevOffset  int
	NextOffset  int
	HasPrev     bool
	HasNext     bool
}

// Viewport materialises the rows visible at offset.
func (l *List) Viewport(offset int) Viewport {
	if l == nil || l.ItemCount == 0 {
		return Viewport{}
	}
	w := ComputeWindow(l.ItemCount, l.ItemSize, l.Height, offset, DefaultOverscan)
	vp := Viewport{
		Offset:      w.Offset,
		TotalHeight: w.TotalHeight,
		First:       w.Offset/l.ItemSize + 1,
		Last:        min(l.ItemCount, (w.Offset+l.Height+l.ItemSize-1)/l.ItemSize),
		PrevOffset:  max(w.Offset-l.Height, 0),
		NextOffset:  w.Offset + l.Height,
		HasPrev:     w.Offset > 0,
		HasNext:     w.Offset+l.Height < w.TotalHeight,
	}
	for i := w.Start; i < w.Stop; i++ {
		vp.Rows = append(vp.Rows, PositionedRow{Row: l.Rows[i], Top: i*l.ItemSize - w.Offset})
	}
	return vp
}

type noopActions struct{}

func (noopActions) GetUsers(context.Context, users.Filter) error { return nil }

func (noopActions) GetUserDetails(context.Context, users.User) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Error(string) {}

type keyTranslator struct{}

func (keyTranslator) T(key string, _ ...any) string { return key }
