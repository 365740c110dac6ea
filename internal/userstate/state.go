// Package userstate holds the user-list state slice and the reducer that
// derives it from dispatched actions.
package userstate

import "github.com/odyssey-erp/userdirectory/internal/users"

// State is the user slice of a visitor's application state.
// An empty Errors means no error. ErrorSeq counts failures, so two failures
// with the same message stay distinguishable.
type State struct {
	Loading     bool           `json:"loading"`
	Users       []users.User   `json:"users"`
	Errors      string         `json:"errors,omitempty"`
	ErrorSeq    uint64         `json:"error_seq,omitempty"`
	UserDetails *users.Details `json:"user_details,omitempty"`
}

// ActionType names a state transition.
type ActionType string

const (
	FetchUsersStarted     ActionType = "users/fetchStarted"
	FetchUsersSucceeded   ActionType = "users/fetchSucceeded"
	FetchUsersFailed      ActionType = "users/fetchFailed"
	FetchDetailsStarted   ActionType = "users/detailsStarted"
	FetchDetailsSucceeded ActionType = "users/detailsSucceeded"
	FetchDetailsFailed    ActionType = "users/detailsFailed"
)

// Action is a dispatchable state transition.
type Action struct {
	Type    ActionType     `json:"type"`
	Users   []users.User   `json:"users,omitempty"`
	Details *users.Details `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func UsersStarted() Action { return Action{Type: FetchUsersStarted} }

func UsersLoaded(list []users.User) Action {
	return Action{Type: FetchUsersSucceeded, Users: list}
}

func UsersFailed(message string) Action {
	return Action{Type: FetchUsersFailed, Error: message}
}

func DetailsStarted() Action { return Action{Type: FetchDetailsStarted} }

func DetailsLoaded(d users.Details) Action {
	return Action{Type: FetchDetailsSucceeded, Details: &d}
}

func DetailsFailed(message string) Action {
	return Action{Type: FetchDetailsFailed, Error: message}
}

// Reduce returns the state that follows s after action. s is not modified.
// Unknown actions leave the state unchanged.
func Reduce(s State, action Action) State {
	switch action.Type {
	case FetchUsersStarted:
		s.Loading = true
		s.Errors = ""
	case FetchUsersSucceeded:
		s.Loading = false
		s.Users = append([]users.User{}, action.Users...)
	case FetchUsersFailed:
		s.Loading = false
		s.Errors = action.Error
		s.ErrorSeq++
	case FetchDetailsStarted:
		s.Loading = true
		s.Errors = ""
		s.UserDetails = nil
	case FetchDetailsSucceeded:
		s.Loading = false
		if action.Details != nil {
			d := *action.Details
			s.UserDetails = &d
		}
	case FetchDetailsFailed:
		s.Loading = false
		s.Errors = action.Error
		s.ErrorSeq++
	}
	return s
}
