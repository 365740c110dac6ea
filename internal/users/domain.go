package users

import (
	"strconv"
	"strings"
	"time"
)

// Filterable fields accepted by the data source.
const (
	FieldName  = "name"
	FieldEmail = "email"
)

const hrefPrefix = "/api/users/"

// User represents a directory entry as returned by the list endpoint.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Href      string    `json:"href"`
}

// Details is the detail-fetch response for a single user.
type Details struct {
	User
	Phone       string     `json:"phone"`
	Address     string     `json:"address"`
	Company     string     `json:"company"`
	Bio         string     `json:"bio"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Filter narrows a listing to users whose Field contains Value.
// The zero Filter lists everyone.
type Filter struct {
	Field string `json:"field" validate:"omitempty,oneof=name email"`
	Value string `json:"value" validate:"max=100"`
}

// IsZero reports whether the filter is empty.
func (f Filter) IsZero() bool {
	return f.Field == "" && f.Value == ""
}

// HrefFor returns the detail link of the user with id.
func HrefFor(id int64) string {
	return hrefPrefix + strconv.FormatInt(id, 10)
}

// IDFromHref extracts the user ID from a detail link.
func IDFromHref(href string) (int64, bool) {
	idx := strings.LastIndex(href, hrefPrefix)
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(href[idx+len(hrefPrefix):], "/"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
