package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/userdirectory/internal/shared"
)

var filterColumns = map[string]string{
	FieldName:  "name",
	FieldEmail: "email",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns users matching the filter ordered by id.
func (r *Repository) ListUsers(ctx context.Context, filter Filter) ([]User, error) {
	query := `SELECT id, email, name, is_active, created_at, updated_at FROM users`
	var args []any
	if filter.Field != "" {
		column, ok := filterColumns[filter.Field]
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", shared.ErrInvalidFilter, filter.Field)
		}
		query += ` WHERE ` + column + ` ILIKE $1`
		args = append(args, "%"+likeEscaper.Replace(filter.Value)+"%")
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list rows: %w", err)
	}
	return users, nil
}

// FindDetails loads one user with its profile.
func (r *Repository) FindDetails(ctx context.Context, id int64) (Details, error) {
	const query = `
		SELECT u.id, u.email, u.name, u.is_active, u.created_at, u.updated_at,
		       COALESCE(p.phone, ''), COALESCE(p.address, ''), COALESCE(p.company, ''), COALESCE(p.bio, ''),
		       u.last_login_at
		FROM users u
		LEFT JOIN user_profiles p ON p.user_id = u.id
		WHERE u.id = $1`

	var d Details
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Email, &d.Name, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
		&d.Phone, &d.Address, &d.Company, &d.Bio,
		&d.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Details{}, shared.ErrNotFound
		}
		return Details{}, fmt.Errorf("users: find details %d: %w", id, err)
	}
	return d, nil
}
