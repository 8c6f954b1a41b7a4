// Package repository provides database operations backed by PostgreSQL.
// Balance mutations and token rotation run inside transactions with
// row-level locks, so concurrent requests cannot act on stale reads.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/lib/pq"

	"github.com/vchernov/bank-cards/internal/models"
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO bank.users (username, email, password_hash, roles, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, pq.Array(rolesToStrings(user.Roles)), user.Active).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if conflict := asUniqueViolation(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UserByEmail retrieves a user by email
func (r *Repository) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE email = $1`, email))
}

// UserByID retrieves a user by id
func (r *Repository) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE id = $1`, id))
}

// ExistsByEmail reports whether a user with the given email exists.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM bank.users WHERE email = $1)`, email)
}

// ExistsByUsername reports whether a user with the given username exists.
func (r *Repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM bank.users WHERE username = $1)`, username)
}

// ListUsers returns one page of users ordered by id.
func (r *Repository) ListUsers(ctx context.Context, page, size int) (models.Page[models.User], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bank.users`).Scan(&total); err != nil {
		return models.Page[models.User]{}, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, userSelect+` ORDER BY id LIMIT $1 OFFSET $2`, size, page*size)
	if err != nil {
		return models.Page[models.User]{}, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := r.scanUserRow(rows)
		if err != nil {
			return models.Page[models.User]{}, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.User]{}, fmt.Errorf("failed to list users: %w", err)
	}
	return models.NewPage(users, page, size, total), nil
}

// SetUserActive updates the active flag of a user.
func (r *Repository) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bank.users SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return errUserNotFound()
	}
	return nil
}

const userSelect = `
	SELECT id, username, email, password_hash, roles, is_active, created_at
	FROM bank.users`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanUser(row rowScanner) (*models.User, error) {
	user, err := r.scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUserNotFound()
	}
	return user, err
}

func (r *Repository) scanUserRow(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var roles pq.StringArray
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &roles, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Roles = stringsToRoles(roles)
	return user, nil
}

func (r *Repository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	return ok, nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func rolesToStrings(roles []models.Role) []string {
	out := make([]string, len(roles))
	for i, role := range roles {
		out[i] = string(role)
	}
	return out
}

func stringsToRoles(raw []string) []models.Role {
	out := make([]models.Role, len(raw))
	for i, s := range raw {
		out[i] = models.Role(s)
	}
	return out
}

func errUserNotFound() error {
	return goerrors.New("user not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound)
}

// asUniqueViolation maps a postgres unique-constraint violation to a
// conflict error naming the duplicated field, or nil for other errors.
func asUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	field := "value"
	switch {
	case strings.Contains(pqErr.Constraint, "email"):
		field = "email"
	case strings.Contains(pqErr.Constraint, "username"):
		field = "username"
	}
	return goerrors.New(fmt.Sprintf("%s already exists", field), goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict)
}
