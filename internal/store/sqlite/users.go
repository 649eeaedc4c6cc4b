package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/vovakirdan/wiremsg/internal/store"
)

const userColumns = `id, username, email, first_name, last_name, password_hash, is_staff, is_superuser, created_at`

// CreateUser inserts a new user.
func (q *queries) CreateUser(ctx context.Context, u *store.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO users (username, email, first_name, last_name, password_hash, is_staff, is_superuser, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := q.exec(ctx, query, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsStaff, u.IsSuperuser, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %q: %w", u.Username, store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	u.ID = id
	return nil
}

// GetUserByID retrieves a user by ID.
func (q *queries) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	var u store.User
	if err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// GetUserByUsername retrieves a user by username.
func (q *queries) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	var u store.User
	if err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE username = ?`, username); err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// ListUsers returns one page of users ordered by ID.
func (q *queries) ListUsers(ctx context.Context, limit, offset int) ([]*store.User, error) {
	var users []*store.User
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT ? OFFSET ?`
	if err := q.selectAll(ctx, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of users.
func (q *queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// DeleteUser removes the user row. Group memberships and conversation
// participation go with it through foreign key cascades.
func (q *queries) DeleteUser(ctx context.Context, id int64) error {
	res, err := q.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if rowsAffected(res) == 0 {
		return fmt.Errorf("delete user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListUserGroups returns the names of groups the user belongs to.
func (q *queries) ListUserGroups(ctx context.Context, userID int64) ([]string, error) {
	query := `
		SELECT g.name
		FROM auth_groups g
		JOIN auth_user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = ?
		ORDER BY g.name
	`
	var groups []string
	if err := q.selectAll(ctx, &groups, query, userID); err != nil {
		return nil, fmt.Errorf("query user groups: %w", err)
	}
	return groups, nil
}

// AddUserToGroup adds the user to the named group, creating the group if needed.
func (q *queries) AddUserToGroup(ctx context.Context, userID int64, group string) error {
	if _, err := q.exec(ctx, `INSERT OR IGNORE INTO auth_groups (name) VALUES (?)`, group); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	query := `
		INSERT OR IGNORE INTO auth_user_groups (user_id, group_id)
		SELECT ?, id FROM auth_groups WHERE name = ?
	`
	if _, err := q.exec(ctx, query, userID, group); err != nil {
		return fmt.Errorf("insert user group: %w", err)
	}
	return nil
}
