package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/home-manager/internal/apperror"
	"github.com/sakif/home-manager/internal/model"
	"github.com/sakif/home-manager/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, name, password_hash, provider, avatar_url, created_at, updated_at`

// CreateUser inserts a new user. The ID and timestamps are assigned here.
// A duplicate email is reported as apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Provider == "" {
		user.Provider = model.ProviderPassword
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Provider,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return apperror.StorageUnavailable("inserting user", err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row, id)
}

// GetUserByEmail retrieves a user by email (the owner identity).
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row, email)
}

// UpsertUserByEmail inserts the user or refreshes name, provider and avatar
// of the existing row. The existing ID and password hash are kept, so a
// password account that later signs in with Google keeps its password.
func (db *DB) UpsertUserByEmail(ctx context.Context, user *model.User) error {
	existing, err := db.GetUserByEmail(ctx, user.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return db.CreateUser(ctx, user)
		}
		return err
	}

	existing.Name = user.Name
	existing.AvatarURL = user.AvatarURL
	if existing.PasswordHash == "" {
		existing.Provider = user.Provider
	}
	existing.UpdatedAt = time.Now().UTC()

	_, err = db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, avatar_url = ?, provider = ?, updated_at = ?
		 WHERE id = ?`,
		existing.Name,
		existing.AvatarURL,
		existing.Provider,
		existing.UpdatedAt,
		existing.ID,
	)
	if err != nil {
		return apperror.StorageUnavailable(fmt.Sprintf("updating user %s", existing.ID), err)
	}

	*user = *existing
	return nil
}

func scanUser(row *sql.Row, key string) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.Provider,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", key)
		}
		return nil, apperror.StorageUnavailable("reading user", err)
	}
	return &u, nil
}

// isUniqueViolation matches SQLite's "UNIQUE constraint failed" message;
// the driver exposes no portable error code for it.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
