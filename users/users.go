// Package users is the SQLite-backed user registry. The first user ever
// added becomes the admin; everyone else needs the admin's approval
// before the service accepts their missions.
package users

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Schema contains the DDL for the users table.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    admin      INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
`

// User is a registered mission issuer.
type User struct {
	ID        string    `json:"id"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the user database handle.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an opened database. The caller applies Schema via
// dbopen.WithSchema.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Add registers a user. When no admin exists yet the new user becomes
// admin regardless of the flag, since someone has to be able to approve the
// rest. Adding an existing user updates the admin flag.
func (s *Store) Add(ctx context.Context, id string, admin bool) (*User, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var admins int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE admin = 1`).Scan(&admins); err != nil {
		return nil, err
	}
	if admins == 0 {
		admin = true
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, admin, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET admin = excluded.admin`,
		id, boolToInt(admin), time.Now().UnixMilli()); err != nil {
		return nil, err
	}

	// Re-read created_at: the upsert keeps the original registration
	// time for an existing user.
	var createdAt int64
	if err := tx.QueryRowContext(ctx,
		`SELECT created_at FROM users WHERE id = ?`, id).Scan(&createdAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &User{ID: id, Admin: admin, CreatedAt: time.UnixMilli(createdAt)}, nil
}

// Get returns a user by ID, or (nil, nil) when unknown.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, admin, created_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// Admin returns the admin user, or (nil, nil) when none exists yet.
func (s *Store) Admin(ctx context.Context) (*User, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, admin, created_at FROM users WHERE admin = 1 LIMIT 1`)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// List returns all users, admin first, then by registration time.
func (s *Store) List(ctx context.Context) ([]*User, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, admin, created_at FROM users ORDER BY admin DESC, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		var admin int
		var createdAt int64
		if err := rows.Scan(&u.ID, &admin, &createdAt); err != nil {
			return nil, err
		}
		u.Admin = admin == 1
		u.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, &u)
	}
	return out, rows.Err()
}

// Remove deletes a user. The admin cannot be removed.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM users WHERE id = ? AND admin = 0`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("user not found or is the admin")
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var admin int
	var createdAt int64
	if err := row.Scan(&u.ID, &admin, &createdAt); err != nil {
		return nil, err
	}
	u.Admin = admin == 1
	u.CreatedAt = time.UnixMilli(createdAt)
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
