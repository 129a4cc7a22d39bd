package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/database"
)

const columns = `id, username, email, password_hash, role, is_active, version, created_at, updated_at`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email CITEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'operator' CHECK (role IN ('admin','operator')),
  is_active BOOLEAN NOT NULL DEFAULT true,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return errors.Wrap(err, "user: ensure table")
}

// Create inserts u; ID, timestamps and version must already be set.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, username, email, password_hash, role, is_active, version, created_at, updated_at)
		VALUES (:id, :username, :email, :password_hash, :role, :is_active, :version, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, u)
	return errors.Wrap(err, "user: insert")
}

// GetByID returns the user or an error wrapping sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail matches case-insensitively (citext).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *UserRepo) getBy(ctx context.Context, col string, v any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+columns+` FROM users WHERE `+col+` = $1`, v); err != nil {
		return nil, errors.Wrapf(err, "user: get by %s", col)
	}
	return &u, nil
}

// Update writes profile columns if the stored version still equals
// u.Version and bumps it; a lost race yields database.ErrStaleVersion.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) (*entity.User, error) {
	const q = `UPDATE users SET username = :username, email = :email, role = :role, is_active = :is_active,
		version = version + 1, updated_at = :updated_at
		WHERE id = :id AND version = :version
		RETURNING ` + columns
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return nil, errors.Wrap(err, "user: update")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "user: update")
		}
		return nil, database.ErrStaleVersion
	}
	var out entity.User
	if err := rows.StructScan(&out); err != nil {
		return nil, errors.Wrap(err, "user: scan")
	}
	return &out, nil
}

// UpdatePassword replaces the hash and bumps version.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) error {
	const q = `UPDATE users SET password_hash = $2, version = version + 1, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, hash, at)
	if err != nil {
		return errors.Wrap(err, "user: update password")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(sql.ErrNoRows, "user: update password %d", id)
	}
	return nil
}

// Delete removes the row. Fails with a foreign key violation while the user
// still created activities.
func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "user: delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(sql.ErrNoRows, "user: delete %d", id)
	}
	return nil
}

func (r *UserRepo) List(ctx context.Context, p entity.ListParams) ([]*entity.User, int, error) {
	where := ""
	if !p.IncludeInactive {
		where = " WHERE is_active = true"
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where); err != nil {
		return nil, 0, errors.Wrap(err, "user: count")
	}
	out := []*entity.User{}
	q := `SELECT ` + columns + ` FROM users` + where + ` ORDER BY id ASC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &out, q, p.Limit, p.Skip); err != nil {
		return nil, 0, errors.Wrap(err, "user: list")
	}
	return out, total, nil
}
