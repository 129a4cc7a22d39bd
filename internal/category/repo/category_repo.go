package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/category/entity"
)

const columns = `id, name, description, color, is_active, created_at`

// CategoryRepo provides data access for the categories table using sqlx.
type CategoryRepo struct {
	db *sqlx.DB
}

func NewCategoryRepo(db *sqlx.DB) *CategoryRepo { return &CategoryRepo{db: db} }

// EnsureTable creates the categories table if not exists (idempotent).
func (r *CategoryRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS categories (
  id BIGINT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  color CHAR(7) NOT NULL DEFAULT '#3498db' CHECK (color ~ '^#[0-9A-Fa-f]{6}$'),
  is_active BOOLEAN NOT NULL DEFAULT true,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name ON categories (lower(name));
`
	_, err := r.db.ExecContext(ctx, ddl)
	return errors.Wrap(err, "category: ensure table")
}

func (r *CategoryRepo) Create(ctx context.Context, c *entity.Category) error {
	const q = `INSERT INTO categories (id, name, description, color, is_active, created_at)
		VALUES (:id, :name, :description, :color, :is_active, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, c)
	return errors.Wrap(err, "category: insert")
}

// GetByID returns the category or an error wrapping sql.ErrNoRows.
func (r *CategoryRepo) GetByID(ctx context.Context, id int64) (*entity.Category, error) {
	var c entity.Category
	if err := r.db.GetContext(ctx, &c, `SELECT `+columns+` FROM categories WHERE id = $1`, id); err != nil {
		return nil, errors.Wrapf(err, "category: get %d", id)
	}
	return &c, nil
}

// GetByName matches case-insensitively, like the unique index.
func (r *CategoryRepo) GetByName(ctx context.Context, name string) (*entity.Category, error) {
	var c entity.Category
	if err := r.db.GetContext(ctx, &c, `SELECT `+columns+` FROM categories WHERE lower(name) = lower($1)`, name); err != nil {
		return nil, errors.Wrapf(err, "category: get %q", name)
	}
	return &c, nil
}

func (r *CategoryRepo) Update(ctx context.Context, c *entity.Category) error {
	const q = `UPDATE categories SET name = :name, description = :description, color = :color,
		is_active = :is_active WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, q, c)
	if err != nil {
		return errors.Wrap(err, "category: update")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(sql.ErrNoRows, "category: update %d", c.ID)
	}
	return nil
}

// Delete removes the row; activities referencing it keep existing with a
// null category.
func (r *CategoryRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "category: delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(sql.ErrNoRows, "category: delete %d", id)
	}
	return nil
}

func (r *CategoryRepo) List(ctx context.Context, p entity.ListParams) ([]*entity.Category, int, error) {
	where := ""
	if !p.IncludeInactive {
		where = " WHERE is_active = true"
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM categories`+where); err != nil {
		return nil, 0, errors.Wrap(err, "category: count")
	}
	out := []*entity.Category{}
	q := `SELECT ` + columns + ` FROM categories` + where + ` ORDER BY name ASC, id ASC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &out, q, p.Limit, p.Skip); err != nil {
		return nil, 0, errors.Wrap(err, "category: list")
	}
	return out, total, nil
}
